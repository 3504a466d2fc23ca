package couchproto

import (
	"fmt"
	"io"
	"strings"
)

// Patch is one change of a subscription update.
type Patch struct {
	Unit    string `json:"unit"`    // operation, e.g. "replace"
	Range   string `json:"range"`   // JSON pointer of the change, e.g. "/foo/bar/0"
	Content string `json:"content"` // JSON text of the new value
}

// Update is one message of a subscription stream: either a full body or a
// list of patches against Parents.
type Update struct {
	Version []string `json:"version"`
	Parents []string `json:"parents"`
	Patches []Patch  `json:"patches,omitempty"`
	Body    string   `json:"body,omitempty"`
}

const updateSeparator = "\r\n\r\n\r\n\r\n\r\n"

func quoteList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	return strings.Join(quoted, ", ")
}

// WriteTo writes u in the line-oriented framing of a subscription stream.
func (u *Update) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Version: %s\r\n", quoteList(u.Version))
	fmt.Fprintf(&b, "Parents: %s\r\n", quoteList(u.Parents))

	if len(u.Patches) == 0 {
		fmt.Fprintf(&b, "Content-Length: %d\r\n\r\n", len(u.Body))
		b.WriteString(u.Body)
	} else {
		if len(u.Patches) > 1 {
			fmt.Fprintf(&b, "Patches: %d\r\n\r\n", len(u.Patches))
		}
		for i, p := range u.Patches {
			if i > 0 {
				b.WriteString("\r\n\r\n")
			}
			fmt.Fprintf(&b, "Content-Length: %d\r\n", len(p.Content))
			fmt.Fprintf(&b, "Content-Range: %s %s\r\n\r\n", p.Unit, p.Range)
			b.WriteString(p.Content)
		}
	}
	b.WriteString(updateSeparator)

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
