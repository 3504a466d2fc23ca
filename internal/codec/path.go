package codec

import (
	"net/url"
	"strings"
)

// Path is an ordered sequence of segments locating a node in the tree.
// The empty path is the root.
type Path []string

// ParsePath splits a slash separated, possibly URL-escaped, path into
// segments. Empty segments are dropped so "/a//b/" and "a/b" are the same.
func ParsePath(raw string) Path {
	parts := strings.Split(raw, "/")
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		if unescaped, err := url.PathUnescape(part); err == nil {
			part = unescaped
		}
		p = append(p, part)
	}
	return p
}

// DocID returns the first segment, which names the document the path lives in.
func (p Path) DocID() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// Rest returns the path relative to its document.
func (p Path) Rest() Path {
	if len(p) <= 1 {
		return Path{}
	}
	return p[1:]
}

// Child returns a new path with key appended.
func (p Path) Child(key string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, key)
}

func (p Path) String() string {
	escaped := make([]string, len(p))
	for i, seg := range p {
		escaped[i] = url.PathEscape(seg)
	}
	return "/" + strings.Join(escaped, "/")
}
