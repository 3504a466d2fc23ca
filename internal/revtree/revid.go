package revtree

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidRev is returned for identifiers not shaped "<generation>-<hash>".
var ErrInvalidRev = errors.New("invalid revision id")

// Parse splits a revision id into its generation and hash.
func Parse(rev string) (int, string, error) {
	gen, hash, ok := strings.Cut(rev, "-")
	if !ok || hash == "" {
		return 0, "", errors.Wrapf(ErrInvalidRev, "%q", rev)
	}
	n, err := strconv.Atoi(gen)
	if err != nil || n < 1 {
		return 0, "", errors.Wrapf(ErrInvalidRev, "%q has a bad generation", rev)
	}
	return n, hash, nil
}

// Generation returns the generation of rev, or 0 when rev is malformed.
func Generation(rev string) int {
	n, _, err := Parse(rev)
	if err != nil {
		return 0
	}
	return n
}

// Format builds a revision id.
func Format(gen int, hash string) string {
	return strconv.Itoa(gen) + "-" + hash
}

// Compare orders revision ids: the higher generation is greater, and equal
// generations compare as plain strings on the full id.
func Compare(a, b string) int {
	ga, gb := Generation(a), Generation(b)
	switch {
	case ga > gb:
		return 1
	case ga < gb:
		return -1
	}
	return strings.Compare(a, b)
}

// NewRevID derives the id of a child of parent from its content, so the same
// edit applied on two replicas produces the same id.
func NewRevID(parent string, deleted bool, body []byte) string {
	h := md5.New()
	h.Write([]byte(parent))
	if deleted {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write(body)
	return Format(Generation(parent)+1, hex.EncodeToString(h.Sum(nil)))
}

// Chain expands a revision history given as a start generation and hashes
// ordered newest first, the shape of the _revisions field.
func Chain(start int, ids []string) []string {
	chain := make([]string, 0, len(ids))
	for i, id := range ids {
		if start-i < 1 {
			break
		}
		chain = append(chain, Format(start-i, id))
	}
	return chain
}
