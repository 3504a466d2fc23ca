package revtree

import (
	"sort"

	"github.com/pkg/errors"
)

var (
	// ErrMissingParent is returned when adding a revision whose parent is unknown.
	ErrMissingParent = errors.New("parent revision not in tree")
	// ErrExists is returned when adding a revision that is already present.
	ErrExists = errors.New("revision already in tree")
)

// RevInfo is one revision of a document. Parent is empty for revisions that
// start a branch.
type RevInfo struct {
	ID      string
	Parent  string
	Deleted bool
	// Stub marks revisions whose content is not held, either freed by
	// compaction or never received because only the id arrived in a history.
	Stub bool
}

// RevTree is the arena of a document's revisions keyed by id. Children point
// at parents by id; nothing points the other way.
type RevTree map[string]*RevInfo

// Contains reports whether rev is in the tree.
func (t RevTree) Contains(rev string) bool {
	_, ok := t[rev]
	return ok
}

// Parent returns the parent id of rev, empty for roots and unknown revisions.
func (t RevTree) Parent(rev string) string {
	if info, ok := t[rev]; ok {
		return info.Parent
	}
	return ""
}

// Add inserts a revision. The parent must already be present unless it is empty.
func (t RevTree) Add(info RevInfo) error {
	if t.Contains(info.ID) {
		return errors.Wrapf(ErrExists, "%s", info.ID)
	}
	if info.Parent != "" && !t.Contains(info.Parent) {
		return errors.Wrapf(ErrMissingParent, "%s (parent of %s)", info.Parent, info.ID)
	}
	rev := info
	t[info.ID] = &rev
	return nil
}

// History returns rev followed by its ancestors, newest first.
func (t RevTree) History(rev string) []string {
	var history []string
	for id := rev; id != ""; id = t.Parent(id) {
		if !t.Contains(id) {
			break
		}
		history = append(history, id)
	}
	return history
}

// IsLeaf reports whether rev is present and has no children.
func (t RevTree) IsLeaf(rev string) bool {
	if !t.Contains(rev) {
		return false
	}
	for _, info := range t {
		if info.Parent == rev {
			return false
		}
	}
	return true
}

// Leaves returns every revision without children, best first.
func (t RevTree) Leaves() []string {
	hasChild := make(map[string]bool, len(t))
	for _, info := range t {
		if info.Parent != "" {
			hasChild[info.Parent] = true
		}
	}

	leaves := make([]string, 0)
	for id := range t {
		if !hasChild[id] {
			leaves = append(leaves, id)
		}
	}
	sort.Slice(leaves, func(i, j int) bool {
		return Compare(leaves[i], leaves[j]) > 0
	})
	return leaves
}

// Copy returns an independent copy of the tree.
func (t RevTree) Copy() RevTree {
	out := make(RevTree, len(t))
	for id, info := range t {
		rev := *info
		out[id] = &rev
	}
	return out
}
