package revtree

// Resolution is the outcome of conflict resolution over a document's tree.
type Resolution struct {
	// Winner is the canonical current revision, empty for an empty tree.
	Winner string
	// Deleted reports whether the winner is a deletion.
	Deleted bool
	// Conflicts holds the losing leaves, best first. They stay in the tree
	// and remain replicable.
	Conflicts []string
}

// HasConflict returns true if more than one leaf exists.
func (r *Resolution) HasConflict() bool {
	return len(r.Conflicts) > 0
}

// Resolve picks the winning leaf. The order only looks at revision ids
// (generation first, then the id string), never at insertion order or at
// the deleted flag, so it is the same on every replica holding the same set.
func (t RevTree) Resolve() Resolution {
	leaves := t.Leaves()
	if len(leaves) == 0 {
		return Resolution{Conflicts: []string{}}
	}
	return Resolution{
		Winner:    leaves[0],
		Deleted:   t[leaves[0]].Deleted,
		Conflicts: leaves[1:],
	}
}

// Winner returns the id of the winning revision.
func (t RevTree) Winner() string {
	return t.Resolve().Winner
}

// PossibleAncestors returns the leaves with a lower generation than rev.
// A replicator uses them to send only the missing tail of a history.
func (t RevTree) PossibleAncestors(rev string) []string {
	gen := Generation(rev)
	var out []string
	for _, leaf := range t.Leaves() {
		if Generation(leaf) < gen {
			out = append(out, leaf)
		}
	}
	return out
}

// Keep returns the ids whose content must survive compaction: the winner and
// every ancestor of it.
func (t RevTree) Keep() map[string]bool {
	keep := make(map[string]bool)
	for _, id := range t.History(t.Winner()) {
		keep[id] = true
	}
	return keep
}
