package codec

// Lookup walks p below n. It fails when a segment is absent or when a leaf
// is reached while segments remain.
func (n *Node) Lookup(p Path) (*Node, bool) {
	cur := n
	for _, seg := range p {
		if cur == nil || cur.kind != KindBranch {
			return nil, false
		}
		next, ok := cur.children[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, cur != nil
}

// Merge returns a copy of n with sub written at p. When both the existing
// node at p and sub are branches they merge key-wise: keys of sub replace or
// extend those of the existing branch, other keys are kept. Any other
// combination overwrites. Missing intermediate branches are created, and a
// leaf in the way is replaced by a branch.
func (n *Node) Merge(p Path, sub *Node) *Node {
	if len(p) == 0 {
		if n.IsBranch() && sub.IsBranch() {
			out := n.shallowCopy()
			for k, c := range sub.children {
				out.children[k] = c
			}
			return out
		}
		return sub
	}

	var out *Node
	if n.IsBranch() {
		out = n.shallowCopy()
	} else {
		out = NewBranch()
	}
	out.children[p[0]] = out.children[p[0]].Merge(p[1:], sub)
	return out
}

// Remove returns a copy of n without the node at p. Branches left empty by
// the removal are dropped from their parents on the way up; the root itself
// is kept even when empty. The second result is false when p does not exist.
func (n *Node) Remove(p Path) (*Node, bool) {
	if len(p) == 0 || !n.IsBranch() {
		return n, false
	}
	child, ok := n.children[p[0]]
	if !ok {
		return n, false
	}

	out := n.shallowCopy()
	if len(p) == 1 {
		delete(out.children, p[0])
		return out, true
	}

	replaced, ok := child.Remove(p[1:])
	if !ok {
		return n, false
	}
	if replaced.IsBranch() && replaced.Len() == 0 {
		delete(out.children, p[0])
	} else {
		out.children[p[0]] = replaced
	}
	return out, true
}
