package codec

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// LeafKey is the single field of a wrapped leaf.
const LeafKey = "_val"

// ErrInvalidEncoding is returned for malformed leaf wrapping or values that
// have no JSON representation.
var ErrInvalidEncoding = errors.New("invalid encoding")

// Kind tags the variant held by a Node.
type Kind uint8

const (
	// KindBranch is a mapping from segment to child node.
	KindBranch Kind = iota
	// KindLeaf is a single wrapped scalar.
	KindLeaf
)

func (k Kind) String() string {
	switch k {
	case KindBranch:
		return "branch"
	case KindLeaf:
		return "leaf"
	}
	return "unknown"
}

// Node is a value at some path. Nodes are never mutated once built; the tree
// operations below return modified copies and share untouched children.
type Node struct {
	kind     Kind
	value    any
	children map[string]*Node
}

// NewBranch returns an empty branch.
func NewBranch() *Node {
	return &Node{kind: KindBranch, children: make(map[string]*Node)}
}

// NewLeaf wraps a scalar. Objects, arrays and unknown types are rejected.
func NewLeaf(v any) (*Node, error) {
	if !isScalar(v) {
		return nil, errors.Wrapf(ErrInvalidEncoding, "%T is not a scalar", v)
	}
	return &Node{kind: KindLeaf, value: v}, nil
}

// Kind reports which variant n holds.
func (n *Node) Kind() Kind { return n.kind }

// IsBranch reports whether n is a branch.
func (n *Node) IsBranch() bool { return n != nil && n.kind == KindBranch }

// Value returns the scalar held by a leaf, nil for branches.
func (n *Node) Value() any {
	if n.kind != KindLeaf {
		return nil
	}
	return n.value
}

// Len returns the number of children of a branch.
func (n *Node) Len() int { return len(n.children) }

// Child returns the child stored under key.
func (n *Node) Child(key string) (*Node, bool) {
	if n.kind != KindBranch {
		return nil, false
	}
	c, ok := n.children[key]
	return c, ok
}

// Keys returns the sorted child segments of a branch.
func (n *Node) Keys() []string {
	keys := make([]string, 0, len(n.children))
	for k := range n.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// With returns a copy of the branch n with key set to child.
func (n *Node) With(key string, child *Node) *Node {
	out := n.shallowCopy()
	out.children[key] = child
	return out
}

func (n *Node) shallowCopy() *Node {
	out := &Node{kind: KindBranch, children: make(map[string]*Node, len(n.children)+1)}
	for k, c := range n.children {
		out.children[k] = c
	}
	return out
}

// Encode converts a decoded JSON value into a node. Objects and arrays
// become branches (array indices are stringified), scalars become leaves,
// and an object whose only key is "_val" is taken as an already wrapped leaf.
func Encode(v any) (*Node, error) {
	switch val := v.(type) {
	case map[string]any:
		if wrapped, ok := val[LeafKey]; ok {
			if len(val) != 1 {
				return nil, errors.Wrapf(ErrInvalidEncoding, "%q must be the only key of a leaf", LeafKey)
			}
			return NewLeaf(wrapped)
		}
		n := NewBranch()
		for k, c := range val {
			child, err := Encode(c)
			if err != nil {
				return nil, errors.WithMessagef(err, "at %q", k)
			}
			n.children[k] = child
		}
		return n, nil
	case []any:
		n := NewBranch()
		for i, c := range val {
			child, err := Encode(c)
			if err != nil {
				return nil, errors.WithMessagef(err, "at index %d", i)
			}
			n.children[strconv.Itoa(i)] = child
		}
		return n, nil
	default:
		return NewLeaf(v)
	}
}

// Decode converts a node back into a plain JSON value: branches become
// objects keyed by segment and leaves become their scalar.
func Decode(n *Node) any {
	if n == nil {
		return nil
	}
	if n.kind == KindLeaf {
		return n.value
	}
	out := make(map[string]any, len(n.children))
	for k, c := range n.children {
		out[k] = Decode(c)
	}
	return out
}

// Unmarshal parses JSON text into a node. Numbers keep their textual form.
func Unmarshal(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(ErrInvalidEncoding, err.Error())
	}
	if dec.More() {
		return nil, errors.Wrap(ErrInvalidEncoding, "trailing data after JSON value")
	}
	return Encode(v)
}

// wire returns the encoded representation, with every leaf wrapped.
func (n *Node) wire() any {
	if n.kind == KindLeaf {
		return map[string]any{LeafKey: n.value}
	}
	out := make(map[string]any, len(n.children))
	for k, c := range n.children {
		out[k] = c.wire()
	}
	return out
}

// MarshalJSON writes the encoded form. Object keys come out sorted, which
// makes the output usable as hashing input.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.wire())
}

// UnmarshalJSON reads either the encoded form or plain JSON.
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := Unmarshal(data)
	if err != nil {
		return err
	}
	*n = *parsed
	return nil
}

// Equal reports whether two trees hold the same structure and values.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.kind != b.kind {
		return false
	}
	if a.kind == KindLeaf {
		return scalarEqual(a.value, b.value)
	}
	if len(a.children) != len(b.children) {
		return false
	}
	for k, ac := range a.children {
		bc, ok := b.children[k]
		if !ok || !Equal(ac, bc) {
			return false
		}
	}
	return true
}

func scalarEqual(a, b any) bool {
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if aok && bok {
		return an == bn
	}
	return a == b
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case uint32:
		return float64(x), true
	}
	return 0, false
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, json.Number:
		return true
	}
	_, ok := toNumber(v)
	return ok
}
