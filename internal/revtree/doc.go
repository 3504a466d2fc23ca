// Package revtree holds the per-document revision tree and the conflict
// resolution rules that pick a deterministic winning revision among its
// leaves, so replicas that saw the same revisions in any order converge.
package revtree
