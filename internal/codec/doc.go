// Package codec maps arbitrary JSON values onto the tree representation used
// by the store. Every node is either a Branch (a mapping from segment to child
// node, used for objects and arrays) or a Leaf holding a single scalar. On the
// wire a Leaf is written as {"_val": scalar} so it can never be confused with
// a Branch, which is what lets bare scalars live at a document root.
package codec
