// Package store is the tree store core. It addresses documents by path,
// keeps a revision tree per document, resolves conflicts deterministically,
// ingests replicated revisions in bulk and assigns the change sequence used
// by replicators to discover new work.
//
// Writes to one document are serialized by a per-document lock. Writes to
// different documents run in parallel and only meet at the commit step,
// where the sequence number is allocated and the batch hits storage.
package store
