// Package storage persists revision trees, document metadata, the
// by-sequence change index and _local documents in an ordered key-value
// byte store (goleveldb). Records are msgpack encoded; revision content is
// kept as the encoded JSON form of the node.
package storage
