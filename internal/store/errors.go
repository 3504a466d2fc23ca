package store

import (
	"github.com/pkg/errors"

	"gihan9a/treestore/internal/codec"
	"gihan9a/treestore/internal/revtree"
)

var (
	// ErrNotFound is returned when a path, document or revision is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when the stated parent is not the current
	// winning revision. Callers may re-read and retry.
	ErrConflict = errors.New("document update conflict")
	// ErrMissingAncestor is returned for a replicated revision whose parent
	// never arrived.
	ErrMissingAncestor = errors.New("missing ancestor")
	// ErrInvalidPath is returned for writes outside any document.
	ErrInvalidPath = errors.New("invalid path")
	// ErrStorage wraps failures of the underlying byte store.
	ErrStorage = errors.New("storage failure")

	// ErrInvalidEncoding is the codec's error for malformed values.
	ErrInvalidEncoding = codec.ErrInvalidEncoding
	// ErrInvalidRev is returned for malformed revision ids.
	ErrInvalidRev = revtree.ErrInvalidRev
)

func storageErr(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithMessage(ErrStorage, err.Error())
}
