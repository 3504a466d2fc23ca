package store

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"gihan9a/treestore/internal/storage"
)

// LocalDoc is a non-replicated document. Replicators keep their checkpoints
// in these.
type LocalDoc struct {
	ID   string
	Rev  string
	Body json.RawMessage
}

func localRev(n int) string {
	return "0-" + strconv.Itoa(n)
}

func localGen(rev string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(rev, "0-"))
	if err != nil {
		return 0
	}
	return n
}

// GetLocal reads a local document.
func (s *Store) GetLocal(id string) (*LocalDoc, error) {
	l, err := s.db.Local(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "_local/%s", id)
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return &LocalDoc{ID: l.ID, Rev: l.Rev, Body: l.Body}, nil
}

// PutLocal writes a local document. A stated rev must match the stored one;
// an empty rev always overwrites. Local writes never touch the change feed.
func (s *Store) PutLocal(id, rev string, body json.RawMessage) (string, error) {
	if id == "" {
		return "", errors.Wrap(ErrInvalidPath, "empty local document id")
	}
	if !json.Valid(body) {
		return "", errors.Wrapf(ErrInvalidEncoding, "_local/%s is not valid JSON", id)
	}
	unlock := s.locks.Lock("_local/" + id)
	defer unlock()

	var gen int
	l, err := s.db.Local(id)
	switch {
	case err == nil:
		if rev != "" && rev != l.Rev {
			return "", errors.Wrapf(ErrConflict, "_local/%s is at %s, got rev %s", id, l.Rev, rev)
		}
		gen = localGen(l.Rev)
	case !errors.Is(err, storage.ErrNotFound):
		return "", storageErr(err)
	}

	next := localRev(gen + 1)
	if err := s.db.PutLocal(&storage.LocalDoc{ID: id, Rev: next, Body: body}); err != nil {
		return "", storageErr(err)
	}
	return next, nil
}

// DeleteLocal removes a local document.
func (s *Store) DeleteLocal(id, rev string) error {
	unlock := s.locks.Lock("_local/" + id)
	defer unlock()

	l, err := s.db.Local(id)
	if errors.Is(err, storage.ErrNotFound) {
		return errors.Wrapf(ErrNotFound, "_local/%s", id)
	}
	if err != nil {
		return storageErr(err)
	}
	if rev != "" && rev != l.Rev {
		return errors.Wrapf(ErrConflict, "_local/%s is at %s, got rev %s", id, l.Rev, rev)
	}
	return storageErr(s.db.DeleteLocal(id))
}
