package store

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"gihan9a/treestore/internal/storage"
)

// ErrCompactRunning is returned when a compaction is already in progress.
var ErrCompactRunning = errors.New("compaction already running")

// Compact drops the content of every revision that is neither the winner
// nor one of its ancestors. Revision ids are kept so the tree stays
// complete for replication; conflicting leaves lose their bodies and read
// as missing afterwards. No sequence numbers are consumed.
func (s *Store) Compact() error {
	if !s.compacting.CompareAndSwap(false, true) {
		return ErrCompactRunning
	}
	defer s.compacting.Store(false)

	start := time.Now()
	var ids []string
	err := s.db.Docs(func(m *storage.DocMeta) error {
		ids = append(ids, m.ID)
		return nil
	})
	if err != nil {
		return storageErr(err)
	}

	var docs, revs int
	for _, id := range ids {
		n, err := s.compactDoc(id)
		if err != nil {
			log.WithError(err).WithField("doc", id).Error("Compaction failed")
			return err
		}
		if n > 0 {
			docs++
			revs += n
		}
	}
	log.WithFields(log.Fields{
		"docs":     docs,
		"revs":     revs,
		"duration": time.Since(start),
	}).Info("Compaction finished")
	return nil
}

// compactDoc stubs the dropped revisions of one document and returns how
// many it changed.
func (s *Store) compactDoc(id string) (int, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	doc, err := s.load(id)
	if err != nil {
		return 0, err
	}
	keep := doc.tree.Keep()

	batch := s.db.NewBatch()
	for rev, rec := range doc.recs {
		if keep[rev] || rec.Stub {
			continue
		}
		stub := *rec
		stub.Stub = true
		stub.Body = nil
		if err := batch.PutRev(&stub); err != nil {
			return 0, storageErr(err)
		}
	}
	if batch.Len() == 0 {
		return 0, nil
	}
	if err := s.db.Write(batch); err != nil {
		return 0, storageErr(err)
	}
	return batch.Len(), nil
}
