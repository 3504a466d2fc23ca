package store

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"gihan9a/treestore/internal/codec"
	"gihan9a/treestore/internal/revtree"
	"gihan9a/treestore/internal/storage"
)

// Record is one document of a bulk write.
type Record struct {
	ID string
	// Rev is the parent revision when new edits are generated, and the
	// revision itself when replaying replicated history.
	Rev string
	// Revisions is the ancestry of Rev, newest first and starting with Rev.
	// It is optional and only read when replaying.
	Revisions []string
	Deleted   bool
	Node      *codec.Node
}

// Result is the outcome of one record. Err is nil on success.
type Result struct {
	ID  string
	Rev string
	Err error
}

// NewDocID returns a fresh document id.
func NewDocID() string {
	return strings.ToLower(ulid.Make().String())
}

// BulkApply applies records independently; one record failing never affects
// another. With newEdits each record is an ordinary put or delete at the
// document root. Without it, records are replicated revisions inserted
// verbatim: records whose parent is not yet known are retried once after
// the rest of the batch, then fail with ErrMissingAncestor.
func (s *Store) BulkApply(records []Record, newEdits bool) []Result {
	results := make([]Result, len(records))

	if newEdits {
		for i, r := range records {
			results[i] = s.applyEdit(r)
		}
		return results
	}

	var deferred []int
	for i, r := range records {
		res, retry := s.ingest(r, false)
		if retry {
			deferred = append(deferred, i)
			continue
		}
		results[i] = res
	}
	// parents before children, so a chain deferred several levels deep
	// resolves in one pass whatever order the batch arrived in
	sort.SliceStable(deferred, func(a, b int) bool {
		return revtree.Generation(records[deferred[a]].Rev) < revtree.Generation(records[deferred[b]].Rev)
	})
	for _, i := range deferred {
		results[i], _ = s.ingest(records[i], true)
	}
	if len(deferred) > 0 {
		log.Debugf("Bulk ingest retried %d of %d records", len(deferred), len(records))
	}
	return results
}

func (s *Store) applyEdit(r Record) Result {
	if r.ID == "" {
		r.ID = NewDocID()
	}
	res := Result{ID: r.ID}
	p := codec.Path{r.ID}

	if r.Deleted {
		res.Rev, res.Err = s.Delete(p, r.Rev)
		return res
	}
	n := r.Node
	if n == nil {
		n = codec.NewBranch()
	}
	res.Rev, res.Err = s.Put(p, n, r.Rev)
	return res
}

// ingest inserts one replicated revision. The second result asks for a
// retry because no ancestor is known yet and final is false.
func (s *Store) ingest(r Record, final bool) (Result, bool) {
	res := Result{ID: r.ID, Rev: r.Rev}
	if _, err := docID(codec.Path{r.ID}); err != nil {
		res.Err = err
		return res, false
	}
	chain, err := ingestChain(r)
	if err != nil {
		res.Err = err
		return res, false
	}

	unlock := s.locks.Lock(r.ID)
	defer unlock()

	doc, err := s.load(r.ID)
	if err != nil {
		res.Err = err
		return res, false
	}
	if info, ok := doc.tree[r.Rev]; ok {
		if info.Stub && doc.recs[r.Rev] != nil {
			res.Err = s.fillStub(doc, r)
		}
		return res, false
	}

	// Find the newest ancestor already present. Everything newer than it
	// gets inserted, oldest first.
	known := -1
	for i, rev := range chain {
		if doc.tree.Contains(rev) {
			known = i
			break
		}
	}
	insert := chain
	switch {
	case known > 0:
		insert = chain[:known]
	case revtree.Generation(chain[len(chain)-1]) == 1, len(chain) == 1:
		// rooted at generation 1, or no parent named at all: a new branch
	case !final:
		return res, true
	default:
		res.Err = errors.Wrapf(ErrMissingAncestor, "%s: %s", r.ID, chain[1])
		return res, false
	}

	body, err := recordBody(r)
	if err != nil {
		res.Err = err
		return res, false
	}

	recs := make([]*storage.RevRecord, 0, len(insert))
	for i := len(insert) - 1; i >= 0; i-- {
		rec := &storage.RevRecord{Doc: r.ID, ID: insert[i]}
		if i+1 < len(chain) {
			rec.Parent = chain[i+1]
		}
		if i == 0 {
			rec.Deleted = r.Deleted
			rec.Body = body
		} else {
			rec.Stub = true
		}
		if err := doc.tree.Add(revtree.RevInfo{ID: rec.ID, Parent: rec.Parent, Deleted: rec.Deleted, Stub: rec.Stub}); err != nil {
			res.Err = errors.Wrapf(ErrMissingAncestor, "%s: %v", r.ID, err)
			return res, false
		}
		recs = append(recs, rec)
	}

	if err := s.commit(doc, recs); err != nil {
		res.Err = err
	}
	return res, false
}

// fillStub stores the content of a revision that was so far only known by
// id from the history of a descendant.
func (s *Store) fillStub(doc *document, r Record) error {
	body, err := recordBody(r)
	if err != nil {
		return err
	}
	rec := *doc.recs[r.Rev]
	rec.Stub = false
	rec.Deleted = r.Deleted
	rec.Body = body

	info := doc.tree[r.Rev]
	prev := *info
	info.Stub = false
	info.Deleted = r.Deleted
	if err := s.commit(doc, []*storage.RevRecord{&rec}); err != nil {
		*info = prev
		return err
	}
	return nil
}

func recordBody(r Record) ([]byte, error) {
	if r.Deleted {
		return nil, nil
	}
	n := r.Node
	if n == nil {
		n = codec.NewBranch()
	}
	body, err := json.Marshal(n)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidEncoding, err.Error())
	}
	return body, nil
}

// ingestChain validates the revision ids of a replicated record and returns
// its ancestry, newest first.
func ingestChain(r Record) ([]string, error) {
	gen, _, err := revtree.Parse(r.Rev)
	if err != nil {
		return nil, err
	}
	if len(r.Revisions) == 0 {
		return []string{r.Rev}, nil
	}
	if r.Revisions[0] != r.Rev {
		return nil, errors.Wrapf(ErrInvalidRev, "history of %s starts at %s", r.Rev, r.Revisions[0])
	}
	for i, rev := range r.Revisions {
		if g, _, err := revtree.Parse(rev); err != nil || g != gen-i {
			return nil, errors.Wrapf(ErrInvalidRev, "history of %s has %q at position %d", r.Rev, rev, i)
		}
	}
	return r.Revisions, nil
}
