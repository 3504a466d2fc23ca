package store

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"gihan9a/treestore/internal/codec"
	"gihan9a/treestore/internal/revtree"
	"gihan9a/treestore/internal/storage"
)

// Store is the tree store core.
type Store struct {
	db       *storage.DB
	locks    *docLocks
	notifier *Notifier

	// commitMu serializes sequence allocation with the storage write so a
	// sequence is never published before its change is readable.
	commitMu sync.Mutex
	seq      atomic.Uint64

	compacting atomic.Bool
	started    time.Time
}

// Doc is a read view of one revision of a document.
type Doc struct {
	ID      string
	Rev     string
	Deleted bool
	// Node is the content at the requested path, nil for deletions.
	Node *codec.Node
	// Conflicts lists the losing leaves of the document.
	Conflicts []string
	// Revisions is the history of Rev, newest first.
	Revisions []string
}

// Open opens (or creates) a store whose data lives at path. An empty path
// keeps everything in memory.
func Open(path string) (*Store, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, storageErr(err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an opened database. The change sequence resumes from the value
// persisted in db.
func New(db *storage.DB) (*Store, error) {
	seq, err := db.UpdateSeq()
	if err != nil {
		return nil, storageErr(err)
	}
	s := &Store{
		db:       db,
		locks:    newDocLocks(),
		notifier: NewNotifier(),
		started:  time.Now(),
	}
	s.seq.Store(seq)
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpdateSeq returns the last committed sequence number.
func (s *Store) UpdateSeq() uint64 {
	return s.seq.Load()
}

// Started returns the time the store was opened.
func (s *Store) Started() time.Time {
	return s.started
}

// Subscribe registers for commit notifications.
func (s *Store) Subscribe() (<-chan uint64, func()) {
	return s.notifier.Subscribe()
}

// document is a loaded revision tree plus the records backing it.
type document struct {
	id   string
	meta *storage.DocMeta
	tree revtree.RevTree
	recs map[string]*storage.RevRecord
}

func (s *Store) load(id string) (*document, error) {
	recs, err := s.db.Revs(id)
	if err != nil {
		return nil, storageErr(err)
	}
	doc := &document{
		id:   id,
		tree: make(revtree.RevTree, len(recs)),
		recs: make(map[string]*storage.RevRecord, len(recs)),
	}
	for _, r := range recs {
		doc.tree[r.ID] = &revtree.RevInfo{ID: r.ID, Parent: r.Parent, Deleted: r.Deleted, Stub: r.Stub}
		doc.recs[r.ID] = r
	}

	meta, err := s.db.Meta(id)
	switch {
	case err == nil:
		doc.meta = meta
	case !errors.Is(err, storage.ErrNotFound):
		return nil, storageErr(err)
	}
	return doc, nil
}

// content returns the node stored for rev. Deletions have no content.
func (d *document) content(rev string) (*codec.Node, error) {
	rec, ok := d.recs[rev]
	if !ok || rec.Stub {
		return nil, errors.Wrapf(ErrNotFound, "content of %s/%s", d.id, rev)
	}
	if rec.Deleted || rec.Body == nil {
		return nil, nil
	}
	n, err := codec.Unmarshal(rec.Body)
	if err != nil {
		return nil, storageErr(err)
	}
	return n, nil
}

func docID(p codec.Path) (string, error) {
	id := p.DocID()
	if id == "" || strings.HasPrefix(id, "_") || strings.ContainsRune(id, 0) {
		return "", errors.Wrapf(ErrInvalidPath, "%q does not name a document", p.String())
	}
	return id, nil
}

// contentPath returns the part of p inside the document. The leaf key is
// reserved by the wire form and cannot name a field.
func contentPath(p codec.Path) (codec.Path, error) {
	rest := p.Rest()
	for _, seg := range rest {
		if seg == codec.LeafKey {
			return nil, errors.Wrapf(ErrInvalidPath, "%q uses the reserved key %s", p.String(), codec.LeafKey)
		}
	}
	return rest, nil
}

// commit writes new revision records for doc, re-resolves the winner and
// assigns the next sequence number.
func (s *Store) commit(doc *document, recs []*storage.RevRecord) error {
	res := doc.tree.Resolve()

	batch := s.db.NewBatch()
	for _, r := range recs {
		if err := batch.PutRev(r); err != nil {
			return storageErr(err)
		}
	}

	s.commitMu.Lock()
	seq := s.seq.Load() + 1
	var prev uint64
	if doc.meta != nil {
		prev = doc.meta.Seq
	}
	meta := &storage.DocMeta{ID: doc.id, Winner: res.Winner, Deleted: res.Deleted, Seq: seq}
	err := batch.Commit(meta, prev)
	if err == nil {
		err = s.db.Write(batch)
	}
	if err != nil {
		s.commitMu.Unlock()
		return storageErr(err)
	}
	s.seq.Store(seq)
	s.commitMu.Unlock()

	doc.meta = meta
	for _, r := range recs {
		doc.recs[r.ID] = r
	}
	if res.HasConflict() {
		log.WithFields(log.Fields{
			"doc":       doc.id,
			"winner":    res.Winner,
			"conflicts": res.Conflicts,
		}).Debug("Document has conflicting revisions")
	}
	s.notifier.Publish(seq)
	return nil
}

// edit appends a locally authored revision under parent.
func (s *Store) edit(doc *document, parent string, content *codec.Node, deleted bool) (string, error) {
	var body []byte
	if !deleted {
		var err error
		if body, err = json.Marshal(content); err != nil {
			return "", errors.Wrap(ErrInvalidEncoding, err.Error())
		}
	}
	rev := revtree.NewRevID(parent, deleted, body)
	info := revtree.RevInfo{ID: rev, Parent: parent, Deleted: deleted}
	if err := doc.tree.Add(info); err != nil {
		return "", errors.Wrapf(ErrConflict, "%s: %v", doc.id, err)
	}
	rec := &storage.RevRecord{Doc: doc.id, ID: rev, Parent: parent, Deleted: deleted, Body: body}
	if err := s.commit(doc, []*storage.RevRecord{rec}); err != nil {
		delete(doc.tree, rev)
		return "", err
	}
	return rev, nil
}

// Put writes n at p. The document is the first segment of p and parent must
// be its current winning revision (empty for a new document, or for one
// whose winner is a deletion). n is merged into the winning content at the
// rest of the path, so fields outside that sub-path are kept.
func (s *Store) Put(p codec.Path, n *codec.Node, parent string) (string, error) {
	id, err := docID(p)
	if err != nil {
		return "", err
	}
	rest, err := contentPath(p)
	if err != nil {
		return "", err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	doc, err := s.load(id)
	if err != nil {
		return "", err
	}

	res := doc.tree.Resolve()
	var base *codec.Node
	switch {
	case res.Winner == "":
		if parent != "" {
			return "", errors.Wrapf(ErrConflict, "%s does not exist, got rev %s", id, parent)
		}
	case parent == "" && res.Deleted:
		parent = res.Winner
	case parent != res.Winner:
		return "", errors.Wrapf(ErrConflict, "%s is at %s, got rev %q", id, res.Winner, parent)
	default:
		if base, err = doc.content(res.Winner); err != nil {
			return "", err
		}
	}

	rev, err := s.edit(doc, parent, base.Merge(rest, n), false)
	if err != nil {
		return "", err
	}
	log.Debugf("Put %s at %s", p, rev)
	return rev, nil
}

// Delete removes the node at p. An empty sub-path deletes the whole document
// by appending a deletion revision; otherwise the sub-node is dropped from a
// new revision, along with any branch the removal empties.
//
// Existence is checked before parent: a missing document or sub-path is
// ErrNotFound even when parent is stale, and ErrConflict is only returned
// for a path that exists in the winning revision.
func (s *Store) Delete(p codec.Path, parent string) (string, error) {
	id, err := docID(p)
	if err != nil {
		return "", err
	}
	rest, err := contentPath(p)
	if err != nil {
		return "", err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	doc, err := s.load(id)
	if err != nil {
		return "", err
	}

	res := doc.tree.Resolve()
	if res.Winner == "" || res.Deleted {
		return "", errors.Wrapf(ErrNotFound, "%s", id)
	}
	current, err := doc.content(res.Winner)
	if err != nil {
		return "", err
	}

	var remaining *codec.Node
	if len(rest) > 0 {
		var ok bool
		if remaining, ok = current.Remove(rest); !ok {
			return "", errors.Wrapf(ErrNotFound, "%s", p)
		}
	}
	if parent != res.Winner {
		return "", errors.Wrapf(ErrConflict, "%s is at %s, got rev %q", id, res.Winner, parent)
	}

	rev, err := s.edit(doc, parent, remaining, len(rest) == 0)
	if err != nil {
		return "", err
	}
	log.Debugf("Delete %s at %s", p, rev)
	return rev, nil
}

// Get reads the node at p from the winning revision, or from rev when given.
// A deleted winner reads as not found; an explicitly requested deletion is
// returned with Deleted set.
func (s *Store) Get(p codec.Path, rev string) (*Doc, error) {
	id := p.DocID()
	if id == "" {
		return nil, errors.Wrap(ErrNotFound, "root")
	}
	doc, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return doc.read(p.Rest(), rev)
}

func (d *document) read(rest codec.Path, rev string) (*Doc, error) {
	res := d.tree.Resolve()
	if res.Winner == "" {
		return nil, errors.Wrapf(ErrNotFound, "%s", d.id)
	}
	if rev == "" {
		if res.Deleted {
			return nil, errors.Wrapf(ErrNotFound, "%s is deleted", d.id)
		}
		rev = res.Winner
	}
	info, ok := d.tree[rev]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s has no revision %s", d.id, rev)
	}

	out := &Doc{
		ID:        d.id,
		Rev:       rev,
		Deleted:   info.Deleted,
		Conflicts: res.Conflicts,
		Revisions: d.tree.History(rev),
	}
	if info.Deleted {
		if len(rest) > 0 {
			return nil, errors.Wrapf(ErrNotFound, "%s is deleted at %s", d.id, rev)
		}
		return out, nil
	}

	content, err := d.content(rev)
	if err != nil {
		return nil, err
	}
	node, ok := content.Lookup(rest)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s/%s", d.id, strings.Join(rest, "/"))
	}
	out.Node = node
	return out, nil
}

// OpenRevs reads whole-document revisions. A nil revs reads every leaf.
// Revisions that are unknown or whose content was compacted away are
// returned in missing.
func (s *Store) OpenRevs(id string, revs []string) ([]*Doc, []string, error) {
	doc, err := s.load(id)
	if err != nil {
		return nil, nil, err
	}
	if revs == nil {
		revs = doc.tree.Leaves()
		if len(revs) == 0 {
			return nil, nil, errors.Wrapf(ErrNotFound, "%s", id)
		}
	}

	var (
		docs    []*Doc
		missing []string
	)
	for _, rev := range revs {
		d, err := doc.read(codec.Path{}, rev)
		switch {
		case err == nil:
			docs = append(docs, d)
		case errors.Is(err, ErrNotFound):
			missing = append(missing, rev)
		default:
			return nil, nil, err
		}
	}
	return docs, missing, nil
}
