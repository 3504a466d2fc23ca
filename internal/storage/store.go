package storage

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/vmihailenco/msgpack"
)

// ErrNotFound is returned when a key is absent.
var ErrNotFound = errors.New("not found")

const (
	revPrefix   = "r!"
	docPrefix   = "d!"
	seqPrefix   = "s!"
	localPrefix = "l!"
	updateSeq   = "m!update_seq"
)

// RevRecord is one stored revision. Body holds the encoded node and is nil
// for deletions and stubs.
type RevRecord struct {
	Doc     string `msgpack:"doc"`
	ID      string `msgpack:"id"`
	Parent  string `msgpack:"parent,omitempty"`
	Deleted bool   `msgpack:"deleted,omitempty"`
	Stub    bool   `msgpack:"stub,omitempty"`
	Body    []byte `msgpack:"body,omitempty"`
}

// DocMeta caches the resolved state of a document and the sequence of its
// latest change.
type DocMeta struct {
	ID      string `msgpack:"id"`
	Winner  string `msgpack:"winner"`
	Deleted bool   `msgpack:"deleted,omitempty"`
	Seq     uint64 `msgpack:"seq"`
}

// Change is one entry of the by-sequence index.
type Change struct {
	Seq     uint64 `msgpack:"seq"`
	Doc     string `msgpack:"doc"`
	Rev     string `msgpack:"rev"`
	Deleted bool   `msgpack:"deleted,omitempty"`
}

// LocalDoc is a non-replicated document such as a replication checkpoint.
type LocalDoc struct {
	ID   string `msgpack:"id"`
	Rev  string `msgpack:"rev"`
	Body []byte `msgpack:"body"`
}

// DB wraps a leveldb database with the tree store key layout.
type DB struct {
	ldb *leveldb.DB
}

// Open opens the database at path, creating it if needed. An empty path
// opens a memory-backed database that is discarded on Close.
func Open(path string) (*DB, error) {
	var (
		ldb *leveldb.DB
		err error
	)
	if path == "" {
		ldb, err = leveldb.Open(lvlstorage.NewMemStorage(), nil)
	} else {
		ldb, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open leveldb at %q", path)
	}
	return &DB{ldb: ldb}, nil
}

// Close releases the database.
func (db *DB) Close() error {
	return db.ldb.Close()
}

func revKey(doc, rev string) []byte {
	return []byte(revPrefix + doc + "\x00" + rev)
}

func revDocPrefix(doc string) []byte {
	return []byte(revPrefix + doc + "\x00")
}

func docKey(doc string) []byte {
	return []byte(docPrefix + doc)
}

func localKey(id string) []byte {
	return []byte(localPrefix + id)
}

func seqKey(seq uint64) []byte {
	key := make([]byte, len(seqPrefix)+8)
	copy(key, seqPrefix)
	binary.BigEndian.PutUint64(key[len(seqPrefix):], seq)
	return key
}

func (db *DB) get(key []byte, out any) error {
	data, err := db.ldb.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "get %q", key)
	}
	if err := msgpack.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "decode %q", key)
	}
	return nil
}

// Meta returns the metadata of doc.
func (db *DB) Meta(doc string) (*DocMeta, error) {
	var m DocMeta
	if err := db.get(docKey(doc), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Rev returns a single revision of doc.
func (db *DB) Rev(doc, rev string) (*RevRecord, error) {
	var r RevRecord
	if err := db.get(revKey(doc, rev), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Revs returns every stored revision of doc.
func (db *DB) Revs(doc string) ([]*RevRecord, error) {
	iter := db.ldb.NewIterator(util.BytesPrefix(revDocPrefix(doc)), nil)
	defer iter.Release()

	var revs []*RevRecord
	for iter.Next() {
		var r RevRecord
		if err := msgpack.Unmarshal(iter.Value(), &r); err != nil {
			return nil, errors.Wrapf(err, "decode revision %q", iter.Key())
		}
		revs = append(revs, &r)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrapf(err, "scan revisions of %q", doc)
	}
	return revs, nil
}

// Docs calls fn for every document in id order. Iteration stops at the
// first error fn returns.
func (db *DB) Docs(fn func(*DocMeta) error) error {
	iter := db.ldb.NewIterator(util.BytesPrefix([]byte(docPrefix)), nil)
	defer iter.Release()

	for iter.Next() {
		var m DocMeta
		if err := msgpack.Unmarshal(iter.Value(), &m); err != nil {
			return errors.Wrapf(err, "decode document %q", iter.Key())
		}
		if err := fn(&m); err != nil {
			return err
		}
	}
	return errors.Wrap(iter.Error(), "scan documents")
}

// Changes lists index entries after since in sequence order (or reverse
// order when descending). A limit of zero means no limit.
func (db *DB) Changes(since uint64, descending bool, limit int) ([]Change, error) {
	iter := db.ldb.NewIterator(util.BytesPrefix([]byte(seqPrefix)), nil)
	defer iter.Release()

	var ok bool
	if descending {
		ok = iter.Last()
	} else {
		ok = iter.Seek(seqKey(since + 1))
	}

	changes := make([]Change, 0)
	for ; ok; ok = advance(iter, descending) {
		var c Change
		if err := msgpack.Unmarshal(iter.Value(), &c); err != nil {
			return nil, errors.Wrapf(err, "decode change %x", iter.Key())
		}
		if descending && c.Seq <= since {
			break
		}
		changes = append(changes, c)
		if limit > 0 && len(changes) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "scan changes")
	}
	return changes, nil
}

func advance(iter iterator.Iterator, descending bool) bool {
	if descending {
		return iter.Prev()
	}
	return iter.Next()
}

// UpdateSeq returns the last committed sequence number.
func (db *DB) UpdateSeq() (uint64, error) {
	data, err := db.ldb.Get([]byte(updateSeq), nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read update sequence")
	}
	if len(data) != 8 {
		return 0, errors.Errorf("corrupt update sequence of %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// Local returns a _local document.
func (db *DB) Local(id string) (*LocalDoc, error) {
	var l LocalDoc
	if err := db.get(localKey(id), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// PutLocal stores a _local document.
func (db *DB) PutLocal(l *LocalDoc) error {
	data, err := msgpack.Marshal(l)
	if err != nil {
		return errors.Wrapf(err, "encode local document %q", l.ID)
	}
	return errors.Wrapf(db.ldb.Put(localKey(l.ID), data, nil), "put local document %q", l.ID)
}

// DeleteLocal removes a _local document.
func (db *DB) DeleteLocal(id string) error {
	return errors.Wrapf(db.ldb.Delete(localKey(id), nil), "delete local document %q", id)
}

// Batch collects writes that are applied atomically by Write.
type Batch struct {
	b *leveldb.Batch
}

// NewBatch starts an empty batch.
func (db *DB) NewBatch() *Batch {
	return &Batch{b: new(leveldb.Batch)}
}

// Len returns the number of queued operations.
func (b *Batch) Len() int {
	return b.b.Len()
}

// PutRev queues a revision record.
func (b *Batch) PutRev(r *RevRecord) error {
	data, err := msgpack.Marshal(r)
	if err != nil {
		return errors.Wrapf(err, "encode revision %s of %q", r.ID, r.Doc)
	}
	b.b.Put(revKey(r.Doc, r.ID), data)
	return nil
}

// Commit queues the new document metadata together with its change entry
// and the update sequence. The change entry of prevSeq, if any, is removed
// so each document appears once in the index, at its latest sequence.
func (b *Batch) Commit(m *DocMeta, prevSeq uint64) error {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return errors.Wrapf(err, "encode document %q", m.ID)
	}
	change, err := msgpack.Marshal(&Change{Seq: m.Seq, Doc: m.ID, Rev: m.Winner, Deleted: m.Deleted})
	if err != nil {
		return errors.Wrapf(err, "encode change %d", m.Seq)
	}

	if prevSeq > 0 {
		b.b.Delete(seqKey(prevSeq))
	}
	b.b.Put(docKey(m.ID), data)
	b.b.Put(seqKey(m.Seq), change)

	seq := make([]byte, 8)
	binary.BigEndian.PutUint64(seq, m.Seq)
	b.b.Put([]byte(updateSeq), seq)
	return nil
}

// Write applies a batch atomically.
func (db *DB) Write(b *Batch) error {
	return errors.Wrap(db.ldb.Write(b.b, nil), "write batch")
}
