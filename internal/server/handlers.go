package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"gihan9a/treestore/internal/codec"
	"gihan9a/treestore/internal/revtree"
	"gihan9a/treestore/internal/store"
	"gihan9a/treestore/pkg/couchproto"
)

// maxBodySize bounds request bodies.
const maxBodySize = 64 << 20

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("Error writing response")
	}
}

func errorBody(kind, reason string) couchproto.Error {
	return couchproto.Error{Error: kind, Reason: reason}
}

// errorKind maps an error to its HTTP status and protocol error name.
func errorKind(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, store.ErrMissingAncestor):
		return http.StatusPreconditionFailed, "missing_ancestor"
	case errors.Is(err, store.ErrInvalidEncoding),
		errors.Is(err, store.ErrInvalidPath),
		errors.Is(err, store.ErrInvalidRev),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := errorKind(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	}
	writeJSON(w, status, errorBody(kind, err.Error()))
}

func decodeJSON(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return errors.Wrap(store.ErrInvalidEncoding, err.Error())
	}
	if dec.More() {
		return errors.Wrap(store.ErrInvalidEncoding, "trailing data after JSON value")
	}
	return nil
}

func readJSON(r *http.Request, out any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	return decodeJSON(data, out)
}

func queryBool(r *http.Request, key string) bool {
	return r.URL.Query().Get(key) == "true"
}

// requestRev returns the revision a write is based on, from the rev query
// parameter or the If-Match header.
func requestRev(r *http.Request) string {
	if rev := r.URL.Query().Get("rev"); rev != "" {
		return rev
	}
	return strings.Trim(r.Header.Get("If-Match"), `"`)
}

func etag(rev string) string {
	return `"` + rev + `"`
}

// docFields are the reserved fields of a document body.
type docFields struct {
	id        string
	rev       string
	deleted   bool
	revisions []string
}

// splitReserved removes the reserved fields from a document body.
func splitReserved(obj map[string]any) (docFields, error) {
	var f docFields
	if v, ok := obj[couchproto.FieldID]; ok {
		s, ok := v.(string)
		if !ok {
			return f, errors.Wrap(errBadRequest, "_id must be a string")
		}
		f.id = s
	}
	if v, ok := obj[couchproto.FieldRev]; ok {
		s, ok := v.(string)
		if !ok {
			return f, errors.Wrap(errBadRequest, "_rev must be a string")
		}
		f.rev = s
	}
	if v, ok := obj[couchproto.FieldDeleted]; ok {
		b, ok := v.(bool)
		if !ok {
			return f, errors.Wrap(errBadRequest, "_deleted must be a boolean")
		}
		f.deleted = b
	}
	if v, ok := obj[couchproto.FieldRevisions]; ok {
		data, err := json.Marshal(v)
		if err != nil {
			return f, errors.Wrap(errBadRequest, err.Error())
		}
		var revs couchproto.Revisions
		if err := json.Unmarshal(data, &revs); err != nil {
			return f, errors.Wrapf(errBadRequest, "_revisions: %v", err)
		}
		f.revisions = revtree.Chain(revs.Start, revs.IDs)
	}
	for _, k := range []string{
		couchproto.FieldID,
		couchproto.FieldRev,
		couchproto.FieldDeleted,
		couchproto.FieldRevisions,
		couchproto.FieldConflicts,
		couchproto.FieldLocalSeq,
	} {
		delete(obj, k)
	}
	return f, nil
}

// revisions builds the _revisions field from a history, newest first.
func revisions(history []string) couchproto.Revisions {
	revs := couchproto.Revisions{IDs: make([]string, 0, len(history))}
	for i, rev := range history {
		gen, hash, err := revtree.Parse(rev)
		if err != nil {
			continue
		}
		if i == 0 {
			revs.Start = gen
		}
		revs.IDs = append(revs.IDs, hash)
	}
	return revs
}

type bodyOptions struct {
	encoded   bool
	revs      bool
	conflicts bool
}

func readBodyOptions(r *http.Request) bodyOptions {
	return bodyOptions{
		encoded:   queryBool(r, "encoded"),
		revs:      queryBool(r, "revs"),
		conflicts: queryBool(r, "conflicts"),
	}
}

// nodeValue renders n as plain JSON, or in its wire form when encoded.
func nodeValue(n *codec.Node, encoded bool) any {
	if encoded {
		return n
	}
	return codec.Decode(n)
}

// docBody renders a whole document with its reserved fields.
func docBody(d *store.Doc, opts bodyOptions) map[string]any {
	body := make(map[string]any)
	switch {
	case d.Deleted:
		body[couchproto.FieldDeleted] = true
	case d.Node.IsBranch():
		for _, k := range d.Node.Keys() {
			c, _ := d.Node.Child(k)
			body[k] = nodeValue(c, opts.encoded)
		}
	case d.Node != nil:
		body[codec.LeafKey] = d.Node.Value()
	}
	body[couchproto.FieldID] = d.ID
	body[couchproto.FieldRev] = d.Rev
	if opts.revs {
		body[couchproto.FieldRevisions] = revisions(d.Revisions)
	}
	if opts.conflicts && len(d.Conflicts) > 0 {
		body[couchproto.FieldConflicts] = d.Conflicts
	}
	return body
}

func requestPath(r *http.Request) codec.Path {
	return codec.ParsePath(mux.Vars(r)["path"])
}

// handleGet serves the node at a path of the winning (or requested) revision.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	p := requestPath(r)
	q := r.URL.Query()

	if r.Header.Get("Subscribe") != "" {
		s.handleSubscribe(w, r, p)
		return
	}
	if openRevs := q.Get("open_revs"); openRevs != "" && len(p) == 1 {
		s.handleOpenRevs(w, r, p.DocID(), openRevs)
		return
	}

	d, err := s.store.Get(p, q.Get("rev"))
	if err != nil {
		writeError(w, err)
		return
	}
	opts := readBodyOptions(r)
	w.Header().Set("ETag", etag(d.Rev))

	if len(p.Rest()) > 0 {
		writeJSON(w, http.StatusOK, nodeValue(d.Node, opts.encoded))
		return
	}
	writeJSON(w, http.StatusOK, docBody(d, opts))
}

func (s *Server) handleOpenRevs(w http.ResponseWriter, r *http.Request, id, param string) {
	var revs []string
	if param != "all" {
		if err := decodeJSON([]byte(param), &revs); err != nil {
			writeError(w, err)
			return
		}
	}

	docs, missing, err := s.store.OpenRevs(id, revs)
	if err != nil {
		writeError(w, err)
		return
	}
	opts := readBodyOptions(r)
	out := make([]couchproto.OpenRev, 0, len(docs)+len(missing))
	for _, d := range docs {
		out = append(out, couchproto.OpenRev{OK: docBody(d, opts)})
	}
	for _, rev := range missing {
		out = append(out, couchproto.OpenRev{Missing: rev})
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePut merges the request body into the tree at the request path.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	p := requestPath(r)

	var v any
	if err := readJSON(r, &v); err != nil {
		writeError(w, err)
		return
	}

	rev := requestRev(r)
	if obj, ok := v.(map[string]any); ok && len(p) == 1 {
		fields, err := splitReserved(obj)
		if err != nil {
			writeError(w, err)
			return
		}
		if rev == "" {
			rev = fields.rev
		}
		if fields.deleted {
			s.deleteAt(w, p, rev)
			return
		}
	}

	n, err := codec.Encode(v)
	if err != nil {
		writeError(w, err)
		return
	}
	newRev, err := s.store.Put(p, n, rev)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("ETag", etag(newRev))
	writeJSON(w, http.StatusCreated, couchproto.DocResult{OK: true, ID: p.DocID(), Rev: newRev})
}

// handlePost stores the body under a generated key. At the root that key is
// a new document id (or the body's _id); below it the key names a new field
// of the addressed node and is returned as id.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	p := requestPath(r)

	var v any
	if err := readJSON(r, &v); err != nil {
		writeError(w, err)
		return
	}

	key := store.NewDocID()
	rev := requestRev(r)
	if obj, ok := v.(map[string]any); ok && len(p) == 0 {
		fields, err := splitReserved(obj)
		if err != nil {
			writeError(w, err)
			return
		}
		if fields.deleted {
			writeError(w, errors.Wrap(errBadRequest, "a new document cannot be a deletion"))
			return
		}
		if fields.id != "" {
			key = fields.id
		}
		if rev == "" {
			rev = fields.rev
		}
	}

	n, err := codec.Encode(v)
	if err != nil {
		writeError(w, err)
		return
	}
	target := p.Child(key)
	newRev, err := s.store.Put(target, n, rev)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("ETag", etag(newRev))
	w.Header().Set("Location", target.String())
	writeJSON(w, http.StatusCreated, couchproto.DocResult{OK: true, ID: key, Rev: newRev})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.deleteAt(w, requestPath(r), requestRev(r))
}

func (s *Server) deleteAt(w http.ResponseWriter, p codec.Path, rev string) {
	newRev, err := s.store.Delete(p, rev)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("ETag", etag(newRev))
	writeJSON(w, http.StatusOK, couchproto.DocResult{OK: true, ID: p.DocID(), Rev: newRev})
}
