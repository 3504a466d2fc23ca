package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"gihan9a/treestore/internal/codec"
	"gihan9a/treestore/internal/store"
	"gihan9a/treestore/pkg/couchproto"
)

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.Info()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, couchproto.DBInfo{
		DBName:            s.config.Name,
		UpdateSeq:         info.UpdateSeq,
		DocCount:          info.DocCount,
		DocDelCount:       info.DocDelCount,
		InstanceStartTime: s.instanceStartTime(),
		CompactRunning:    info.CompactRunning,
		DiskFormatVersion: 1,
	})
}

func (s *Server) handleEnsureFullCommit(w http.ResponseWriter, r *http.Request) {
	// every commit is already a synchronous leveldb batch
	writeJSON(w, http.StatusCreated, couchproto.OK{OK: true, InstanceStartTime: s.instanceStartTime()})
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := s.store.Compact(); err != nil && !errors.Is(err, store.ErrCompactRunning) {
			log.WithError(err).Error("Compaction failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, couchproto.OK{OK: true})
}

// parseRecord turns one _bulk_docs entry into a store record.
func parseRecord(raw json.RawMessage) (store.Record, error) {
	var rec store.Record
	var v any
	if err := decodeJSON(raw, &v); err != nil {
		return rec, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return rec, errors.Wrap(errBadRequest, "document must be an object")
	}
	fields, err := splitReserved(obj)
	if err != nil {
		return rec, err
	}
	rec.ID = fields.id
	rec.Rev = fields.rev
	rec.Deleted = fields.deleted
	rec.Revisions = fields.revisions
	if !rec.Deleted {
		if rec.Node, err = codec.Encode(obj); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

func resultFor(id, rev string, err error) couchproto.DocResult {
	if err == nil {
		return couchproto.DocResult{OK: true, ID: id, Rev: rev}
	}
	_, kind := errorKind(err)
	return couchproto.DocResult{ID: id, Rev: rev, Error: kind, Reason: err.Error()}
}

// handleBulkDocs writes a batch of documents. Each entry succeeds or fails
// on its own.
func (s *Server) handleBulkDocs(w http.ResponseWriter, r *http.Request) {
	var req couchproto.BulkDocsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	newEdits := req.NewEdits == nil || *req.NewEdits

	results := make([]couchproto.DocResult, len(req.Docs))
	records := make([]store.Record, 0, len(req.Docs))
	index := make([]int, 0, len(req.Docs))
	for i, raw := range req.Docs {
		rec, err := parseRecord(raw)
		if err == nil && !newEdits && (rec.ID == "" || rec.Rev == "") {
			err = errors.Wrap(errBadRequest, "replicated documents need _id and _rev")
		}
		if err != nil {
			results[i] = resultFor(rec.ID, rec.Rev, err)
			continue
		}
		records = append(records, rec)
		index = append(index, i)
	}

	for j, res := range s.store.BulkApply(records, newEdits) {
		results[index[j]] = resultFor(res.ID, res.Rev, res.Err)
	}
	log.WithFields(log.Fields{
		"docs":      len(req.Docs),
		"new_edits": newEdits,
	}).Debug("Bulk write")
	writeJSON(w, http.StatusCreated, results)
}

func (s *Server) handleRevsDiff(w http.ResponseWriter, r *http.Request) {
	var req map[string][]string
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	diff, err := s.store.RevsDiff(req)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make(map[string]couchproto.RevsDiffEntry, len(diff))
	for id, d := range diff {
		out[id] = couchproto.RevsDiffEntry{Missing: d.Missing, PossibleAncestors: d.PossibleAncestors}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAllDocs(w http.ResponseWriter, r *http.Request) {
	includeDocs := queryBool(r, "include_docs")
	rows, err := s.store.AllDocs(includeDocs)
	if err != nil {
		writeError(w, err)
		return
	}
	opts := readBodyOptions(r)
	out := couchproto.AllDocsResponse{TotalRows: len(rows), Rows: make([]couchproto.AllDocsRow, 0, len(rows))}
	for _, row := range rows {
		cr := couchproto.AllDocsRow{ID: row.ID, Key: row.ID, Value: couchproto.AllDocsValue{Rev: row.Rev}}
		if row.Doc != nil {
			cr.Doc = docBody(row.Doc, opts)
		}
		out.Rows = append(out.Rows, cr)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleBulkGet fetches many documents, each at its winning revision or at
// the revision named in the request.
func (s *Server) handleBulkGet(w http.ResponseWriter, r *http.Request) {
	var req couchproto.BulkGetRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	opts := readBodyOptions(r)

	out := couchproto.BulkGetResponse{Results: make([]couchproto.BulkGetResult, 0, len(req.Docs))}
	for _, ref := range req.Docs {
		res := couchproto.BulkGetResult{ID: ref.ID}
		if ref.Rev == "" {
			d, err := s.store.Get(codec.Path{ref.ID}, "")
			if err != nil {
				errRes := resultFor(ref.ID, "", err)
				res.Docs = append(res.Docs, couchproto.BulkGetDoc{Error: &errRes})
			} else {
				res.Docs = append(res.Docs, couchproto.BulkGetDoc{OK: docBody(d, opts)})
			}
			out.Results = append(out.Results, res)
			continue
		}

		docs, missing, err := s.store.OpenRevs(ref.ID, []string{ref.Rev})
		if err != nil {
			writeError(w, err)
			return
		}
		for _, d := range docs {
			res.Docs = append(res.Docs, couchproto.BulkGetDoc{OK: docBody(d, opts)})
		}
		for _, rev := range missing {
			errRes := resultFor(ref.ID, rev, errors.Wrapf(store.ErrNotFound, "%s has no revision %s", ref.ID, rev))
			res.Docs = append(res.Docs, couchproto.BulkGetDoc{Error: &errRes})
		}
		out.Results = append(out.Results, res)
	}
	writeJSON(w, http.StatusOK, out)
}

func localID(r *http.Request) string {
	id := mux.Vars(r)["id"]
	if unescaped, err := url.PathUnescape(id); err == nil {
		return unescaped
	}
	return id
}

func (s *Server) handleGetLocal(w http.ResponseWriter, r *http.Request) {
	id := localID(r)
	l, err := s.store.GetLocal(id)
	if err != nil {
		writeError(w, err)
		return
	}
	body := make(map[string]any)
	if err := decodeJSON(l.Body, &body); err != nil {
		writeError(w, err)
		return
	}
	body[couchproto.FieldID] = "_local/" + id
	body[couchproto.FieldRev] = l.Rev
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handlePutLocal(w http.ResponseWriter, r *http.Request) {
	id := localID(r)
	var body map[string]any
	if err := readJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body == nil {
		writeError(w, errors.Wrap(errBadRequest, "local document must be an object"))
		return
	}
	fields, err := splitReserved(body)
	if err != nil {
		writeError(w, err)
		return
	}
	rev := requestRev(r)
	if rev == "" {
		rev = fields.rev
	}

	data, err := json.Marshal(body)
	if err != nil {
		writeError(w, err)
		return
	}
	newRev, err := s.store.PutLocal(id, rev, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, couchproto.DocResult{OK: true, ID: "_local/" + id, Rev: newRev})
}

func (s *Server) handleDeleteLocal(w http.ResponseWriter, r *http.Request) {
	id := localID(r)
	if err := s.store.DeleteLocal(id, requestRev(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, couchproto.DocResult{OK: true, ID: "_local/" + id, Rev: "0-0"})
}
