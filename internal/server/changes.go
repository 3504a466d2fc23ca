package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"gihan9a/treestore/internal/store"
	"gihan9a/treestore/pkg/couchproto"
)

// defaultHeartbeat is used for heartbeat=true.
const defaultHeartbeat = 60 * time.Second

type changesRequest struct {
	opts      store.ChangesOptions
	body      bodyOptions
	feed      string
	timeout   time.Duration
	heartbeat time.Duration
}

func parseMillis(v string) (time.Duration, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms < 0 {
		return 0, errors.Wrapf(errBadRequest, "invalid duration %q", v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func (s *Server) parseChanges(r *http.Request) (changesRequest, error) {
	q := r.URL.Query()
	req := changesRequest{
		body:      readBodyOptions(r),
		feed:      q.Get("feed"),
		timeout:   s.config.Changes.Timeout,
		heartbeat: s.config.Changes.Heartbeat,
	}
	req.opts.Descending = queryBool(r, "descending")
	req.opts.IncludeDocs = queryBool(r, "include_docs")
	req.opts.AllLeaves = q.Get("style") == "all_docs"

	switch since := q.Get("since"); since {
	case "", "0":
	case "now":
		req.opts.Since = s.store.UpdateSeq()
	default:
		n, err := strconv.ParseUint(since, 10, 64)
		if err != nil {
			return req, errors.Wrapf(errBadRequest, "invalid since %q", since)
		}
		req.opts.Since = n
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return req, errors.Wrapf(errBadRequest, "invalid limit %q", limit)
		}
		req.opts.Limit = n
	}
	if timeout := q.Get("timeout"); timeout != "" {
		d, err := parseMillis(timeout)
		if err != nil {
			return req, err
		}
		req.timeout = d
	}
	switch heartbeat := q.Get("heartbeat"); heartbeat {
	case "":
	case "true":
		req.heartbeat = defaultHeartbeat
	default:
		d, err := parseMillis(heartbeat)
		if err != nil {
			return req, err
		}
		req.heartbeat = d
	}
	return req, nil
}

func (s *Server) changeRows(changes []store.Change, opts bodyOptions) []couchproto.ChangeRow {
	rows := make([]couchproto.ChangeRow, 0, len(changes))
	for _, c := range changes {
		row := couchproto.ChangeRow{Seq: c.Seq, ID: c.ID, Deleted: c.Deleted}
		for _, rev := range c.Revs {
			row.Changes = append(row.Changes, couchproto.ChangeRev{Rev: rev})
		}
		if c.Doc != nil {
			row.Doc = docBody(c.Doc, opts)
		}
		rows = append(rows, row)
	}
	return rows
}

func lastSeq(since uint64, rows []couchproto.ChangeRow) uint64 {
	if len(rows) == 0 {
		return since
	}
	return rows[len(rows)-1].Seq
}

// handleChanges serves the change feed in all of its modes.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseChanges(r)
	if err != nil {
		writeError(w, err)
		return
	}

	switch req.feed {
	case "", "normal":
		s.changesNormal(w, req)
	case "longpoll":
		s.changesLongpoll(w, r, req)
	case "continuous":
		s.changesContinuous(w, r, req)
	case "websocket":
		s.changesWebsocket(w, r, req)
	default:
		writeError(w, errors.Wrapf(errBadRequest, "unknown feed %q", req.feed))
	}
}

func (s *Server) changesNormal(w http.ResponseWriter, req changesRequest) {
	changes, err := s.store.Changes(req.opts)
	if err != nil {
		writeError(w, err)
		return
	}
	rows := s.changeRows(changes, req.body)
	writeJSON(w, http.StatusOK, couchproto.ChangesResponse{Results: rows, LastSeq: lastSeq(req.opts.Since, rows)})
}

// changesLongpoll answers as soon as at least one change is available or the
// timeout passes.
func (s *Server) changesLongpoll(w http.ResponseWriter, r *http.Request, req changesRequest) {
	notify, cancel := s.store.Subscribe()
	defer cancel()

	var timeout <-chan time.Time
	if req.timeout > 0 {
		timer := time.NewTimer(req.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		changes, err := s.store.Changes(req.opts)
		if err != nil {
			writeError(w, err)
			return
		}
		if len(changes) > 0 || req.opts.Descending {
			rows := s.changeRows(changes, req.body)
			writeJSON(w, http.StatusOK, couchproto.ChangesResponse{Results: rows, LastSeq: lastSeq(req.opts.Since, rows)})
			return
		}

		select {
		case <-notify:
		case <-timeout:
			writeJSON(w, http.StatusOK, couchproto.ChangesResponse{Results: []couchproto.ChangeRow{}, LastSeq: req.opts.Since})
			return
		case <-r.Context().Done():
			return
		}
	}
}

// follow emits changes as they are committed until the limit is reached,
// the timeout passes or ctx is done. A heartbeat disables the timeout. It
// returns the sequence of the last emitted row.
func (s *Server) follow(ctx context.Context, req changesRequest, emit func(couchproto.ChangeRow) error, beat func() error) (uint64, error) {
	notify, cancel := s.store.Subscribe()
	defer cancel()

	opts := req.opts
	opts.Descending = false

	var timeout, heartbeat <-chan time.Time
	if req.heartbeat > 0 {
		ticker := time.NewTicker(req.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	} else if req.timeout > 0 {
		timer := time.NewTimer(req.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	sent := 0
	for {
		changes, err := s.store.Changes(opts)
		if err != nil {
			return opts.Since, err
		}
		for _, row := range s.changeRows(changes, req.body) {
			if err := emit(row); err != nil {
				return opts.Since, err
			}
			opts.Since = row.Seq
			sent++
			if req.opts.Limit > 0 && sent >= req.opts.Limit {
				return opts.Since, nil
			}
		}
		if req.opts.Limit > 0 {
			opts.Limit = req.opts.Limit - sent
		}

		select {
		case <-notify:
		case <-heartbeat:
			if err := beat(); err != nil {
				return opts.Since, err
			}
		case <-timeout:
			return opts.Since, nil
		case <-ctx.Done():
			return opts.Since, ctx.Err()
		}
	}
}

// changesContinuous streams one JSON object per line.
func (s *Server) changesContinuous(w http.ResponseWriter, r *http.Request, req changesRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.New("streaming not supported"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	last, err := s.follow(r.Context(), req,
		func(row couchproto.ChangeRow) error {
			if err := enc.Encode(row); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		},
		func() error {
			if _, err := w.Write([]byte("\n")); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		})
	if err != nil {
		log.WithError(err).Debug("Continuous changes feed ended")
		return
	}
	enc.Encode(couchproto.LastSeq{LastSeq: last})
	flusher.Flush()
}

// changesWebsocket sends one text message per change.
func (s *Server) changesWebsocket(w http.ResponseWriter, r *http.Request, req changesRequest) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		// the peer never sends anything; a read error means it went away
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	last, err := s.follow(ctx, req,
		func(row couchproto.ChangeRow) error {
			return conn.WriteJSON(row)
		},
		func() error {
			return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
		})
	if err != nil {
		log.WithError(err).Debug("Websocket changes feed ended")
		return
	}
	conn.WriteJSON(couchproto.LastSeq{LastSeq: last})
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
