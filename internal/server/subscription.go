package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"

	"gihan9a/treestore/internal/codec"
	"gihan9a/treestore/internal/store"
	"gihan9a/treestore/pkg/couchproto"
)

// statusSubscribed is the status of an accepted subscription.
const statusSubscribed = 209

// AddSubscription registers a subscription for a path.
func (s *Server) AddSubscription(path, remote, version string) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscription{
		ID:      strings.ToLower(ulid.Make().String()),
		Path:    path,
		Remote:  remote,
		Version: version,
	}
	if _, exists := s.subscriptions[path]; !exists {
		s.subscriptions[path] = make(map[string]*Subscription)
	}
	s.subscriptions[path][sub.ID] = sub

	log.WithFields(log.Fields{"id": sub.ID, "path": path, "remote": remote}).Info("Added subscription")
	return sub
}

// RemoveSubscription removes a subscription
func (s *Server) RemoveSubscription(path, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if subs, exists := s.subscriptions[path]; exists {
		delete(subs, id)
		log.WithFields(log.Fields{"id": id, "path": path}).Info("Removed subscription")

		if len(subs) == 0 {
			delete(s.subscriptions, path)
		}
	}
}

// SubscriptionCount returns the number of open subscriptions.
func (s *Server) SubscriptionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, subs := range s.subscriptions {
		n += len(subs)
	}
	return n
}

func (s *Server) setVersion(sub *Subscription, version string) {
	s.mu.Lock()
	sub.Version = version
	s.mu.Unlock()
}

// snapshot reads the winning value at p as JSON. A missing path reads as
// null with no version.
func (s *Server) snapshot(p codec.Path) (string, []byte, error) {
	d, err := s.store.Get(p, "")
	if errors.Is(err, store.ErrNotFound) {
		return "", []byte("null"), nil
	}
	if err != nil {
		return "", nil, err
	}
	data, err := json.Marshal(codec.Decode(d.Node))
	if err != nil {
		return "", nil, err
	}
	return d.Rev, data, nil
}

func versions(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

// handleSubscribe streams the value at p: the full value first, then a
// JSON patch against the previous value after every change.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request, p codec.Path) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.New("streaming not supported"))
		return
	}

	notify, cancel := s.store.Subscribe()
	defer cancel()

	version, data, err := s.snapshot(p)
	if err != nil {
		writeError(w, err)
		return
	}
	if version == "" {
		writeError(w, errors.Wrapf(store.ErrNotFound, "%s", p))
		return
	}

	sub := s.AddSubscription(p.String(), r.RemoteAddr, version)
	defer s.RemoveSubscription(sub.Path, sub.ID)

	w.Header().Set("Subscribe", "true")
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(statusSubscribed)

	if err := s.sendFullUpdate(w, flusher, version, "", data); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-notify:
		}

		newVersion, newData, err := s.snapshot(p)
		if err != nil {
			log.WithError(err).WithField("path", sub.Path).Error("Error reading subscribed path")
			return
		}
		if bytes.Equal(newData, data) {
			continue
		}

		if err := s.sendPatchUpdate(w, flusher, newVersion, version, data, newData); err != nil {
			log.WithError(err).Debug("Error sending patch update, falling back to full update")
			if err := s.sendFullUpdate(w, flusher, newVersion, version, newData); err != nil {
				return
			}
		}
		version, data = newVersion, newData
		s.setVersion(sub, version)
	}
}

// sendFullUpdate sends the whole value to a subscriber
func (s *Server) sendFullUpdate(w http.ResponseWriter, f http.Flusher, version, parent string, data []byte) error {
	u := couchproto.Update{
		Version: versions(version),
		Parents: versions(parent),
		Body:    string(data),
	}
	if _, err := u.WriteTo(w); err != nil {
		return err
	}
	f.Flush()
	return nil
}

// sendPatchUpdate sends the difference between two values to a subscriber
func (s *Server) sendPatchUpdate(w http.ResponseWriter, f http.Flusher, version, parent string, oldData, newData []byte) error {
	ops, err := jsondiff.CompareJSON(oldData, newData)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	u := couchproto.Update{
		Version: versions(version),
		Parents: versions(parent),
		Patches: make([]couchproto.Patch, 0, len(ops)),
	}
	for _, op := range ops {
		content, err := json.Marshal(op.Value)
		if err != nil {
			return err
		}
		u.Patches = append(u.Patches, couchproto.Patch{
			Unit:    op.Type,
			Range:   string(op.Path),
			Content: string(content),
		})
	}
	if _, err := u.WriteTo(w); err != nil {
		return err
	}
	f.Flush()
	return nil
}
