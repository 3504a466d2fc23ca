package server

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"gihan9a/treestore/internal/config"
	"gihan9a/treestore/internal/store"
)

// Subscription is one client streaming updates of a path.
type Subscription struct {
	ID      string
	Path    string
	Remote  string
	Version string
}

// Server exposes a store over the CouchDB replication protocol.
type Server struct {
	config        *config.Config
	store         *store.Store
	subscriptions map[string]map[string]*Subscription
	mu            sync.RWMutex
	watcher       *fsnotify.Watcher
	upgrader      websocket.Upgrader
}

// New creates a server for st.
func New(cfg *config.Config, st *store.Store) *Server {
	return &Server{
		config:        cfg,
		store:         st,
		subscriptions: make(map[string]map[string]*Subscription),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Close stops the seed watcher, if any.
func (s *Server) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *Server) instanceStartTime() string {
	return strconv.FormatInt(s.store.Started().UnixMicro(), 10)
}

// SetupRoutes configures the HTTP routes for the server
func (s *Server) SetupRoutes() http.Handler {
	router := mux.NewRouter().UseEncodedPath()

	router.HandleFunc("/", s.handleInfo).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/", s.handlePost).Methods(http.MethodPost)
	router.HandleFunc("/_changes", s.handleChanges).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/_bulk_docs", s.handleBulkDocs).Methods(http.MethodPost)
	router.HandleFunc("/_bulk_get", s.handleBulkGet).Methods(http.MethodPost)
	router.HandleFunc("/_revs_diff", s.handleRevsDiff).Methods(http.MethodPost)
	router.HandleFunc("/_all_docs", s.handleAllDocs).Methods(http.MethodGet)
	router.HandleFunc("/_compact", s.handleCompact).Methods(http.MethodPost)
	router.HandleFunc("/_ensure_full_commit", s.handleEnsureFullCommit).Methods(http.MethodPost)

	router.HandleFunc("/_local/{id}", s.handleGetLocal).Methods(http.MethodGet)
	router.HandleFunc("/_local/{id}", s.handlePutLocal).Methods(http.MethodPut)
	router.HandleFunc("/_local/{id}", s.handleDeleteLocal).Methods(http.MethodDelete)

	router.HandleFunc("/{path:.+}", s.handleGet).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/{path:.+}", s.handlePut).Methods(http.MethodPut)
	router.HandleFunc("/{path:.+}", s.handlePost).Methods(http.MethodPost)
	router.HandleFunc("/{path:.+}", s.handleDelete).Methods(http.MethodDelete)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody("not_found", "missing"))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method_not_allowed", fmt.Sprintf("%s is not allowed here", r.Method)))
	})

	var handler http.Handler = router
	if s.config.CORS.Enabled {
		handler = s.withCORS(handler)
	}
	return logRequests(handler)
}

// withCORS adds CORS headers to every response and answers preflight
// requests directly.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.addCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// addCORSHeaders adds CORS headers to the response
func (s *Server) addCORSHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", s.config.CORS.AllowOrigins)
	w.Header().Set("Access-Control-Allow-Methods", s.config.CORS.AllowMethods)
	w.Header().Set("Access-Control-Allow-Headers", s.config.CORS.AllowHeaders)
	w.Header().Set("Access-Control-Expose-Headers", "ETag, Version, Parents")

	if s.config.CORS.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}

	w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", s.config.CORS.MaxAge))
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.EscapedPath(),
			"remote": r.RemoteAddr,
		}).Debug("Request")
		next.ServeHTTP(w, r)
	})
}
