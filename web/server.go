package web

import (
	"net/http"
	"sync"

	"f0oster/dbtracker/session"

	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var log = logging.Logger("web")

// Server exposes a session over a JSON API. Requests are served one at a
// time since the session is not safe for concurrent use.
type Server struct {
	mu      sync.Mutex
	session *session.Session
	mux     *http.ServeMux
	addr    string
}

// NewServer creates a new web server instance.
func NewServer(sess *session.Session, addr string) *Server {
	s := &Server{
		session: sess,
		mux:     http.NewServeMux(),
		addr:    addr,
	}
	s.registerRoutes()
	return s
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/databases", s.serialized(s.handleListDatabases))
	s.mux.HandleFunc("POST /api/databases", s.serialized(s.handleAddDatabase))
	s.mux.HandleFunc("GET /api/databases/{id}", s.serialized(s.handleGetDatabase))
	s.mux.HandleFunc("PUT /api/databases/{id}", s.serialized(s.handleUpdateDatabase))
	s.mux.HandleFunc("DELETE /api/databases/{id}", s.serialized(s.handleRemoveDatabase))
	s.mux.HandleFunc("POST /api/databases/{id}/register", s.serialized(s.handleRegister))
	s.mux.HandleFunc("POST /api/databases/{id}/connect", s.serialized(s.handleConnect))
	s.mux.HandleFunc("POST /api/databases/{id}/sync", s.serialized(s.handleSync))
	s.mux.HandleFunc("GET /api/databases/{id}/settings", s.serialized(s.handleSettings))
	s.mux.HandleFunc("GET /api/databases/{id}/batch", s.serialized(s.handleBatch))
	s.mux.HandleFunc("GET /api/databases/{id}/log", s.serialized(s.handleLog))
	s.mux.HandleFunc("POST /api/navigate/{direction}", s.serialized(s.handleNavigate))

	s.mux.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) serialized(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		h(w, r)
	}
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	log.Infow("starting web server", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler returns the HTTP handler for use with custom servers.
func (s *Server) Handler() http.Handler {
	return s.mux
}
