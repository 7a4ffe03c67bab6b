// Package web provides the firefinder HTTP server: a status page, batch
// detection and access to stored runs.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Geocene/firefinder/internal/metrics"
	"github.com/Geocene/firefinder/internal/pipeline"
	"github.com/Geocene/firefinder/internal/status"
	"github.com/Geocene/firefinder/internal/store"
)

// DefaultMaxBody caps the size of a detection request.
const DefaultMaxBody = 32 << 20

// RunStore reads and removes stored runs.
type RunStore interface {
	GetRun(ctx context.Context, id string) (*store.Run, error)
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
	DeleteRun(ctx context.Context, id string) error
}

// Options wires the server to the rest of the service. Nil Runner, Runs
// or Metrics disable the matching endpoints. A nil Tracker is replaced by
// an empty one started at New.
type Options struct {
	Tracker *status.Tracker
	Runner  *pipeline.Runner
	Runs    RunStore
	Metrics *metrics.Metrics
	// Detector holds configured parameter overrides; request parameters
	// are applied on top.
	Detector map[string]any
	MaxBody  int64
}

// Server serves the HTTP API.
type Server struct {
	httpServer *http.Server
	opts       Options
}

// New creates a Server listening on addr.
func New(addr string, opts Options) *Server {
	if opts.MaxBody <= 0 {
		opts.MaxBody = DefaultMaxBody
	}
	if opts.Tracker == nil {
		opts.Tracker = status.NewTracker(time.Now(), status.Config{})
	}
	s := &Server{opts: opts}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	m := s.opts.Metrics
	handle := func(path string, h http.HandlerFunc, methods ...string) {
		r.Handle(path, m.WrapHandler(path, h)).Methods(methods...)
	}

	handle("/", s.handleIndex, http.MethodGet)
	handle("/index.html", s.handleIndex, http.MethodGet)
	handle("/index.json", s.handleJSON, http.MethodGet)
	handle("/detect", s.handleDetect, http.MethodPost)
	handle("/runs", s.handleListRuns, http.MethodGet)
	handle("/runs/{id}", s.handleGetRun, http.MethodGet)
	handle("/runs/{id}", s.handleDeleteRun, http.MethodDelete)
	if m != nil {
		r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}
	return r
}

// Handler returns the router, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.opts.Tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.opts.Tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
