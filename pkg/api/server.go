package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ctavolazzi/mission-control/pkg/broadcast"
	"github.com/ctavolazzi/mission-control/pkg/counter"
	"github.com/ctavolazzi/mission-control/pkg/log"
	"github.com/ctavolazzi/mission-control/pkg/metrics"
	"github.com/ctavolazzi/mission-control/pkg/registry"
)

// Server is the HTTP control plane: repository management, filesystem
// browsing, counter administration, Prometheus metrics, and the websocket
// mount.
type Server struct {
	registry   *registry.Registry
	hub        *broadcast.Hub
	counters   *counter.Service
	browseRoot string
	staticDir  string
	startTime  time.Time
	http       *http.Server
}

// Options configures the server surface.
type Options struct {
	Registry *registry.Registry
	Hub      *broadcast.Hub
	Counters *counter.Service

	// BrowseRoot confines /api/browse; empty defaults to the home directory.
	BrowseRoot string

	// StaticDir, when set, is served at / for the dashboard UI.
	StaticDir string
}

// NewServer creates a control-plane server.
func NewServer(opts Options) *Server {
	root := opts.BrowseRoot
	if root == "" {
		if home, err := os.UserHomeDir(); err == nil {
			root = home
		} else {
			root = "/"
		}
	}
	return &Server{
		registry:   opts.Registry,
		hub:        opts.Hub,
		counters:   opts.Counters,
		browseRoot: root,
		staticDir:  opts.StaticDir,
		startTime:  time.Now(),
	}
}

// Routes builds the request multiplexer.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/repos", s.handleListRepos)
	mux.HandleFunc("POST /api/repos", s.handleAddRepo)
	mux.HandleFunc("POST /api/repos/bulk", s.handleBulkAdd)
	mux.HandleFunc("GET /api/repos/{name}", s.handleGetRepo)
	mux.HandleFunc("DELETE /api/repos/{name}", s.handleRemoveRepo)
	mux.HandleFunc("PATCH /api/repos/{name}/work-efforts/{weId}/status", s.handlePatchStatus)
	mux.HandleFunc("GET /api/browse", s.handleBrowse)

	mux.HandleFunc("GET /api/counter/stats", s.handleCounterStats)
	mux.HandleFunc("GET /api/counter/audit", s.handleCounterAudit)
	mux.HandleFunc("GET /api/counter/validate", s.handleCounterValidate)
	mux.HandleFunc("POST /api/counter/migrate", s.handleCounterMigrate)
	mux.HandleFunc("POST /api/counter/migrate/preview", s.handleCounterPreview)
	mux.HandleFunc("POST /api/counter/repair", s.handleCounterRepair)

	mux.Handle("GET /metrics", metrics.Handler())
	if s.hub != nil {
		mux.Handle("/ws", s.hub.Handler())
	}
	if s.staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}

	return s.instrument(mux)
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}
	logger := log.WithComponent("api")
	logger.Info().Str("addr", addr).Msg("control plane listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to serve: %v", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// writeJSON encodes one response body with a status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends the uniform {"error": ...} shape.
func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
