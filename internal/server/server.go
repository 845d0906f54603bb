package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mixelka/mailwatch/internal/plugin"
)

// Host is the part of the plugin host exposed over HTTP
type Host interface {
	Plugins() []plugin.Info
	Get(name string) (plugin.Plugin, bool)
	Reload(ctx context.Context, name string) error
	RunNow(ctx context.Context, name string) error
}

// Server is the JSON API for inspecting and driving plugins
type Server struct {
	host   Host
	http   *http.Server
	logger *slog.Logger
}

// New creates a server listening on addr
func New(addr string, host Host, logger *slog.Logger) *Server {
	s := &Server{
		host:   host,
		logger: logger.With("component", "http"),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/plugins", s.handlePlugins)
	mux.HandleFunc("GET /api/plugins/{name}/settings", s.handleSettings)
	mux.HandleFunc("GET /api/plugins/{name}/page", s.handlePage)
	mux.HandleFunc("POST /api/plugins/{name}/reload", s.handleReload)
	mux.HandleFunc("POST /api/plugins/{name}/run", s.handleRun)
	return mux
}

// Start serves in the background until Shutdown
func (s *Server) Start() {
	go func() {
		s.logger.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for active ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePlugins(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.host.Plugins())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	p, ok := s.plugin(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p.DescribeConfig())
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	p, ok := s.plugin(w, r)
	if !ok {
		return
	}

	paged, ok := p.(plugin.Paged)
	if !ok {
		writeError(w, http.StatusNotFound, "plugin has no page")
		return
	}

	rows, err := paged.Page(r.Context())
	if err != nil {
		s.logger.Error("failed to render page", "plugin", p.Name(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	if rows == nil {
		rows = []plugin.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.host.Reload(r.Context(), name); err != nil {
		s.writeHostError(w, name, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	// a run started here finishes even if the client goes away
	if err := s.host.RunNow(context.WithoutCancel(r.Context()), name); err != nil {
		s.writeHostError(w, name, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "done"})
}

func (s *Server) plugin(w http.ResponseWriter, r *http.Request) (plugin.Plugin, bool) {
	p, ok := s.host.Get(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "plugin not found")
		return nil, false
	}
	return p, true
}

func (s *Server) writeHostError(w http.ResponseWriter, name string, err error) {
	if errors.Is(err, plugin.ErrNotFound) {
		writeError(w, http.StatusNotFound, "plugin not found")
		return
	}
	s.logger.Error("plugin request failed", "plugin", name, "error", err)
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
