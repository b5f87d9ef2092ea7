// Package server exposes a repository of field configurations over HTTP so
// that several hosts can share one set of preferences.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-http-utils/etag"
	"github.com/sardine-ai/fieldview/source"
	"github.com/sardine-ai/fieldview/store"
	"github.com/sardine-ai/fieldview/validate"
	"github.com/sirupsen/logrus"
)

const (
	MinProbeInterval = 5 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// RepositoryStatus describes the last probe of the back-end.
type RepositoryStatus struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	ProbeCount int       `json:"probe_count"`
	LastProbe  time.Time `json:"last_probe"`
	LastError  string    `json:"last_error,omitempty"`
	IsHealthy  bool      `json:"healthy"`
}

type Server struct {
	Repository    source.Repository
	ProbeInterval time.Duration
	AuthKey       string
	MaxBytes      int

	mu         sync.RWMutex
	status     RepositoryStatus
	ready      bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	httpServer *http.Server
	closed     bool
	log        *logrus.Entry
}

// NewServer probes repo once and keeps probing it every probeInterval until
// Stop or Shutdown.
func NewServer(ctx context.Context, repo source.Repository, probeInterval time.Duration) *Server {
	log := logrus.WithFields(logrus.Fields{"component": "server", "repository": repo.GetName()})
	if probeInterval < MinProbeInterval {
		log.Warnf("probe interval too low, setting it to %s", MinProbeInterval)
		probeInterval = MinProbeInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Server{
		Repository:    repo,
		ProbeInterval: probeInterval,
		MaxBytes:      validate.MaxPayloadBytes,
		cancel:        cancel,
		status:        RepositoryStatus{Name: repo.GetName(), Type: repo.GetType()},
		log:           log,
	}
	s.probe(ctx)

	s.wg.Add(1)
	go s.probeLoop(ctx)
	return s
}

func (s *Server) probeLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// probe reads the default entry. An absent entry still means the back-end
// answered.
func (s *Server) probe(ctx context.Context) {
	_, err := s.Repository.Read(ctx, store.DefaultEntry)
	if errors.Is(err, source.ErrNotFound) {
		err = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.ProbeCount++
	s.status.LastProbe = time.Now()
	s.status.IsHealthy = err == nil
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
		s.log.WithError(err).Error("error probing repository")
		return
	}
	s.ready = true
}

// IsHealthy reports whether the last probe succeeded.
func (s *Server) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.IsHealthy
}

// IsReady reports whether any probe has succeeded.
func (s *Server) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *Server) GetRepositoryStatus() RepositoryStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Stop ends probing and waits for the probe loop to exit.
func (s *Server) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Start serves on addr until Shutdown. It returns nil after a clean shutdown,
// or at once when Shutdown already ran.
func (s *Server) Start(addr string) error {
	s.log.WithField("addr", addr).Info("Starting server")

	handler := etag.Handler(s.CreateHandlers(), false)
	if s.AuthKey != "" {
		handler = Auth(handler, s.AuthKey)
	}

	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.httpServer = srv
	s.mu.Unlock()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.Wrap(err, "error starting server")
}

// Shutdown stops probing and gracefully closes the HTTP server. A Start
// that has not begun listening yet returns without serving.
func (s *Server) Shutdown() error {
	s.Stop()
	s.mu.Lock()
	s.closed = true
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (s *Server) CreateHandlers() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /entries/{name}", s.handleRead)
	mux.HandleFunc("PUT /entries/{name}", s.handleWrite)
	mux.HandleFunc("DELETE /entries/{name}", s.handleDelete)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.IsHealthy() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.IsReady() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"healthy":    s.IsHealthy(),
		"ready":      s.IsReady(),
		"repository": s.GetRepositoryStatus(),
	})
}

func entryName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.PathValue("name")
	if !validate.IsValidKey(name) {
		http.Error(w, "invalid entry name", http.StatusBadRequest)
		return "", false
	}
	return name, true
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	name, ok := entryName(w, r)
	if !ok {
		return
	}
	data, err := s.Repository.Read(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	if _, err := w.Write(data); err != nil {
		s.log.WithError(err).Error("error writing response")
	}
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	name, ok := entryName(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(s.MaxBytes)+1))
	if err != nil {
		http.Error(w, "error reading body", http.StatusBadRequest)
		return
	}
	if len(body) > s.MaxBytes {
		http.Error(w, store.ErrPayloadTooLarge.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	parsed, err := store.Parse(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if parsed.Rejected != nil {
		http.Error(w, parsed.Rejected.Error(), http.StatusBadRequest)
		return
	}
	data, err := store.Encode(parsed.Configuration)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Repository.Write(r.Context(), name, data); err != nil {
		s.writeError(w, err)
		return
	}
	s.log.WithField("entry", name).Debugf("stored %d descriptors", len(parsed.Configuration))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name, ok := entryName(w, r)
	if !ok {
		return
	}
	if err := s.Repository.Delete(r.Context(), name); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, source.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, source.ErrInvalidEntry):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.WithError(err).Error("repository error")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("error writing response")
	}
}

// Auth rejects requests without the right X-API-KEY header. Health, readiness
// and status endpoints are left open for probes.
func Auth(next http.Handler, authKey string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health", "/ready", "/status":
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-KEY")
		if key == "" || key != authKey {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
