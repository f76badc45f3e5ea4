package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gridsync/gridsync/pkg/auth"
	"github.com/gridsync/gridsync/pkg/log"
	"github.com/gridsync/gridsync/pkg/manager"
	"github.com/gridsync/gridsync/pkg/metrics"
	"github.com/gridsync/gridsync/pkg/types"
	"github.com/rs/zerolog"
)

// Server serves the snapshot/changes JSON API, the event stream, and
// the health and metrics endpoints.
type Server struct {
	manager *manager.Manager
	policy  auth.Policy
	logger  zerolog.Logger
	router  chi.Router
	http    *http.Server

	// Version is reported by /health (set via ldflags in main).
	Version string
}

// NewServer creates a new API server
func NewServer(mgr *manager.Manager, policy auth.Policy) *Server {
	s := &Server{
		manager: mgr,
		policy:  policy,
		logger:  log.WithComponent("api"),
		Version: "dev",
	}

	r := chi.NewRouter()
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshotGet)
		r.Post("/snapshot", s.handleSnapshotPost)
		r.Get("/changes", s.handleChangesGet)
		r.Post("/changes", s.handleChangesPost)
		r.Get("/events", s.handleEvents)
	})

	s.router = r
	return s
}

// Handler returns the server's HTTP handler (exposed for tests)
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Str("auth_mode", string(s.policy.Mode())).Msg("api listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// instrument records request counts and durations per route
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(route).Observe(timer.Duration().Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// respMeta tags responses with the deployment's auth mode when the
// deployment is intentionally open, so logs can tell open from
// misconfigured.
type respMeta struct {
	AuthMode types.AuthMode `json:"authMode"`
}

func (s *Server) meta() *respMeta {
	if s.policy.Mode() == types.AuthModeOpen {
		return &respMeta{AuthMode: types.AuthModeOpen}
	}
	return nil
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type snapshotResponse struct {
	OK          bool        `json:"ok"`
	Version     uint64      `json:"version"`
	Headers     []string    `json:"headers"`
	Rows        []types.Row `json:"rows"`
	GeneratedAt time.Time   `json:"generatedAt"`
	Meta        *respMeta   `json:"meta,omitempty"`
}

type changesResponse struct {
	OK              bool                 `json:"ok"`
	FromVersion     uint64               `json:"fromVersion"`
	ToVersion       uint64               `json:"toVersion"`
	Changes         []types.ChangeRecord `json:"changes"`
	NeedsFullResync bool                 `json:"needsFullResync"`
	Meta            *respMeta            `json:"meta,omitempty"`
}

// bodyRequest is the POST variant for transports that cannot set
// headers; the token rides in the authenticated body instead.
type bodyRequest struct {
	Sheet string `json:"sheet"`
	Since uint64 `json:"since"`
	Token string `json:"token"`
}

// authorize enforces the token rules: header or body, never a URL
// query parameter. A query token is rejected outright when a secret
// is configured (even a correct one) so tokens cannot leak through
// request logs or referrers.
func (s *Server) authorize(r *http.Request, bodyToken string) error {
	if s.policy.Mode() == types.AuthModeToken && r.URL.Query().Has("token") {
		return fmt.Errorf("%w: token must not be passed via query parameter", types.ErrUnauthorized)
	}

	token := bearerToken(r)
	if token == "" {
		token = r.Header.Get("X-Gridsync-Token")
	}
	if token == "" {
		token = bodyToken
	}
	return s.policy.Authorize(token)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func (s *Server) handleSnapshotGet(w http.ResponseWriter, r *http.Request) {
	if err := s.authorize(r, ""); err != nil {
		s.writeError(w, err)
		return
	}
	s.serveSnapshot(w, r.URL.Query().Get("sheet"))
}

func (s *Server) handleSnapshotPost(w http.ResponseWriter, r *http.Request) {
	var req bodyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.authorize(r, req.Token); err != nil {
		s.writeError(w, err)
		return
	}
	s.serveSnapshot(w, req.Sheet)
}

func (s *Server) serveSnapshot(w http.ResponseWriter, sheet string) {
	snap, err := s.manager.Snapshot(sheet)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshotResponse{
		OK:          true,
		Version:     snap.Version,
		Headers:     snap.Headers,
		Rows:        snap.Rows,
		GeneratedAt: snap.GeneratedAt,
		Meta:        s.meta(),
	})
}

func (s *Server) handleChangesGet(w http.ResponseWriter, r *http.Request) {
	if err := s.authorize(r, ""); err != nil {
		s.writeError(w, err)
		return
	}
	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.serveChanges(w, r.URL.Query().Get("sheet"), since)
}

func (s *Server) handleChangesPost(w http.ResponseWriter, r *http.Request) {
	var req bodyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.authorize(r, req.Token); err != nil {
		s.writeError(w, err)
		return
	}
	s.serveChanges(w, req.Sheet, req.Since)
}

func (s *Server) serveChanges(w http.ResponseWriter, sheet string, since uint64) {
	delta, err := s.manager.Changes(sheet, since)
	if err != nil {
		s.writeError(w, err)
		return
	}
	changes := delta.Changes
	if changes == nil {
		changes = []types.ChangeRecord{}
	}
	s.writeJSON(w, http.StatusOK, changesResponse{
		OK:              true,
		FromVersion:     delta.FromVersion,
		ToVersion:       delta.ToVersion,
		Changes:         changes,
		NeedsFullResync: delta.NeedsFullResync,
		Meta:            s.meta(),
	})
}

func parseSince(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	since, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid since parameter %q", raw)
	}
	return since, nil
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   s.Version,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrSchema):
		status = http.StatusUnprocessableEntity
	case strings.HasPrefix(err.Error(), "invalid"):
		status = http.StatusBadRequest
	}
	if status >= 500 {
		s.logger.Error().Err(err).Msg("request failed")
	}
	s.writeJSON(w, status, errorResponse{OK: false, Error: err.Error()})
}
