// Package server exposes the health and pass history of a running watcher
// over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ic3tools/enfetch/internal/state"
	"golang.org/x/sync/errgroup"
)

// DefaultPassLimit is the number of passes returned when no limit is given.
const DefaultPassLimit = 20

// maxPassLimit caps the limit query parameter.
const maxPassLimit = 500

// Server serves /healthz and /passes.
type Server struct {
	addr    string
	store   state.Store
	tracker *Tracker
	logger  *slog.Logger
}

// Config holds configuration for the server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// Store backs /passes (optional).
	Store state.Store
	// Tracker holds the latest pass per input (optional).
	Tracker *Tracker
	Logger  *slog.Logger
}

// New creates a server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Server{addr: cfg.Addr, store: cfg.Store, tracker: tracker, logger: logger}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		s.requestLogger,
		middleware.Recoverer,
	)
	r.Get("/healthz", s.handleHealth)
	r.Get("/passes", s.handlePasses)
	return r
}

// Serve listens on the configured address and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting status server", "addr", s.addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down status server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

type healthResponse struct {
	Status string        `json:"status"`
	Inputs []InputStatus `json:"inputs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Inputs: s.tracker.Snapshot()})
}

func (s *Server) handlePasses(w http.ResponseWriter, r *http.Request) {
	limit := DefaultPassLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxPassLimit)
	}

	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "pass history is disabled")
		return
	}

	passes, err := s.store.ListPasses(limit)
	if err != nil {
		s.logger.Error("failed to list passes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list passes")
		return
	}
	if passes == nil {
		passes = []*state.Pass{}
	}
	writeJSON(w, http.StatusOK, passes)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// InputStatus is the latest pass outcome of one input.
type InputStatus struct {
	Input       string    `json:"input"`
	Status      string    `json:"status"`
	Complete    int       `json:"complete_runs"`
	InProgress  int       `json:"in_progress_runs"`
	Transferred int       `json:"transferred_runs"`
	FinishedAt  time.Time `json:"finished_at"`
	Error       string    `json:"error,omitempty"`
}

// Tracker keeps the latest status per input. It is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	inputs map[string]InputStatus
	order  []string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{inputs: make(map[string]InputStatus)}
}

// Record stores st as the latest status of its input.
func (t *Tracker) Record(st InputStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.inputs[st.Input]; !ok {
		t.order = append(t.order, st.Input)
	}
	t.inputs[st.Input] = st
}

// Snapshot returns the latest statuses in first-seen order.
func (t *Tracker) Snapshot() []InputStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]InputStatus, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.inputs[name])
	}
	return out
}
