package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/mowgli42/bookish-train/internal/store"
	"github.com/mowgli42/bookish-train/toast"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// sseWriteTimeout bounds a single SSE write so slow or gone clients
	// cannot pin a handler goroutine. Must be <= shutdownTimeout.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second
)

// ToastQueue is the part of the toast queue the API exposes.
type ToastQueue interface {
	Toasts() []toast.Toast
	Dismiss(id string)
}

// RefreshFunc refreshes every resource and returns when they have settled.
type RefreshFunc func(ctx context.Context)

// Server serves the dashboard state API.
//
// Routes:
//   - GET /health: liveness
//   - GET /api/state: every resource snapshot, sorted by name
//   - GET /api/state/{name}: one snapshot
//   - GET /api/sse: snapshot stream (Server-Sent Events)
//   - GET /api/toasts: active toasts, oldest first
//   - DELETE /api/toasts/{id}: dismiss a toast
//   - POST /api/refresh: refresh every resource, then return the state
//   - GET /metrics: Prometheus metrics, when configured
type Server struct {
	store      store.Store
	toasts     ToastQueue
	refresh    RefreshFunc
	metrics    http.Handler
	port       int
	httpServer *http.Server
	logger     *slog.Logger
}

// Option configures a [Server].
type Option func(*Server)

// WithToasts exposes q under /api/toasts.
func WithToasts(q ToastQueue) Option {
	return func(s *Server) { s.toasts = q }
}

// WithRefresh enables POST /api/refresh.
func WithRefresh(fn RefreshFunc) Option {
	return func(s *Server) { s.refresh = fn }
}

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewServer creates a [Server]. It does not listen until [Server.Start].
func NewServer(st store.Store, port int, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:  st,
		port:   port,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/state/{name}", s.handleResource)
	mux.HandleFunc("GET /api/sse", s.handleSSE)
	if s.toasts != nil {
		mux.HandleFunc("GET /api/toasts", s.handleToasts)
		mux.HandleFunc("DELETE /api/toasts/{id}", s.handleDismiss)
	}
	if s.refresh != nil {
		mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// Start listens on the configured port and serves in the background until
// ctx is cancelled, then shuts down with a 5-second grace period.
//
// Returns an error if the port cannot be bound.
func (s *Server) Start(ctx context.Context) error {
	// listen first so a busy port is reported synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts end with ctx so SSE handlers return on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.GetAll())
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	snap, ok := s.store.Get(name)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("unknown resource %q", name)})
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleToasts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.toasts.Toasts())
}

// handleDismiss always answers 204; dismissing an unknown id is a no-op.
func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.toasts.Dismiss(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// handleRefresh detaches from the request so a client that hangs up cannot
// cancel reads that every other client shares.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refresh(context.WithoutCancel(r.Context()))
	s.writeJSON(w, http.StatusOK, s.store.GetAll())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// handleSSE streams snapshots as Server-Sent Events: every current snapshot
// first, then each update as it is published.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	current, ch := s.store.SubscribeWithCurrent()
	defer s.store.Unsubscribe(ch)

	for _, snap := range current {
		data, err := json.Marshal(snap)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown
			return
		}
	}
}
