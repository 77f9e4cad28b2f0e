// Package server exposes the tracker over a JSON HTTP API.
//
// Every response uses the envelope {"success": bool, "data": ..., "error":
// {"code", "message"}}. Requests under /api/ must carry a token in the
// X-Auth-Token header or as "Authorization: Bearer <token>"; the token
// selects the user whose resources are visible.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ryhazerus/apiwatch"
)

// Options configures a Server.
type Options struct {
	// Tokens maps API tokens to user ids.
	Tokens map[string]string
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server serves the tracker API.
type Server struct {
	tracker *apiwatch.Tracker
	logger  *slog.Logger
	handler http.Handler

	mu     sync.RWMutex
	tokens map[string]string
}

// New creates a server for t.
func New(t *apiwatch.Tracker, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		tracker: t,
		logger:  logger.With("component", "server"),
	}
	s.SetTokens(opts.Tokens)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/apis", s.listResources)
	api.HandleFunc("POST /api/apis", s.createResource)
	api.HandleFunc("GET /api/apis/{id}", s.getResource)
	api.HandleFunc("PUT /api/apis/{id}", s.updateResource)
	api.HandleFunc("DELETE /api/apis/{id}", s.deleteResource)

	api.HandleFunc("POST /api/usage/track", s.trackUsage)
	api.HandleFunc("GET /api/usage/history/{id}", s.usageHistory)

	api.HandleFunc("GET /api/alerts", s.listAlerts)
	api.HandleFunc("POST /api/alerts", s.createAlert)
	api.HandleFunc("PUT /api/alerts/{id}", s.updateAlert)
	api.HandleFunc("DELETE /api/alerts/{id}", s.deleteAlert)

	api.HandleFunc("GET /api/notifications", s.listNotifications)
	api.HandleFunc("DELETE /api/notifications", s.clearNotifications)
	api.HandleFunc("POST /api/notifications/{id}/read", s.markNotificationRead)
	api.HandleFunc("DELETE /api/notifications/{id}", s.ackNotification)

	api.HandleFunc("/api/", notFound)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
		})
	})
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.Handle("/api/", s.tokenAuth(api))
	mux.HandleFunc("/", notFound)

	s.handler = s.logRequests(mux)
	return s
}

// SetTokens replaces the token table, e.g. after a config reload.
func (s *Server) SetTokens(tokens map[string]string) {
	copied := make(map[string]string, len(tokens))
	for k, v := range tokens {
		copied[k] = v
	}
	s.mu.Lock()
	s.tokens = copied
	s.mu.Unlock()
}

func (s *Server) lookup(token string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.tokens[token]
	return user, ok
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type userKey struct{}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userKey{}).(string)
	return id
}

func (s *Server) tokenAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if token == "" {
			writeFailure(w, http.StatusUnauthorized, codeUnauthorized, "X-Auth-Token header or bearer token required")
			return
		}

		user, ok := s.lookup(token)
		if !ok {
			writeFailure(w, http.StatusUnauthorized, codeUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
