// Package server provides the HTTP API for triggering, inspecting and
// reviewing update jobs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/resource-pipeline/internal/auth"
	"github.com/jonathan/resource-pipeline/internal/config"
	"github.com/jonathan/resource-pipeline/internal/db"
	"github.com/jonathan/resource-pipeline/internal/logging"
	"github.com/jonathan/resource-pipeline/internal/pipeline"
	"github.com/jonathan/resource-pipeline/internal/review"
	"github.com/jonathan/resource-pipeline/internal/server/middleware"
	"github.com/jonathan/resource-pipeline/internal/server/ratelimit"
)

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server configuration.
type Config struct {
	Port      int
	JWT       *config.JWTConfig
	RateLimit *ratelimit.Config
}

// Deps are the services the handlers call.
type Deps struct {
	Store        db.Store
	Orchestrator *pipeline.Orchestrator
	Review       *review.Service
	Authorizer   auth.Authorizer
	Progress     *ProgressHub
	Pinger       Pinger
}

// Server represents the HTTP server.
type Server struct {
	httpServer  *http.Server
	handler     http.Handler
	store       db.Store
	orch        *pipeline.Orchestrator
	review      *review.Service
	authz       auth.Authorizer
	progress    *ProgressHub
	pinger      Pinger
	jwtService  *JWTService
	rateLimiter *ratelimit.Limiter
	logger      *zap.Logger

	// background job runs outlive the request that started them
	runs    sync.WaitGroup
	runCtx  context.Context
	stopRun context.CancelFunc
}

// New creates a server instance.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Server, error) {
	if cfg.JWT == nil {
		return nil, fmt.Errorf("JWT configuration is required")
	}
	if deps.Store == nil || deps.Orchestrator == nil || deps.Review == nil {
		return nil, fmt.Errorf("store, orchestrator and review service are required")
	}
	if deps.Authorizer == nil {
		deps.Authorizer = auth.RoleAuthorizer{}
	}
	if deps.Progress == nil {
		deps.Progress = NewProgressHub()
	}
	if cfg.RateLimit == nil {
		cfg.RateLimit = ratelimit.LoadConfig()
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	s := &Server{
		store:       deps.Store,
		orch:        deps.Orchestrator,
		review:      deps.Review,
		authz:       deps.Authorizer,
		progress:    deps.Progress,
		pinger:      deps.Pinger,
		jwtService:  NewJWTService(cfg.JWT),
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		logger:      logging.OrNop(logger),
		runCtx:      runCtx,
		stopRun:     stopRun,
	}

	authed := middleware.AuthMiddleware(s.jwtService.AsTokenValidator())
	route := func(h http.HandlerFunc) http.Handler { return authed(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("GET /resources/{slug}", route(s.handleGetResource))
	mux.Handle("GET /resources/{slug}/changelog", route(s.handleListChangelog))
	mux.Handle("POST /resources/{slug}/jobs", route(s.handleCreateJob))

	mux.Handle("GET /jobs", route(s.handleListJobs))
	mux.Handle("GET /jobs/{id}", route(s.handleGetJob))
	mux.Handle("GET /jobs/{id}/events", route(s.handleJobEvents))
	mux.Handle("POST /jobs/{id}/run", route(s.handleRunJob))
	mux.Handle("POST /jobs/{id}/approve", route(s.handleApprove))
	mux.Handle("POST /jobs/{id}/reject", route(s.handleReject))

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // job event streams stay open until the job settles
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the root handler, including middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully and waits
// for background job runs.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.Close()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.waitForRuns(shutdownCtx)
	s.Close()
	s.logger.Info("server stopped")
	return nil
}

// Close stops the rate limiter and releases background resources.
func (s *Server) Close() {
	s.stopRun()
	s.rateLimiter.Stop()
}

func (s *Server) waitForRuns(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("background job runs still in progress at shutdown")
	}
}

// withCORS adds CORS headers.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients that exceed their request budget.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps event streams working through the logging wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging logs each request with its status and latency.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// extractClientID identifies the client by remote IP.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}
	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}
	s.logger.Warn("rate limit exceeded", zap.Int("limit", info.Limit))
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}

// handleHealth reports liveness and, when configured, store reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// errorResponse maps err to a status code and writes it. Internal errors are
// logged and replaced by a generic message.
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		message = "internal server error"
	}
	s.jsonResponse(w, status, map[string]string{"error": message})
}
