package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/ai-news-scraper/internal/metrics"
	"github.com/JakeFAU/ai-news-scraper/internal/progress"
	"github.com/JakeFAU/ai-news-scraper/internal/run"
	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
	"github.com/JakeFAU/ai-news-scraper/internal/source"
)

// Runner is the run control surface driven by the HTTP handlers.
type Runner interface {
	StartRun(ctx context.Context, req scraper.Request) (uuid.UUID, error)
	StopRun() (uuid.UUID, error)
	GetStatus() run.Status
	ListRuns(ctx context.Context, limit int) ([]scraper.Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (scraper.Run, error)
}

// Progress hands out observer subscriptions for the WebSocket stream.
type Progress interface {
	Attach() *progress.Subscription
}

// ReadinessFunc reports whether downstream dependencies can serve traffic.
type ReadinessFunc func(ctx context.Context) error

// Config controls middleware and WebSocket behaviour.
type Config struct {
	AuthEnabled    bool
	APIKey         string
	RequestTimeout time.Duration
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// Server wires HTTP handlers to the run manager and progress hub.
type Server struct {
	router   chi.Router
	runner   Runner
	registry *source.Registry
	progress Progress
	ready    ReadinessFunc
	upgrader websocket.Upgrader
	cfg      Config
	logger   *zap.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithReadiness installs the check behind /readyz.
func WithReadiness(fn ReadinessFunc) Option {
	return func(s *Server) {
		s.ready = fn
	}
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	cfg Config,
	runner Runner,
	registry *source.Registry,
	hub Progress,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:   runner,
		registry: registry,
		progress: hub,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if s.cfg.AuthEnabled {
			r.Use(apiKeyMiddleware(s.cfg.APIKey))
		}
		// Upgraded connections cannot pass through http.TimeoutHandler.
		r.Get("/ws/scrape-progress", s.progressStream)

		r.Route("/api", func(r chi.Router) {
			r.Use(timeoutMiddleware(s.cfg.RequestTimeout))
			r.Get("/sources", s.listSources)
			r.Route("/scraper", func(r chi.Router) {
				r.Post("/start", s.startScrape)
				r.Post("/start-range", s.startRange)
				r.Post("/stop", s.stopScrape)
				r.Get("/status", s.status)
				r.Get("/runs", s.listRuns)
				r.Get("/runs/{run_id}", s.getRun)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestID returns the id assigned by requestIDMiddleware.
func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", requestID(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("error", rec),
						zap.String("path", r.URL.Path),
						zap.String("request_id", requestID(r.Context())),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
