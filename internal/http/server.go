// Package http serves the operational surface of fintrack: health probes,
// Prometheus metrics and read-only JSON views of the cached ledger.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// Reader is the part of the finance service the server reads from.
type Reader interface {
	Transactions(ctx context.Context) ([]core.Transaction, error)
	Budgets(ctx context.Context) ([]core.Budget, error)
	Settings(ctx context.Context) (core.Settings, error)
	MonthlySummary(ctx context.Context, month core.Month) (core.MonthlySummary, error)
}

type Config struct {
	Addr     string
	Reader   Reader
	Gatherer prometheus.Gatherer
	Logger   *log.Logger
	// RateLimit is the number of requests per minute each client may make
	// to /api. Zero disables limiting.
	RateLimit int
	// Now picks the default month of month-scoped views.
	Now func() time.Time
}

type Server struct {
	http.Server
	reader  Reader
	logger  *log.Logger
	now     func() time.Time
	limiter *rateLimiter
}

func NewServer(cfg Config) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{
		reader: cfg.Reader,
		logger: log.OrDiscard(cfg.Logger).WithComponent(log.ComponentHTTP),
		now:    cfg.Now,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(NewHeadersMiddleware(DefaultHeadersConfig()).Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	if cfg.RateLimit > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit)
	}

	r.Route("/api", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Get("/categories", s.handleCategories)
		r.Get("/transactions", s.handleTransactions)
		r.Get("/budgets", s.handleBudgets)
		r.Get("/settings", s.handleSettings)
		r.Get("/summary/{month}", s.handleSummary)
	})

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called. It returns nil on a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.Addr, log.FieldOperation, log.OpStartup)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the rate limiter and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	return s.Server.Shutdown(ctx)
}

// requestLogger stamps the chi request id on the request logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := s.logger.With(log.FieldRequestID, chimiddleware.GetReqID(r.Context()))
		log.Middleware(logger)(next).ServeHTTP(w, r)
	})
}
