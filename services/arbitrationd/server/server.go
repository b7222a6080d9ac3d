package server

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tripartite/native/arbitration"
	"tripartite/observability"
	"tripartite/observability/metrics"
	telemetry "tripartite/observability/otel"
	"tripartite/storage/eventlog"
)

// Accounts is the participant balance view backed by the ledger.
type Accounts interface {
	Balance(addr [20]byte) (*big.Int, error)
	Credit(addr [20]byte, amount *big.Int) error
}

// EventQuerier reads persisted registry events.
type EventQuerier interface {
	ByAgreement(ctx context.Context, id uint64) ([]eventlog.Record, error)
	Since(ctx context.Context, after int64, limit int) ([]eventlog.Record, error)
	Failures() uint64
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine      *arbitration.Engine
	Accounts    Accounts
	Events      EventQuerier
	Verifier    *Verifier
	Idempotency *IdempotencyStore
	RateLimit   RateLimit
	Logger      *slog.Logger
}

// Server exposes the registry over HTTP. The engine holds no locks, so every
// engine call goes through mu.
type Server struct {
	engine      *arbitration.Engine
	accounts    Accounts
	events      EventQuerier
	verifier    *Verifier
	idempotency *IdempotencyStore
	limiter     *RateLimiter
	logger      *slog.Logger
	metrics     *metrics.ArbitrationMetrics

	mu     sync.Mutex
	router http.Handler
}

// New constructs the HTTP router with authentication, rate limiting and
// idempotency support.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("server: engine required")
	}
	if cfg.Accounts == nil {
		return nil, errors.New("server: accounts required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("server: verifier required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		engine:      cfg.Engine,
		accounts:    cfg.Accounts,
		events:      cfg.Events,
		verifier:    cfg.Verifier,
		idempotency: cfg.Idempotency,
		limiter:     NewRateLimiter(cfg.RateLimit),
		logger:      logger,
		metrics:     metrics.Arbitration(),
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router wrapped with tracing.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "arbitrationd")
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.verifier.Authenticate)
		api.Use(s.limiter.Middleware)
		api.Use(s.idempotency.Middleware)

		api.Get("/events", s.handleEventFeed)
		api.Post("/agreements", s.handleCreate)
		api.Route("/agreements/{id}", func(ag chi.Router) {
			ag.Get("/", s.handleGetAgreement)
			ag.Get("/status", s.handleGetStatus)
			ag.Get("/events", s.handleGetEvents)
			ag.Post("/provider-fee", s.handleProviderFee)
			ag.Post("/arbiter-confirmation", s.handleConfirmArbiter)
			ag.Post("/provider-error", s.handleProviderError)
			ag.Post("/dispute", s.handleDispute)
			ag.Post("/evidence", s.handleEvidence)
			ag.Post("/decision", s.handleDecision)
			ag.Post("/release", s.handleRelease)
			ag.Post("/refund", s.handleRefund)
			ag.Post("/partial-refund-offers", s.handleOffer)
			ag.Post("/partial-settlement", s.handleSettlement)
		})
		api.Get("/accounts/{address}", s.handleGetAccount)
		api.With(RequireRole(RoleAdmin)).Post("/admin/accounts/{address}/credit", s.handleCredit)
	})

	return r
}

// observe logs every request and records HTTP metrics by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		elapsed := time.Since(start)
		observability.HTTPMetrics().Observe(route, r.Method, status, elapsed)

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.LogAttrs(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", route),
			slog.Int("status", status),
			slog.Duration("duration", elapsed),
			slog.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

// run executes op against the engine under the server lock and records the
// outcome.
func (s *Server) run(ctx context.Context, operation string, op func(*arbitration.Engine) error) error {
	_, span := telemetry.StartOperation(ctx, operation)
	start := time.Now()
	s.mu.Lock()
	err := op(s.engine)
	s.mu.Unlock()

	outcome := string(arbitration.Classify(err))
	precondition := arbitration.IsPrecondition(err)
	s.metrics.ObserveOperation(operation, outcome, time.Since(start))
	telemetry.EndOperation(span, outcome, err, precondition)
	if err != nil && !precondition {
		s.logger.Error("registry operation failed",
			slog.String("operation", operation),
			slog.String("kind", outcome),
			slog.Any("error", err))
	}
	return err
}

func (s *Server) snapshot(id uint64) (agreementView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.engine.Agreement(id)
	if err != nil {
		return agreementView{}, err
	}
	window, err := s.engine.Window(id)
	if err != nil {
		return agreementView{}, err
	}
	return newAgreementView(a, window), nil
}
