package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tripartite/config"
	"tripartite/core/events"
	"tripartite/core/ledger"
	"tripartite/core/state"
	"tripartite/native/arbitration"
	"tripartite/observability"
	"tripartite/observability/logging"
	telemetry "tripartite/observability/otel"
	"tripartite/services/arbitrationd/server"
	"tripartite/storage"
	"tripartite/storage/eventlog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/arbitrationd/config.toml", "path to arbitrationd configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("arbitrationd: load config: %v", err)
	}

	logger := logging.Setup("arbitrationd", cfg.Environment, logging.Options{
		File:  cfg.LogFile,
		Level: logging.ParseLevel(cfg.LogLevel),
	})

	params, err := cfg.ArbitrationParams()
	if err != nil {
		log.Fatalf("arbitrationd: %v", err)
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "arbitrationd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,

		FeeUnit:       params.FeeUnit.String(),
		ProcedureUnit: params.ProcedureUnit,
	})
	if err != nil {
		log.Fatalf("arbitrationd: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	var db storage.Database
	if dir := strings.TrimSpace(cfg.DataDir); dir != "" {
		ldb, err := storage.NewLevelDB(dir)
		if err != nil {
			log.Fatalf("arbitrationd: open leveldb: %v", err)
		}
		db = ldb
	} else {
		logger.Warn("no data directory configured, state is kept in memory")
		db = storage.NewMemDB()
	}
	defer db.Close()

	manager := state.NewManager(db)
	book := ledger.New(manager)

	elog, err := eventlog.Open(cfg.EventLogPath, logger)
	if err != nil {
		log.Fatalf("arbitrationd: open event log: %v", err)
	}
	defer elog.Close()

	engine := arbitration.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(book)
	engine.SetNowFunc(book.Now)
	engine.SetEmitter(events.MultiEmitter{elog, observability.EventMetricsEmitter{}})
	if err := engine.SetParams(params); err != nil {
		log.Fatalf("arbitrationd: engine params: %v", err)
	}

	secret := strings.TrimSpace(os.Getenv(cfg.Auth.HSSecretEnv))
	if secret == "" {
		log.Fatalf("arbitrationd: %s must be set", cfg.Auth.HSSecretEnv)
	}
	verifier, err := server.NewVerifier(server.AuthConfig{
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Secret:   []byte(secret),
		Leeway:   30 * time.Second,
	})
	if err != nil {
		log.Fatalf("arbitrationd: configure auth: %v", err)
	}

	var idem *server.IdempotencyStore
	if path := strings.TrimSpace(cfg.IdempotencyPath); path != "" {
		idem, err = server.OpenIdempotencyStore(path, 24*time.Hour)
		if err != nil {
			log.Fatalf("arbitrationd: open idempotency store: %v", err)
		}
		defer idem.Close()
	}

	srv, err := server.New(server.Config{
		Engine:      engine,
		Accounts:    book,
		Events:      elog,
		Verifier:    verifier,
		Idempotency: idem,
		RateLimit: server.RateLimit{
			RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
			Burst:             cfg.RateLimit.Burst,
		},
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("arbitrationd: server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("arbitrationd listening", slog.String("address", cfg.ListenAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("http server error", slog.Any("error", err))
		}
	}

	logger.Info("shutting down arbitrationd")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
