// Command relaydesk runs the inbound messaging gateway: webhook ingestion,
// outbound sending and the automation callback API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	rdhttp "github.com/relaydesk/relaydesk/internal/adapter/http"
	"github.com/relaydesk/relaydesk/internal/adapter/n8n"
	rdnats "github.com/relaydesk/relaydesk/internal/adapter/nats"
	"github.com/relaydesk/relaydesk/internal/adapter/otel"
	"github.com/relaydesk/relaydesk/internal/adapter/postgres"
	"github.com/relaydesk/relaydesk/internal/adapter/ristretto"
	"github.com/relaydesk/relaydesk/internal/adapter/ws"
	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/logger"
	"github.com/relaydesk/relaydesk/internal/middleware"
	"github.com/relaydesk/relaydesk/internal/service"
	"github.com/relaydesk/relaydesk/internal/whatsapp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLogger := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer closeLogger.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"nats", cfg.NATS.URL != "",
		"automation", cfg.Automation.URL != "",
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownTelemetry, err := otel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	dedupCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer dedupCache.Close()

	// --- Services ---

	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	trigger := n8n.NewTrigger(cfg.Automation.URL, cfg.Automation.Secret, cfg.Automation.Timeout)
	runner := service.NewRunner(cfg.Server.WebhookWorkers)

	processor := service.NewProcessor(store, dedupCache, trigger, hub, cfg.Cache.DedupTTL)
	processor.SetMetrics(metrics)

	client := whatsapp.NewClient("", cfg.WhatsApp.PhoneNumberID,
		cfg.WhatsApp.AccessToken, cfg.WhatsApp.APIVersion)
	sendSvc := service.NewSendService(store, client, hub)
	takeoverSvc := service.NewTakeoverService(store, hub)

	// NATS is optional; without it events only reach WebSocket clients.
	if cfg.NATS.URL != "" {
		queue, err := rdnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()
		processor.SetQueue(queue)
		takeoverSvc.SetQueue(queue)
	}

	// --- HTTP ---

	handlers := rdhttp.NewHandlers(processor, runner, sendSvc, takeoverSvc,
		cfg.WhatsApp.AppSecret, cfg.WhatsApp.VerifyToken)
	handlers.SetPinger(pool)
	handlers.SetMetrics(metrics)

	r := chi.NewRouter()
	r.Use(rdhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(rdhttp.Logger)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	rdhttp.MountRoutes(r, handlers, hub, cfg.Automation.Secret)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Let detached webhook processing finish before the pool closes.
	if err := runner.Drain(shutdownCtx); err != nil {
		slog.Warn("background processing drain timed out", "error", err)
	}
	return nil
}
