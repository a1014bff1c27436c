package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dialplane/dialplane/internal/api"
	"github.com/dialplane/dialplane/internal/callstore"
	"github.com/dialplane/dialplane/internal/callstore/pgstore"
	"github.com/dialplane/dialplane/internal/config"
	"github.com/dialplane/dialplane/internal/database"
	"github.com/dialplane/dialplane/internal/dialer"
	"github.com/dialplane/dialplane/internal/metrics"
	"github.com/dialplane/dialplane/internal/notify"
	"github.com/dialplane/dialplane/internal/orchestrator"
	"github.com/dialplane/dialplane/internal/recordings"
	"github.com/dialplane/dialplane/internal/routing"
	"github.com/dialplane/dialplane/internal/telnyx"
)

// staleCallAge is how old an active-call pairing may get before the janitor
// assumes its hangup webhook was lost and removes it.
const staleCallAge = 4 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting dialplane",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
	)

	// Open database and run migrations.
	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Load system configuration from database.
	sysConfig, err := database.NewSystemConfigRepository(context.Background(), db)
	if err != nil {
		slog.Error("failed to load system config", "error", err)
		os.Exit(1)
	}

	// Call-session store. A PostgreSQL DSN enables a store shared across
	// instances; without one, sessions live in process memory.
	var sessions callstore.Store
	if cfg.SessionStoreDSN != "" {
		pg, err := pgstore.New(cfg.SessionStoreDSN)
		if err != nil {
			slog.Error("failed to open session store", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		startSessionJanitor(appCtx, pg)
		sessions = pg
		slog.Info("using postgresql session store")
	} else {
		sessions = callstore.NewMemoryStore()
	}

	// Telephony provider client and repositories.
	client := telnyx.NewClient(cfg.TelnyxAPIBase, cfg.TelnyxAPIKey)
	if !client.Configured() {
		slog.Warn("no telnyx api key configured, call control is disabled")
	}

	agents := database.NewAgentRepository(db)
	numbers := database.NewInboundNumberRepository(db)
	voiceSettings := database.NewVoiceSettingsRepository(db)
	activeCalls := database.NewActiveCallRepository(db)
	callRecords := database.NewCallRecordRepository(db)

	resolver := routing.NewResolver(agents, numbers, voiceSettings,
		cfg.SIPDomain, cfg.FallbackSIPUsername, logger)

	// Push notifications are optional; the orchestrator runs without them.
	var notifier orchestrator.Notifier
	if cfg.FCMCredentialsFile != "" {
		fcm, err := notify.NewFCMNotifier(appCtx, cfg.FCMCredentialsFile, agents, logger)
		if err != nil {
			slog.Error("failed to initialise fcm, continuing without push", "error", err)
		} else {
			notifier = fcm
		}
	}

	orch := orchestrator.New(client, sessions, resolver, agents, activeCalls, callRecords, notifier, logger)

	dl := dialer.New(client, sessions, callRecords, dialer.Config{
		CallControlAppID:  cfg.CallControlAppID,
		SIPConnectionID:   cfg.SIPConnectionID,
		SIPDomain:         cfg.SIPDomain,
		DefaultFromNumber: cfg.DefaultFromNumber,
	}, logger)

	reconciler := recordings.NewReconciler(client, callRecords, logger)
	if cfg.ReconcileInterval > 0 {
		recordings.StartSyncTicker(appCtx, reconciler, sysConfig,
			time.Duration(cfg.ReconcileInterval)*time.Minute)
	}

	startActiveCallJanitor(appCtx, activeCalls)

	// Prometheus metrics.
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(activeCalls, sessions, callRecords, callRecords, time.Now()))
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("failed to load jwt secret", "error", err)
		os.Exit(1)
	}

	handler := api.NewServer(cfg, api.Deps{
		DB:           db,
		Orchestrator: orch,
		Dialer:       dl,
		Reconciler:   reconciler,
		Sessions:     sessions,
		Metrics:      metricsHandler,
		JWTSecret:    jwtSecret,
	})
	defer handler.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down server")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("dialplane stopped")
}

// startActiveCallJanitor periodically removes active-call pairings whose
// hangup webhook never arrived.
func startActiveCallJanitor(ctx context.Context, activeCalls database.ActiveCallRepository) {
	go func() {
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := activeCalls.DeleteStale(ctx, staleCallAge)
				if err != nil {
					slog.Error("active call cleanup failed", "error", err)
					continue
				}
				if removed > 0 {
					slog.Info("removed stale active calls", "count", removed)
				}
			}
		}
	}()
}

// startSessionJanitor prunes call-session rows that outlived any plausible
// call. Only the shared PostgreSQL store needs this; the in-memory store
// dies with the process.
func startSessionJanitor(ctx context.Context, pg *pgstore.Store) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := pg.DeleteStale(ctx, staleCallAge)
				if err != nil {
					slog.Error("session store cleanup failed", "error", err)
					continue
				}
				if removed > 0 {
					slog.Info("removed stale call sessions", "count", removed)
				}
			}
		}
	}()
}
