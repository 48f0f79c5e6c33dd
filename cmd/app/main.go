// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"freelancer-dashboard-billing/internal/config"
	"freelancer-dashboard-billing/internal/domain/ports/adapter"
	"freelancer-dashboard-billing/internal/infra/adapters/billing"
	"freelancer-dashboard-billing/internal/infra/api"
	pg "freelancer-dashboard-billing/internal/infra/db/postgres"
	"freelancer-dashboard-billing/internal/infra/logging"
	"freelancer-dashboard-billing/internal/infra/metrics"
	red "freelancer-dashboard-billing/internal/infra/redis"
	"freelancer-dashboard-billing/internal/infra/sched"
	"freelancer-dashboard-billing/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop billing gateway, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Runtime.Dev {
		log.Printf("[DEV MODE] Enabled")
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	dedup := red.NewEventDedup(redisClient)

	// ---- Repositories ----
	records := pg.NewEntitlementRepo(pool)

	// ---- Billing gateway ----
	var gateway adapter.BillingGateway
	switch strings.ToLower(cfg.Billing.Provider) {
	case "lemonsqueezy":
		gateway, err = billing.NewLemonSqueezyGateway(cfg.Billing.APIKey, cfg.Billing.BaseURL, cfg.Billing.Timeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("billing gateway")
		}
	case "noop", "":
		if !cfg.Runtime.Dev {
			logger.Fatal().Str("provider", cfg.Billing.Provider).Msg("noop billing gateway requires -dev")
		}
		gateway = billing.NewNoopGateway()
	default:
		logger.Fatal().Str("provider", cfg.Billing.Provider).Msg("unknown billing provider")
	}
	logger.Info().Str("provider", gateway.Name()).Msg("billing gateway ready")

	// ---- Use cases ----
	reconciler := usecase.NewReconcilerUseCase(records, dedup, gateway, cfg.Redis.DedupWindow, logger)
	subUC := usecase.NewSubscriptionUseCase(records, reconciler, logger)

	// ---- HTTP server ----
	auth := api.NewAuthVerifier(cfg.Auth.JWTSecret)
	srv := api.NewServer(subUC, reconciler, auth, cfg.Billing.WebhookSecret, logger)

	r := chi.NewRouter()
	srv.Register(r)
	handler := api.Chain(r,
		api.TraceID(),
		api.RequestLog(logger),
		api.Recover(logger),
		api.Timeout(cfg.Server.RequestTimeout),
	)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server")
		}
	}()

	// ---- Expiry worker ----
	worker := sched.NewExpiryWorker(
		cfg.Scheduler.ExpirySweepInterval,
		cfg.Scheduler.ExpirySweepBatch,
		records,
		reconciler,
		logger,
	)
	go func() { _ = worker.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
