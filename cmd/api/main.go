package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"safiripay/internal/config"
	httpx "safiripay/internal/http"
	"safiripay/internal/provider/daraja"
	"safiripay/internal/services/audit"
	"safiripay/internal/services/orchestrator"
	"safiripay/internal/services/reconcile"
	"safiripay/internal/services/settlement"
	"safiripay/internal/store/postgres"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init DB
	pool := postgres.MustOpen(ctx, cfg.DB.DSN)
	defer pool.Close()
	store := postgres.NewStore(pool)

	// Provider config snapshot from the DB singleton
	providerStore := config.NewProviderStore(postgres.NewProviderConfigStore(pool))
	if err := providerStore.Reload(ctx); err != nil {
		log.Warn().Err(err).Msg("provider config not loaded; initiates will fail until /ops/config/reload")
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	}

	client := daraja.New(providerStore, redisClient)

	settlementSvc := settlement.NewService()
	orchestratorSvc := orchestrator.NewService(providerStore, client, store.Attempts(), store.Obligations())
	reconcileSvc := reconcile.NewService(store, store.Attempts(), store.Events(), settlementSvc)
	auditSvc := audit.NewService(client, store.Attempts(), cfg.Worker.AuditEvery, cfg.Worker.AuditWindow)

	// Background workers
	sweeper := reconcile.NewSweeper(store.Attempts(), cfg.Worker.SweepEvery, cfg.Worker.PendingTimeout)
	go sweeper.Run(ctx)
	go auditSvc.Run(ctx)

	r := httpx.NewRouter(httpx.RouterDependencies{
		Config:        cfg,
		ProviderStore: providerStore,
		Daraja:        client,
		Orchestrator:  orchestratorSvc,
		Reconciler:    reconcileSvc,
		Auditor:       auditSvc,
		Attempts:      store.Attempts(),
		Obligations:   store.Obligations(),
		Events:        store.Events(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Msgf("SafiriPay API listening on :%s", cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	cancel()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	log.Info().Msg("server stopped")
}
