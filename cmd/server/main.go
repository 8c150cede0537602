// Package main is the entry point for the stokado API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"stokado/internal/config"
	"stokado/internal/domain/catalogs/item"
	"stokado/internal/domain/catalogs/location"
	"stokado/internal/domain/consolidation"
	"stokado/internal/domain/ledger"
	"stokado/internal/domain/workorder"
	"stokado/internal/infrastructure/cache"
	v1 "stokado/internal/infrastructure/http/v1"
	"stokado/internal/infrastructure/storage/postgres"
	"stokado/internal/infrastructure/storage/postgres/catalog_repo"
	"stokado/internal/infrastructure/storage/postgres/issue_repo"
	"stokado/internal/infrastructure/storage/postgres/ledger_repo"
	"stokado/internal/infrastructure/storage/postgres/workorder_repo"
	"stokado/internal/jobs"
	"stokado/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: !cfg.IsProduction(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting stokado server")

	// --- Database ---
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:               cfg.PGDSN,
		MaxConns:          cfg.PGMaxConns,
		MinConns:          cfg.PGMinConns,
		MaxConnLifetime:   cfg.PGConnLife,
		MaxConnIdleTime:   cfg.PGConnIdle,
		HealthCheckPeriod: cfg.PGHealthTick,
	})
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Redis ---
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	var balanceCache ledger.BalanceCache
	if cfg.BalanceCacheTTL > 0 {
		balanceCache = cache.NewBalanceCache(redisClient, cfg.BalanceCacheTTL)
	}

	// --- Repositories ---
	itemRepo := catalog_repo.NewItemRepo(txManager)
	locationRepo := catalog_repo.NewLocationRepo(txManager)
	ledgerRepo := ledger_repo.NewLedgerRepo(txManager)
	issueRepo := issue_repo.NewIssueRepo(txManager)
	orderRepo := workorder_repo.NewWorkOrderRepo(txManager)

	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}
	outbox := postgres.NewOutboxPublisher(txManager)

	// --- Services ---
	itemService := item.NewService(itemRepo)
	locationService := location.NewService(locationRepo)

	ledgerService := ledger.NewService(ledgerRepo, locationRepo, txManager, ledger.Options{
		Issues: issueRepo,
		Cache:  balanceCache,
		Audit:  auditService,
	})

	orderRouter := workorder.NewRouter(orderRepo, ledgerService, txManager)
	scanner := consolidation.NewScanner(ledgerService, locationRepo, txManager)
	engine := consolidation.NewEngine(ledgerService, locationRepo, orderRouter, txManager, postgres.NewItemEvents(outbox))

	// --- Background job client ---
	jobsClient := jobs.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer jobsClient.Close()

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:      pool,
		Redis:     redisClient,
		Logger:    log,
		Items:     itemService,
		Locations: locationService,
		Ledger:    ledgerService,
		Issues:    issueRepo,
		Scanner:   scanner,
		Engine:    engine,
		Orders:    orderRepo,
		Jobs:      jobsClient,
	})

	// --- HTTP server ---
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
