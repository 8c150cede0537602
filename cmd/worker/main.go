// Package main is the entry point for the stokado background worker.
// It runs the repair, scan, sweep and outbox relay jobs with their
// periodic schedules.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"stokado/internal/config"
	"stokado/internal/domain/consolidation"
	"stokado/internal/domain/ledger"
	"stokado/internal/domain/workorder"
	"stokado/internal/infrastructure/cache"
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
	log.Info("starting stokado worker")

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

	txManager := postgres.NewTxManager(pool)

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

	locationRepo := catalog_repo.NewLocationRepo(txManager)
	ledgerRepo := ledger_repo.NewLedgerRepo(txManager)
	issueRepo := issue_repo.NewIssueRepo(txManager)
	orderRepo := workorder_repo.NewWorkOrderRepo(txManager)

	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}

	ledgerService := ledger.NewService(ledgerRepo, locationRepo, txManager, ledger.Options{
		Issues: issueRepo,
		Cache:  balanceCache,
		Audit:  auditService,
	})
	orderRouter := workorder.NewRouter(orderRepo, ledgerService, txManager)
	scanner := consolidation.NewScanner(ledgerService, locationRepo, txManager)

	redisOpts := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	jobsClient := jobs.NewClient(redisOpts)
	defer jobsClient.Close()

	relay := postgres.NewOutboxRelay(pool.Unwrap(), cfg.OutboxBatchSize, jobs.NewNotifyForwarder(jobsClient))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Concurrency: cfg.WorkerConcurrency,
		Cron: jobs.CronSpecs{
			DuplicateScan: cfg.CronDuplicateScan,
			OrderSweep:    cfg.CronOrderSweep,
			OutboxRelay:   cfg.CronOutboxRelay,
			LedgerRepair:  cfg.CronLedgerRepair,
		},
		RepairChunkSize: cfg.RepairChunkSize,
		RepairWorkers:   cfg.RepairWorkers,
		Repair:          jobs.NewRepairJob(ledgerService),
		Recalc:          jobs.NewRecalcJob(ledgerService),
		Scan:            jobs.NewScanJob(scanner),
		Sweep:           jobs.NewSweepJob(orderRouter),
		Relay:           jobs.NewRelayJob(relay),
		Notify:          jobs.NewNotifyJob(),
	})
	if err != nil {
		log.Fatalw("failed to build worker", "error", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("worker starting", "concurrency", cfg.WorkerConcurrency)
	if err := worker.Run(runCtx); err != nil {
		log.Fatalw("worker stopped with error", "error", err)
	}
	log.Info("worker stopped")
}
