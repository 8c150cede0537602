package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"stokado/pkg/logger"
)

// CronSpecs holds the periodic schedules. Zero-value entries fall back to
// defaults in NewWorker.
type CronSpecs struct {
	DuplicateScan string // default nightly
	OrderSweep    string // default hourly
	OutboxRelay   string // default every minute
	LedgerRepair  string // default weekly, Sunday night
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Concurrency int
	Cron        CronSpecs

	// Chunking for the scheduled repair pass. Zero values let the
	// ledger service pick its defaults.
	RepairChunkSize int
	RepairWorkers   int

	Repair *RepairJob
	Recalc *RecalcJob
	Scan   *ScanJob
	Sweep  *SweepJob
	Relay  *RelayJob
	Notify *NotifyJob
}

// Worker wraps the asynq server with the periodic scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
}

// NewWorker constructs the worker with all handlers and schedules wired.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}

	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})

	mux := asynq.NewServeMux()
	if cfg.Repair != nil {
		mux.HandleFunc(TaskLedgerRepair, cfg.Repair.Handle)
	}
	if cfg.Recalc != nil {
		mux.HandleFunc(TaskPartitionRecalc, cfg.Recalc.Handle)
	}
	if cfg.Scan != nil {
		mux.HandleFunc(TaskDuplicateScan, cfg.Scan.Handle)
	}
	if cfg.Sweep != nil {
		mux.HandleFunc(TaskOrderSweep, cfg.Sweep.Handle)
	}
	if cfg.Relay != nil {
		mux.HandleFunc(TaskOutboxRelay, cfg.Relay.Handle)
	}
	if cfg.Notify != nil {
		mux.HandleFunc(TaskNotify, cfg.Notify.Handle)
	}

	scheduler := asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
	repairPayload := RepairPayload{ChunkSize: cfg.RepairChunkSize, Workers: cfg.RepairWorkers}
	if err := registerCron(scheduler, cfg.Cron, repairPayload); err != nil {
		return nil, err
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler}, nil
}

func registerCron(scheduler *asynq.Scheduler, cron CronSpecs, repair RepairPayload) error {
	if cron.DuplicateScan == "" {
		cron.DuplicateScan = "0 2 * * *"
	}
	if cron.OrderSweep == "" {
		cron.OrderSweep = "0 * * * *"
	}
	if cron.OutboxRelay == "" {
		cron.OutboxRelay = "* * * * *"
	}
	if cron.LedgerRepair == "" {
		cron.LedgerRepair = "0 3 * * 0"
	}

	if _, err := scheduler.Register(cron.DuplicateScan, NewDuplicateScanTask()); err != nil {
		return err
	}

	sweepTask, err := NewSweepTask(SweepPayload{Limit: 500})
	if err != nil {
		return err
	}
	if _, err := scheduler.Register(cron.OrderSweep, sweepTask); err != nil {
		return err
	}

	if _, err := scheduler.Register(cron.OutboxRelay, NewOutboxRelayTask()); err != nil {
		return err
	}

	repairTask, err := NewRepairTask(repair)
	if err != nil {
		return err
	}
	if _, err := scheduler.Register(cron.LedgerRepair, repairTask); err != nil {
		return err
	}
	return nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.scheduler.Start(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()

	select {
	case <-ctx.Done():
		logger.Info(ctx, "worker shutting down")
		w.scheduler.Shutdown()
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		w.scheduler.Shutdown()
		return err
	}
}
