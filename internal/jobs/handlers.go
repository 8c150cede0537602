package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	appctx "stokado/internal/core/context"
	"stokado/internal/domain/consolidation"
	"stokado/internal/domain/ledger"
	"stokado/internal/domain/workorder"
	"stokado/internal/infrastructure/storage/postgres"
	"stokado/pkg/logger"
)

// workerContext stamps the actor so ledger writes made by jobs are traceable.
func workerContext(ctx context.Context) context.Context {
	return appctx.WithActor(ctx, &appctx.ActorContext{Actor: "worker", Via: "worker"})
}

// RepairJob runs the chunked full-ledger recompute.
type RepairJob struct {
	ledger *ledger.Service
}

// NewRepairJob creates the handler.
func NewRepairJob(ledgerSvc *ledger.Service) *RepairJob {
	return &RepairJob{ledger: ledgerSvc}
}

// Handle executes TaskLedgerRepair.
func (j *RepairJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload RepairPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	ctx = workerContext(ctx)
	if err := j.ledger.RepairAll(ctx, payload.ChunkSize, payload.Workers); err != nil {
		return fmt.Errorf("repair pass: %w", err)
	}
	return nil
}

// RecalcJob recomputes one partition.
type RecalcJob struct {
	ledger *ledger.Service
}

// NewRecalcJob creates the handler.
func NewRecalcJob(ledgerSvc *ledger.Service) *RecalcJob {
	return &RecalcJob{ledger: ledgerSvc}
}

// Handle executes TaskPartitionRecalc.
func (j *RecalcJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload RecalcPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	ctx = workerContext(ctx)
	return j.ledger.Recalculate(ctx, payload.ItemID, payload.LocationID)
}

// ScanJob runs the duplicate scanner and logs its findings. Scans never
// mutate the ledger; consolidation stays an explicit operator decision.
type ScanJob struct {
	scanner *consolidation.Scanner
}

// NewScanJob creates the handler.
func NewScanJob(scanner *consolidation.Scanner) *ScanJob {
	return &ScanJob{scanner: scanner}
}

// Handle executes TaskDuplicateScan.
func (j *ScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	ctx = workerContext(ctx)

	candidates, err := j.scanner.FindMultiLocationItems(ctx)
	if err != nil {
		return fmt.Errorf("duplicate scan: %w", err)
	}

	for _, c := range candidates {
		logger.Info(ctx, "consolidation candidate",
			"item_id", c.ItemID,
			"locations", len(c.Locations),
			"suggested", c.SuggestedLocation,
		)
	}
	logger.Info(ctx, "duplicate scan finished", "candidates", len(candidates))
	return nil
}

// SweepJob reroutes open orders whose location no longer holds their stock.
type SweepJob struct {
	router *workorder.Router
}

// NewSweepJob creates the handler.
func NewSweepJob(router *workorder.Router) *SweepJob {
	return &SweepJob{router: router}
}

// Handle executes TaskOrderSweep.
func (j *SweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = 500
	}

	ctx = workerContext(ctx)
	result, err := j.router.Sweep(ctx, payload.Limit)
	if err != nil {
		return fmt.Errorf("order sweep: %w", err)
	}

	logger.Info(ctx, "order sweep finished",
		"checked", result.Checked,
		"flagged", result.Flagged,
		"repointed", result.Repointed,
		"split", result.Split,
	)
	return nil
}

// RelayJob drains the transactional outbox: pending rows become notify tasks.
type RelayJob struct {
	relay *postgres.OutboxRelay
}

// NewRelayJob creates the handler.
func NewRelayJob(relay *postgres.OutboxRelay) *RelayJob {
	return &RelayJob{relay: relay}
}

// Handle executes TaskOutboxRelay.
func (j *RelayJob) Handle(ctx context.Context, t *asynq.Task) error {
	ctx = workerContext(ctx)

	processed, err := j.relay.ProcessBatch(ctx)
	if err != nil {
		return fmt.Errorf("outbox relay: %w", err)
	}
	if processed > 0 {
		logger.Info(ctx, "outbox relayed", "messages", processed)
	}

	moved, err := j.relay.MoveToDLQ(ctx)
	if err != nil {
		return fmt.Errorf("outbox dlq: %w", err)
	}
	if moved > 0 {
		logger.Warn(ctx, "outbox messages dead-lettered", "messages", moved)
	}
	return nil
}

// NotifyForwarder adapts outbox messages into queued notify tasks.
// It is the relay's delivery handler.
type NotifyForwarder struct {
	client *Client
}

// NewNotifyForwarder creates the forwarder.
func NewNotifyForwarder(client *Client) *NotifyForwarder {
	return &NotifyForwarder{client: client}
}

// Handle converts one outbox message into a notify task.
func (f *NotifyForwarder) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	return f.client.EnqueueNotify(ctx, NotifyPayload{
		EventType:     msg.EventType,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		Body:          msg.Payload,
	})
}

// NotifyJob is the delivery end of the pipeline. Today it logs the event;
// webhook and broker integrations plug in here.
type NotifyJob struct{}

// NewNotifyJob creates the handler.
func NewNotifyJob() *NotifyJob {
	return &NotifyJob{}
}

// Handle executes TaskNotify.
func (j *NotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload NotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger.Info(workerContext(ctx), "event delivered",
		"event_type", payload.EventType,
		"aggregate_type", payload.AggregateType,
		"aggregate_id", payload.AggregateID,
	)
	return nil
}
