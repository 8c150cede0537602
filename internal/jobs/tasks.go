// Package jobs defines the background tasks: scheduled duplicate scans,
// ledger repair passes, work order sweeps and outbox relay.
package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"stokado/internal/core/id"
)

const (
	// QueueDefault is the queue all background jobs run on.
	QueueDefault = "default"

	// TaskLedgerRepair runs the chunked full-ledger balance recompute.
	TaskLedgerRepair = "ledger:repair"

	// TaskPartitionRecalc recomputes a single partition.
	TaskPartitionRecalc = "ledger:recalc"

	// TaskDuplicateScan finds items with stock spread over several locations.
	TaskDuplicateScan = "consolidation:scan"

	// TaskOrderSweep flags and reroutes open orders pointing at drained
	// locations.
	TaskOrderSweep = "workorder:sweep"

	// TaskOutboxRelay delivers pending outbox messages.
	TaskOutboxRelay = "outbox:relay"

	// TaskNotify fans a committed event out to subscribers. Delivery failures
	// retry here, far away from the transaction that produced the event.
	TaskNotify = "notify:event"
)

// RepairPayload parameterizes the full repair pass.
type RepairPayload struct {
	ChunkSize int `json:"chunkSize"`
	Workers   int `json:"workers"`
}

// NewRepairTask builds the full-repair task.
func NewRepairTask(payload RepairPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerRepair, data), nil
}

// RecalcPayload identifies one partition to recompute.
type RecalcPayload struct {
	ItemID     id.ID `json:"itemId"`
	LocationID id.ID `json:"locationId"`
}

// NewRecalcTask builds a single-partition recompute task.
func NewRecalcTask(payload RecalcPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPartitionRecalc, data), nil
}

// SweepPayload bounds one sweep run.
type SweepPayload struct {
	Limit int `json:"limit"`
}

// NewSweepTask builds the order sweep task.
func NewSweepTask(payload SweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderSweep, data), nil
}

// NewDuplicateScanTask builds the scan task. The scan takes no parameters,
// it always walks every partition head.
func NewDuplicateScanTask() *asynq.Task {
	return asynq.NewTask(TaskDuplicateScan, nil)
}

// NewOutboxRelayTask builds the relay tick task.
func NewOutboxRelayTask() *asynq.Task {
	return asynq.NewTask(TaskOutboxRelay, nil)
}

// NotifyPayload carries one committed event toward subscribers.
type NotifyPayload struct {
	EventType     string          `json:"eventType"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   id.ID           `json:"aggregateId"`
	Body          json.RawMessage `json:"body"`
}

// NewNotifyTask builds a notification delivery task.
func NewNotifyTask(payload NotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotify, data), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an asynq-backed client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueRepair schedules a full repair pass.
func (c *Client) EnqueueRepair(ctx context.Context, payload RepairPayload) error {
	task, err := NewRepairTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// EnqueueRecalc schedules a single-partition recompute.
func (c *Client) EnqueueRecalc(ctx context.Context, payload RecalcPayload) error {
	task, err := NewRecalcTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// EnqueueScan schedules a duplicate scan.
func (c *Client) EnqueueScan(ctx context.Context) error {
	_, err := c.client.EnqueueContext(ctx, NewDuplicateScanTask(), asynq.Queue(QueueDefault))
	return err
}

// EnqueueSweep schedules an order consistency sweep.
func (c *Client) EnqueueSweep(ctx context.Context, payload SweepPayload) error {
	task, err := NewSweepTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// EnqueueNotify schedules delivery of one event.
func (c *Client) EnqueueNotify(ctx context.Context, payload NotifyPayload) error {
	task, err := NewNotifyTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(5))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
