// Package ledger_repo provides the PostgreSQL implementation of the ledger
// store: the append-only movements table with materialized running balances.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stokado/internal/core/entity"
	"stokado/internal/core/id"
	"stokado/internal/domain/ledger"
	"stokado/internal/infrastructure/storage/postgres"
)

const movementsTable = "ledger_movements"

var movementCols = []string{
	"line_id", "item_id", "location_id", "direction", "quantity",
	"occurred_at", "seq", "reference", "actor", "running_balance",
	"flags", "created_at",
}

// LedgerRepo implements ledger.Repository on PostgreSQL.
//
// Partition order is (occurred_at, seq); every query here uses row-value
// comparison on that pair so backdated inserts slot into the right place.
type LedgerRepo struct {
	builder squirrel.StatementBuilderType
	txm     *postgres.TxManager
	batch   *postgres.BatchExecutor
}

// NewLedgerRepo creates the repository.
func NewLedgerRepo(txm *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		txm:     txm,
		batch:   postgres.NewBatchExecutor(txm),
	}
}

// Insert persists one movement.
func (r *LedgerRepo) Insert(ctx context.Context, m *entity.Movement) error {
	q := r.builder.Insert(movementsTable).
		Columns(movementCols...).
		Values(
			m.LineID, m.ItemID, m.LocationID, m.Direction, m.Quantity,
			m.OccurredAt, m.Seq, m.Reference, m.Actor, m.RunningBalance,
			m.Flags, m.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// UpdateBalances rewrites running balances for the given lines.
// Inside a transaction all updates go out in one batch round-trip.
func (r *LedgerRepo) UpdateBalances(ctx context.Context, changes []ledger.BalanceChange) error {
	if len(changes) == 0 {
		return nil
	}

	const updateSQL = "UPDATE " + movementsTable + " SET running_balance = $1 WHERE line_id = $2"

	if r.txm.GetTx(ctx) != nil {
		queries := make([]postgres.BatchQuery, 0, len(changes))
		for _, c := range changes {
			queries = append(queries, postgres.BatchQuery{
				SQL:  updateSQL,
				Args: []any{c.Balance, c.LineID},
			})
		}
		if err := r.batch.ExecuteBatch(ctx, queries); err != nil {
			return fmt.Errorf("batch update balances: %w", err)
		}
		return nil
	}

	querier := r.txm.GetQuerier(ctx)
	for _, c := range changes {
		if _, err := querier.Exec(ctx, updateSQL, c.Balance, c.LineID); err != nil {
			return fmt.Errorf("update balance line %s: %w", c.LineID, err)
		}
	}
	return nil
}

// NextSeq returns max(seq)+1 for the partition. Safe only under the
// partition lock.
func (r *LedgerRepo) NextSeq(ctx context.Context, key entity.PartitionKey) (int64, error) {
	const sql = `
		SELECT COALESCE(MAX(seq), 0) + 1
		FROM ledger_movements
		WHERE item_id = $1 AND location_id = $2
	`

	var seq int64
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, key.ItemID, key.LocationID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return seq, nil
}

// Predecessor returns the entry immediately before (at, seq), or nil.
func (r *LedgerRepo) Predecessor(ctx context.Context, key entity.PartitionKey, at time.Time, seq int64) (*entity.Movement, error) {
	q := r.partitionSelect(key).
		Where(squirrel.Expr("(occurred_at, seq) < (?, ?)", at, seq)).
		OrderBy("occurred_at DESC", "seq DESC").
		Limit(1)

	return r.one(ctx, q)
}

// Following returns every entry strictly after (at, seq), in partition order.
func (r *LedgerRepo) Following(ctx context.Context, key entity.PartitionKey, at time.Time, seq int64) ([]entity.Movement, error) {
	q := r.partitionSelect(key).
		Where(squirrel.Expr("(occurred_at, seq) > (?, ?)", at, seq)).
		OrderBy("occurred_at", "seq")

	return r.many(ctx, q)
}

// Latest returns the partition's most recent entry, or nil when empty.
func (r *LedgerRepo) Latest(ctx context.Context, key entity.PartitionKey) (*entity.Movement, error) {
	q := r.partitionSelect(key).
		OrderBy("occurred_at DESC", "seq DESC").
		Limit(1)

	return r.one(ctx, q)
}

// Partition returns the whole partition in order.
func (r *LedgerRepo) Partition(ctx context.Context, key entity.PartitionKey) ([]entity.Movement, error) {
	q := r.partitionSelect(key).
		OrderBy("occurred_at", "seq")

	return r.many(ctx, q)
}

// Heads returns the latest entry of every partition, optionally for one item.
func (r *LedgerRepo) Heads(ctx context.Context, itemID *id.ID) ([]entity.PartitionHead, error) {
	q := r.builder.Select(
		"DISTINCT ON (item_id, location_id) item_id", "location_id",
		"running_balance", "occurred_at", "seq",
	).From(movementsTable).
		OrderBy("item_id", "location_id", "occurred_at DESC", "seq DESC")

	if itemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *itemID})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build heads query: %w", err)
	}

	var heads []entity.PartitionHead
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &heads, sql, args...); err != nil {
		return nil, fmt.Errorf("select heads: %w", err)
	}
	return heads, nil
}

// History lists an item's movements, newest first.
func (r *LedgerRepo) History(ctx context.Context, itemID id.ID, filter ledger.HistoryFilter) ([]entity.Movement, error) {
	q := r.builder.Select(movementCols...).
		From(movementsTable).
		Where(squirrel.Eq{"item_id": itemID})

	if filter.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *filter.LocationID})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"occurred_at": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.LtOrEq{"occurred_at": *filter.To})
	}

	q = q.OrderBy("occurred_at DESC", "seq DESC")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	return r.many(ctx, q)
}

// PartitionKeys pages all partition keys in (item_id, location_id) order.
func (r *LedgerRepo) PartitionKeys(ctx context.Context, after *entity.PartitionKey, limit int) ([]entity.PartitionKey, error) {
	q := r.builder.Select("DISTINCT item_id", "location_id").
		From(movementsTable).
		OrderBy("item_id", "location_id").
		Limit(uint64(limit))

	if after != nil {
		q = q.Where(squirrel.Expr("(item_id, location_id) > (?, ?)", after.ItemID, after.LocationID))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build keys query: %w", err)
	}

	var keys []entity.PartitionKey
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &keys, sql, args...); err != nil {
		return nil, fmt.Errorf("select partition keys: %w", err)
	}
	return keys, nil
}

// LockPartition takes the partition's advisory lock, scoped to the current
// transaction and reentrant within it.
func (r *LedgerRepo) LockPartition(ctx context.Context, key entity.PartitionKey) error {
	if r.txm.GetTx(ctx) == nil {
		return fmt.Errorf("partition lock requires transaction context")
	}

	const sql = "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))"
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, key.String()); err != nil {
		return fmt.Errorf("advisory lock %s: %w", key, err)
	}
	return nil
}

func (r *LedgerRepo) partitionSelect(key entity.PartitionKey) squirrel.SelectBuilder {
	return r.builder.Select(movementCols...).
		From(movementsTable).
		Where(squirrel.Eq{
			"item_id":     key.ItemID,
			"location_id": key.LocationID,
		})
}

func (r *LedgerRepo) one(ctx context.Context, q squirrel.SelectBuilder) (*entity.Movement, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m entity.Movement
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("select movement: %w", err)
	}
	return &m, nil
}

func (r *LedgerRepo) many(ctx context.Context, q squirrel.SelectBuilder) ([]entity.Movement, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []entity.Movement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

var _ ledger.Repository = (*LedgerRepo)(nil)
