// Package workorder_repo provides the PostgreSQL implementation of the work
// order store used by the dependent-order router.
package workorder_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/domain/workorder"
	"stokado/internal/infrastructure/storage/postgres"
)

const (
	ordersTable = "wo_orders"
	linesTable  = "wo_lines"
)

var orderCols = []string{
	"id", "number", "location_id", "status", "needs_location_fix",
	"assignee", "priority", "created_at", "updated_at",
}

var lineCols = []string{"id", "order_id", "item_id", "quantity"}

// WorkOrderRepo implements workorder.Repository. Orders always load with
// their lines attached; the router's repoint-or-split decision needs them.
type WorkOrderRepo struct {
	builder squirrel.StatementBuilderType
	txm     *postgres.TxManager
}

// NewWorkOrderRepo creates the repository.
func NewWorkOrderRepo(txm *postgres.TxManager) *WorkOrderRepo {
	return &WorkOrderRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		txm:     txm,
	}
}

func (r *WorkOrderRepo) Create(ctx context.Context, order *workorder.WorkOrder) error {
	q := r.builder.Insert(ordersTable).
		Columns(orderCols...).
		Values(order.ID, order.Number, order.LocationID, order.Status,
			order.NeedsLocationFix, order.Assignee, order.Priority,
			order.CreatedAt, order.UpdatedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	if len(order.Lines) == 0 {
		return nil
	}

	lq := r.builder.Insert(linesTable).Columns(lineCols...)
	for _, line := range order.Lines {
		lq = lq.Values(line.ID, order.ID, line.ItemID, line.Quantity)
	}

	sql, args, err = lq.ToSql()
	if err != nil {
		return fmt.Errorf("build lines insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert order lines: %w", err)
	}
	return nil
}

func (r *WorkOrderRepo) GetByID(ctx context.Context, orderID id.ID) (*workorder.WorkOrder, error) {
	q := r.builder.Select(orderCols...).
		From(ordersTable).
		Where(squirrel.Eq{"id": orderID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var order workorder.WorkOrder
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &order, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("work order", orderID.String())
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := r.attachLines(ctx, []*workorder.WorkOrder{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *WorkOrderRepo) ListOpenByItemAndLocation(ctx context.Context, itemID, locationID id.ID) ([]*workorder.WorkOrder, error) {
	q := r.builder.Select(orderCols...).
		From(ordersTable).
		Where(squirrel.Eq{"location_id": locationID, "status": workorder.StatusOpen}).
		Where(squirrel.Expr("id IN (SELECT order_id FROM wo_lines WHERE item_id = ?)", itemID)).
		OrderBy("created_at")

	return r.selectWithLines(ctx, q)
}

func (r *WorkOrderRepo) ListOpen(ctx context.Context, needsFixOnly bool, limit int) ([]*workorder.WorkOrder, error) {
	q := r.builder.Select(orderCols...).
		From(ordersTable).
		Where(squirrel.Eq{"status": workorder.StatusOpen}).
		OrderBy("created_at")

	if needsFixOnly {
		q = q.Where(squirrel.Eq{"needs_location_fix": true})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	return r.selectWithLines(ctx, q)
}

func (r *WorkOrderRepo) UpdateLocation(ctx context.Context, orderID, locationID id.ID) error {
	q := r.builder.Update(ordersTable).
		Set("location_id", locationID).
		Set("needs_location_fix", false).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": orderID})

	return r.execOne(ctx, q, orderID)
}

func (r *WorkOrderRepo) SetNeedsFix(ctx context.Context, orderID id.ID, needsFix bool) error {
	q := r.builder.Update(ordersTable).
		Set("needs_location_fix", needsFix).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": orderID})

	return r.execOne(ctx, q, orderID)
}

func (r *WorkOrderRepo) DeleteLines(ctx context.Context, orderID id.ID, lineIDs []id.ID) error {
	if len(lineIDs) == 0 {
		return nil
	}

	q := r.builder.Delete(linesTable).
		Where(squirrel.Eq{"order_id": orderID, "id": lineIDs})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete order lines: %w", err)
	}
	return nil
}

func (r *WorkOrderRepo) Delete(ctx context.Context, orderID id.ID) error {
	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, "DELETE FROM wo_lines WHERE order_id = $1", orderID); err != nil {
		return fmt.Errorf("delete order lines: %w", err)
	}
	if _, err := querier.Exec(ctx, "DELETE FROM wo_orders WHERE id = $1", orderID); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

func (r *WorkOrderRepo) selectWithLines(ctx context.Context, q squirrel.SelectBuilder) ([]*workorder.WorkOrder, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var orders []*workorder.WorkOrder
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &orders, sql, args...); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachLines loads all lines of the given orders in one query.
func (r *WorkOrderRepo) attachLines(ctx context.Context, orders []*workorder.WorkOrder) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]id.ID, 0, len(orders))
	byID := make(map[id.ID]*workorder.WorkOrder, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}

	q := r.builder.Select(lineCols...).
		From(linesTable).
		Where(squirrel.Eq{"order_id": ids}).
		OrderBy("order_id", "id")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build lines query: %w", err)
	}

	var lines []workorder.Line
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &lines, sql, args...); err != nil {
		return fmt.Errorf("load order lines: %w", err)
	}

	for _, line := range lines {
		if o, ok := byID[line.OrderID]; ok {
			o.Lines = append(o.Lines, line)
		}
	}
	return nil
}

func (r *WorkOrderRepo) execOne(ctx context.Context, q squirrel.UpdateBuilder, orderID id.ID) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("work order", orderID.String())
	}
	return nil
}

var _ workorder.Repository = (*WorkOrderRepo)(nil)
