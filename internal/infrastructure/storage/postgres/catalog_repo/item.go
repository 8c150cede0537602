// Package catalog_repo provides PostgreSQL implementations for the item and
// location catalogs.
package catalog_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/domain/catalogs/item"
	"stokado/internal/infrastructure/storage/postgres"
)

const itemsTable = "cat_items"

var itemCols = []string{
	"id", "code", "name", "unit", "min_stock", "description",
	"deletion_mark", "version",
}

// ItemRepo implements item.Repository.
type ItemRepo struct {
	builder squirrel.StatementBuilderType
	txm     *postgres.TxManager
}

// NewItemRepo creates the item repository.
func NewItemRepo(txm *postgres.TxManager) *ItemRepo {
	return &ItemRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		txm:     txm,
	}
}

func (r *ItemRepo) Create(ctx context.Context, it *item.Item) error {
	q := r.builder.Insert(itemsTable).
		Columns(itemCols...).
		Values(it.ID, it.Code, it.Name, it.Unit, it.MinStock, it.Description,
			it.DeletionMark, it.Version)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("item", "code", it.Code)
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// Update rewrites mutable fields with optimistic version check.
func (r *ItemRepo) Update(ctx context.Context, it *item.Item) error {
	q := r.builder.Update(itemsTable).
		Set("code", it.Code).
		Set("name", it.Name).
		Set("unit", it.Unit).
		Set("min_stock", it.MinStock).
		Set("description", it.Description).
		Set("deletion_mark", it.DeletionMark).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": it.ID}).
		Where(squirrel.Eq{"version": it.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("item", "code", it.Code)
		}
		return fmt.Errorf("update item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("item", it.ID)
	}

	it.Version++
	return nil
}

func (r *ItemRepo) GetByID(ctx context.Context, itemID id.ID) (*item.Item, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": itemID}).
		Limit(1)

	return r.one(ctx, q, itemID.String())
}

func (r *ItemRepo) GetByCode(ctx context.Context, code string) (*item.Item, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"code": code}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	return r.one(ctx, q, code)
}

func (r *ItemRepo) List(ctx context.Context, includeDeleted bool) ([]*item.Item, error) {
	q := r.baseSelect().OrderBy("code")
	if !includeDeleted {
		q = q.Where(squirrel.Eq{"deletion_mark": false})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*item.Item
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (r *ItemRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder.Select(itemCols...).From(itemsTable)
}

func (r *ItemRepo) one(ctx context.Context, q squirrel.SelectBuilder, ref string) (*item.Item, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var it item.Item
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &it, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("item", ref)
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &it, nil
}

// isUniqueViolation reports a PostgreSQL unique constraint error (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ item.Repository = (*ItemRepo)(nil)
