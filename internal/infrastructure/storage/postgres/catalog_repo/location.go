package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/domain/catalogs/location"
	"stokado/internal/infrastructure/storage/postgres"
)

const locationsTable = "cat_locations"

var locationCols = []string{
	"id", "code", "name", "active", "address",
	"deletion_mark", "version",
}

// LocationRepo implements location.Repository.
type LocationRepo struct {
	builder squirrel.StatementBuilderType
	txm     *postgres.TxManager
}

// NewLocationRepo creates the location repository.
func NewLocationRepo(txm *postgres.TxManager) *LocationRepo {
	return &LocationRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		txm:     txm,
	}
}

func (r *LocationRepo) Create(ctx context.Context, loc *location.Location) error {
	q := r.builder.Insert(locationsTable).
		Columns(locationCols...).
		Values(loc.ID, loc.Code, loc.Name, loc.Active, loc.Address,
			loc.DeletionMark, loc.Version)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("location", "code", loc.Code)
		}
		return fmt.Errorf("insert location: %w", err)
	}
	return nil
}

func (r *LocationRepo) Update(ctx context.Context, loc *location.Location) error {
	q := r.builder.Update(locationsTable).
		Set("code", loc.Code).
		Set("name", loc.Name).
		Set("active", loc.Active).
		Set("address", loc.Address).
		Set("deletion_mark", loc.DeletionMark).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": loc.ID}).
		Where(squirrel.Eq{"version": loc.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("location", "code", loc.Code)
		}
		return fmt.Errorf("update location: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("location", loc.ID)
	}

	loc.Version++
	return nil
}

func (r *LocationRepo) GetByID(ctx context.Context, locationID id.ID) (*location.Location, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": locationID}).
		Limit(1)

	return r.one(ctx, q, locationID.String())
}

func (r *LocationRepo) GetByCode(ctx context.Context, code string) (*location.Location, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"code": code}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	return r.one(ctx, q, code)
}

func (r *LocationRepo) List(ctx context.Context, activeOnly bool) ([]*location.Location, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"deletion_mark": false}).
		OrderBy("code")
	if activeOnly {
		q = q.Where(squirrel.Eq{"active": true})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var locs []*location.Location
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &locs, sql, args...); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return locs, nil
}

// GetMany resolves a batch of ids in one query. Missing ids are simply
// absent from the result map.
func (r *LocationRepo) GetMany(ctx context.Context, ids []id.ID) (map[id.ID]*location.Location, error) {
	if len(ids) == 0 {
		return map[id.ID]*location.Location{}, nil
	}

	q := r.baseSelect().Where(squirrel.Eq{"id": ids})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var locs []*location.Location
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &locs, sql, args...); err != nil {
		return nil, fmt.Errorf("get locations: %w", err)
	}

	out := make(map[id.ID]*location.Location, len(locs))
	for _, l := range locs {
		out[l.ID] = l
	}
	return out, nil
}

func (r *LocationRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder.Select(locationCols...).From(locationsTable)
}

func (r *LocationRepo) one(ctx context.Context, q squirrel.SelectBuilder, ref string) (*location.Location, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var loc location.Location
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &loc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("location", ref)
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &loc, nil
}

var _ location.Repository = (*LocationRepo)(nil)
