// Package issue_repo persists the operator integrity queue.
package issue_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/domain/ledger"
	"stokado/internal/infrastructure/storage/postgres"
)

const issuesTable = "ledger_issues"

var issueCols = []string{
	"id", "kind", "item_id", "location_id", "line_id", "quantity",
	"detail", "raised_at", "resolved", "resolved_by", "note",
}

// IssueRepo implements ledger.IssueStore.
type IssueRepo struct {
	builder squirrel.StatementBuilderType
	txm     *postgres.TxManager
}

// NewIssueRepo creates the issue repository.
func NewIssueRepo(txm *postgres.TxManager) *IssueRepo {
	return &IssueRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		txm:     txm,
	}
}

// Record inserts an issue. Re-detections of the same defect insert new rows;
// the queue is an append log, deduplication is the operator's call.
func (r *IssueRepo) Record(ctx context.Context, issue ledger.Issue) error {
	q := r.builder.Insert(issuesTable).
		Columns(issueCols...).
		Values(issue.ID, issue.Kind, issue.ItemID, issue.LocationID, issue.LineID,
			issue.Quantity, issue.Detail, issue.RaisedAt, issue.Resolved,
			issue.ResolvedBy, issue.Note)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

func (r *IssueRepo) List(ctx context.Context, unresolvedOnly bool, limit int) ([]ledger.Issue, error) {
	q := r.builder.Select(issueCols...).
		From(issuesTable).
		OrderBy("resolved", "raised_at DESC")

	if unresolvedOnly {
		q = q.Where(squirrel.Eq{"resolved": false})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var issues []ledger.Issue
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &issues, sql, args...); err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return issues, nil
}

func (r *IssueRepo) Resolve(ctx context.Context, issueID id.ID, resolvedBy, note string) error {
	q := r.builder.Update(issuesTable).
		Set("resolved", true).
		Set("resolved_by", resolvedBy).
		Set("note", note).
		Where(squirrel.Eq{"id": issueID, "resolved": false})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("resolve issue: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("issue", issueID.String())
	}
	return nil
}

var _ ledger.IssueStore = (*IssueRepo)(nil)
