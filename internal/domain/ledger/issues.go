package ledger

import (
	"context"
	"time"

	"stokado/internal/core/id"
	"stokado/internal/core/types"
)

// IssueKind classifies integrity findings surfaced to the operator queue.
type IssueKind string

const (
	// IssueOrphanWithdrawal: a partition's first chronological entry is an
	// outbound movement. Upstream misuse; the correct origin is ambiguous.
	IssueOrphanWithdrawal IssueKind = "orphan_withdrawal"

	// IssueOverdraft: a withdrawal exceeded the last known positive balance.
	// Allowed by policy (provisional shipments) but flagged.
	IssueOverdraft IssueKind = "overdraft"

	// IssueCrossLocationInbound: an inbound for an item that already has
	// positive balance at a different active location. Usually means a
	// consolidation should have been used instead.
	IssueCrossLocationInbound IssueKind = "cross_location_inbound"
)

// Issue is one entry of the operator integrity queue.
type Issue struct {
	ID         id.ID          `db:"id" json:"id"`
	Kind       IssueKind      `db:"kind" json:"kind"`
	ItemID     id.ID          `db:"item_id" json:"itemId"`
	LocationID id.ID          `db:"location_id" json:"locationId"`
	LineID     *id.ID         `db:"line_id" json:"lineId,omitempty"`
	Quantity   types.Quantity `db:"quantity" json:"quantity"`
	Detail     string         `db:"detail" json:"detail"`
	RaisedAt   time.Time      `db:"raised_at" json:"raisedAt"`
	Resolved   bool           `db:"resolved" json:"resolved"`
	ResolvedBy string         `db:"resolved_by" json:"resolvedBy,omitempty"`
	Note       string         `db:"note" json:"note,omitempty"`
}

// NewIssue builds an unresolved issue with generated id and timestamp.
func NewIssue(kind IssueKind, itemID, locationID id.ID, qty types.Quantity, detail string) Issue {
	return Issue{
		ID:         id.New(),
		Kind:       kind,
		ItemID:     itemID,
		LocationID: locationID,
		Quantity:   qty,
		Detail:     detail,
		RaisedAt:   time.Now().UTC(),
	}
}

// WithLine attaches the ledger line that raised the issue.
func (i Issue) WithLine(lineID id.ID) Issue {
	i.LineID = &lineID
	return i
}

// IssueRecorder accepts integrity findings. Recording happens inside the same
// transaction as the movement that raised the finding.
type IssueRecorder interface {
	Record(ctx context.Context, issue Issue) error
}

// IssueStore extends IssueRecorder with the operator-facing queue operations.
type IssueStore interface {
	IssueRecorder

	// List returns issues, unresolved first, newest first.
	List(ctx context.Context, unresolvedOnly bool, limit int) ([]Issue, error)

	// Resolve marks an issue handled by an operator.
	Resolve(ctx context.Context, issueID id.ID, resolvedBy, note string) error
}
