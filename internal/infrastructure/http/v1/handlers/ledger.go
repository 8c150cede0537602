package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"stokado/internal/core/apperror"
	appctx "stokado/internal/core/context"
	"stokado/internal/core/entity"
	"stokado/internal/domain/ledger"
	"stokado/internal/infrastructure/http/v1/dto"
	"stokado/internal/jobs"
)

// LedgerHandler exposes movement recording, balance queries and
// partition maintenance.
type LedgerHandler struct {
	*BaseHandler
	ledger *ledger.Service
	issues ledger.IssueStore
	jobs   *jobs.Client
}

// NewLedgerHandler creates the handler. jobs may be nil in setups without
// a background worker; repair requests then fail with a validation error.
func NewLedgerHandler(base *BaseHandler, ledgerSvc *ledger.Service, issues ledger.IssueStore, jobsClient *jobs.Client) *LedgerHandler {
	return &LedgerHandler{BaseHandler: base, ledger: ledgerSvc, issues: issues, jobs: jobsClient}
}

// Append handles POST /ledger/movements.
func (h *LedgerHandler) Append(c *gin.Context) {
	var req dto.AppendMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	in := ledger.AppendInput{
		ItemID:     req.ItemID,
		LocationID: req.LocationID,
		Direction:  entity.Direction(req.Direction),
		Quantity:   req.Quantity,
		Reference:  req.Reference,
	}
	if req.OccurredAt != nil {
		in.OccurredAt = *req.OccurredAt
	}

	m, err := h.ledger.Append(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, m.LineID.String())
}

// History handles GET /ledger/items/:id/movements.
func (h *LedgerHandler) History(c *gin.Context) {
	itemID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var filter ledger.HistoryFilter

	locationID, ok := h.ParseIDQuery(c, "locationId")
	if !ok {
		return
	}
	filter.LocationID = locationID

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.Error(c, apperror.NewValidation("from must be RFC3339").WithDetail("from", v))
			return
		}
		filter.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.Error(c, apperror.NewValidation("to must be RFC3339").WithDetail("to", v))
			return
		}
		filter.To = &t
	}
	filter.Limit = h.ParseIntQuery(c, "limit", 100)
	filter.Offset = h.ParseIntQuery(c, "offset", 0)

	movements, err := h.ledger.History(c.Request.Context(), itemID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: movements, Count: len(movements)})
}

// Balance handles GET /ledger/items/:id/balance?locationId=...
func (h *LedgerHandler) Balance(c *gin.Context) {
	itemID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	locationID, ok := h.ParseIDQuery(c, "locationId")
	if !ok {
		return
	}
	if locationID == nil {
		h.Error(c, apperror.NewValidation("locationId query parameter is required"))
		return
	}

	balance, err := h.ledger.CurrentBalance(c.Request.Context(), itemID, *locationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.BalanceResponse{ItemID: itemID, LocationID: *locationID, Balance: balance})
}

// TotalBalance handles GET /ledger/items/:id/total.
func (h *LedgerHandler) TotalBalance(c *gin.Context) {
	itemID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	total, err := h.ledger.TotalBalance(c.Request.Context(), itemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.TotalBalanceResponse{ItemID: itemID, Total: total})
}

// AuthoritativeLocation handles GET /ledger/items/:id/location.
func (h *LedgerHandler) AuthoritativeLocation(c *gin.Context) {
	itemID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	locationID, found, err := h.ledger.AuthoritativeLocation(c.Request.Context(), itemID)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.AuthoritativeLocationResponse{ItemID: itemID, Found: found}
	if found {
		resp.LocationID = &locationID
	}
	h.OK(c, resp)
}

// Recalculate handles POST /ledger/recalculate. The recompute runs inline;
// single partitions are small enough that the caller can wait.
func (h *LedgerHandler) Recalculate(c *gin.Context) {
	var req dto.RecalculateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.ledger.Recalculate(c.Request.Context(), req.ItemID, req.LocationID); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "partition recalculated")
}

// Repair handles POST /ledger/repair. The full pass walks every partition,
// so it runs as a background job rather than inline.
func (h *LedgerHandler) Repair(c *gin.Context) {
	if h.jobs == nil {
		h.Error(c, apperror.NewValidation("background worker is not configured"))
		return
	}
	if err := h.jobs.EnqueueRepair(c.Request.Context(), jobs.RepairPayload{}); err != nil {
		h.Error(c, err)
		return
	}
	h.Accepted(c, "repair scheduled")
}

// ListIssues handles GET /ledger/issues.
func (h *LedgerHandler) ListIssues(c *gin.Context) {
	unresolvedOnly := c.Query("unresolvedOnly") != "false"
	limit := h.ParseIntQuery(c, "limit", 100)

	list, err := h.issues.List(c.Request.Context(), unresolvedOnly, limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: list, Count: len(list)})
}

// ResolveIssue handles POST /ledger/issues/:id/resolve.
func (h *LedgerHandler) ResolveIssue(c *gin.Context) {
	issueID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.ResolveIssueRequest
	if !h.BindJSON(c, &req) {
		return
	}

	resolvedBy := appctx.ActorName(c.Request.Context())
	if err := h.issues.Resolve(c.Request.Context(), issueID, resolvedBy, req.Note); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "issue resolved")
}
