package handlers

import (
	"github.com/gin-gonic/gin"

	"stokado/internal/core/apperror"
	"stokado/internal/domain/workorder"
	"stokado/internal/infrastructure/http/v1/dto"
	"stokado/internal/jobs"
)

// WorkOrderHandler exposes work order intake and the location consistency
// sweep.
type WorkOrderHandler struct {
	*BaseHandler
	repo workorder.Repository
	jobs *jobs.Client
}

// NewWorkOrderHandler creates the handler.
func NewWorkOrderHandler(base *BaseHandler, repo workorder.Repository, jobsClient *jobs.Client) *WorkOrderHandler {
	return &WorkOrderHandler{BaseHandler: base, repo: repo, jobs: jobsClient}
}

// Create handles POST /workorders.
func (h *WorkOrderHandler) Create(c *gin.Context) {
	var req dto.CreateWorkOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	order := workorder.NewWorkOrder(req.Number, req.LocationID)
	order.Assignee = req.Assignee
	order.Priority = req.Priority
	for _, line := range req.Lines {
		order.AddLine(line.ItemID, line.Quantity)
	}
	if err := order.Validate(c.Request.Context()); err != nil {
		h.Error(c, err)
		return
	}

	if err := h.repo.Create(c.Request.Context(), order); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, order.ID.String())
}

// Get handles GET /workorders/:id.
func (h *WorkOrderHandler) Get(c *gin.Context) {
	orderID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	order, err := h.repo.GetByID(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, order)
}

// List handles GET /workorders. Only open orders are listed; closed orders
// stay reachable by id.
func (h *WorkOrderHandler) List(c *gin.Context) {
	needsFixOnly := c.Query("needsFixOnly") == "true"
	limit := h.ParseIntQuery(c, "limit", 100)

	orders, err := h.repo.ListOpen(c.Request.Context(), needsFixOnly, limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: orders, Count: len(orders)})
}

// Sweep handles POST /workorders/sweep, scheduling a background pass over
// orders flagged as pointing at the wrong location.
func (h *WorkOrderHandler) Sweep(c *gin.Context) {
	if h.jobs == nil {
		h.Error(c, apperror.NewValidation("background worker is not configured"))
		return
	}
	limit := h.ParseIntQuery(c, "limit", 500)

	if err := h.jobs.EnqueueSweep(c.Request.Context(), jobs.SweepPayload{Limit: limit}); err != nil {
		h.Error(c, err)
		return
	}
	h.Accepted(c, "sweep scheduled")
}
