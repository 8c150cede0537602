package handlers

import (
	"github.com/gin-gonic/gin"

	"stokado/internal/domain/catalogs/item"
	"stokado/internal/domain/catalogs/location"
	"stokado/internal/domain/ledger"
	"stokado/internal/infrastructure/http/v1/dto"
)

// ItemHandler handles item catalog endpoints.
type ItemHandler struct {
	*BaseHandler
	items  *item.Service
	ledger *ledger.Service
}

// NewItemHandler creates the handler.
func NewItemHandler(base *BaseHandler, items *item.Service, ledgerSvc *ledger.Service) *ItemHandler {
	return &ItemHandler{BaseHandler: base, items: items, ledger: ledgerSvc}
}

// Create handles POST /catalog/items.
func (h *ItemHandler) Create(c *gin.Context) {
	var req dto.CreateItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	it := item.NewItem(req.Code, req.Name, req.Unit)
	if req.MinStock != nil {
		it.MinStock = *req.MinStock
	}
	it.Description = req.Description

	if err := h.items.Create(c.Request.Context(), it); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, it.ID.String())
}

// Update handles PUT /catalog/items/:id.
func (h *ItemHandler) Update(c *gin.Context) {
	itemID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	it, err := h.items.GetByID(c.Request.Context(), itemID)
	if err != nil {
		h.Error(c, err)
		return
	}

	it.Name = req.Name
	it.Unit = req.Unit
	if req.MinStock != nil {
		it.MinStock = *req.MinStock
	}
	it.Description = req.Description
	it.Version = req.Version

	if err := h.items.Update(c.Request.Context(), it); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, it)
}

// Get handles GET /catalog/items/:id, returning the item with its total
// balance and stock status.
func (h *ItemHandler) Get(c *gin.Context) {
	itemID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	it, err := h.items.GetByID(ctx, itemID)
	if err != nil {
		h.Error(c, err)
		return
	}

	total, err := h.ledger.TotalBalance(ctx, itemID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ItemStockResponse{
		Item:         it,
		TotalBalance: total,
		Status:       it.ClassifyStock(total),
	})
}

// List handles GET /catalog/items.
func (h *ItemHandler) List(c *gin.Context) {
	includeDeleted := c.Query("includeDeleted") == "true"

	items, err := h.items.List(c.Request.Context(), includeDeleted)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: items, Count: len(items)})
}

// Delete handles DELETE /catalog/items/:id (soft delete).
func (h *ItemHandler) Delete(c *gin.Context) {
	itemID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	if err := h.items.Delete(c.Request.Context(), itemID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// LocationHandler handles location catalog endpoints.
type LocationHandler struct {
	*BaseHandler
	locations *location.Service
}

// NewLocationHandler creates the handler.
func NewLocationHandler(base *BaseHandler, locations *location.Service) *LocationHandler {
	return &LocationHandler{BaseHandler: base, locations: locations}
}

// Create handles POST /catalog/locations.
func (h *LocationHandler) Create(c *gin.Context) {
	var req dto.CreateLocationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	loc := location.NewLocation(req.Code, req.Name)
	loc.Address = req.Address

	if err := h.locations.Create(c.Request.Context(), loc); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, loc.ID.String())
}

// Update handles PUT /catalog/locations/:id.
func (h *LocationHandler) Update(c *gin.Context) {
	locationID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateLocationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	loc, err := h.locations.GetByID(c.Request.Context(), locationID)
	if err != nil {
		h.Error(c, err)
		return
	}

	loc.Name = req.Name
	loc.Address = req.Address
	loc.Version = req.Version

	if err := h.locations.Update(c.Request.Context(), loc); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, loc)
}

// Get handles GET /catalog/locations/:id.
func (h *LocationHandler) Get(c *gin.Context) {
	locationID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	loc, err := h.locations.GetByID(c.Request.Context(), locationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, loc)
}

// List handles GET /catalog/locations.
func (h *LocationHandler) List(c *gin.Context) {
	activeOnly := c.Query("activeOnly") == "true"

	locs, err := h.locations.List(c.Request.Context(), activeOnly)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: locs, Count: len(locs)})
}

// SetActive handles POST /catalog/locations/:id/active.
// Deactivation does not touch the ledger: history stays, the location just
// stops being a search target for new stock.
func (h *LocationHandler) SetActive(c *gin.Context) {
	locationID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.SetActiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.locations.SetActive(c.Request.Context(), locationID, req.Active); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "location updated")
}
