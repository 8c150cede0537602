package handlers

import (
	"github.com/gin-gonic/gin"

	"stokado/internal/domain/consolidation"
	"stokado/internal/infrastructure/http/v1/dto"
)

// ConsolidationHandler exposes the duplicate scan and the consolidation
// operation.
type ConsolidationHandler struct {
	*BaseHandler
	scanner *consolidation.Scanner
	engine  *consolidation.Engine
}

// NewConsolidationHandler creates the handler.
func NewConsolidationHandler(base *BaseHandler, scanner *consolidation.Scanner, engine *consolidation.Engine) *ConsolidationHandler {
	return &ConsolidationHandler{BaseHandler: base, scanner: scanner, engine: engine}
}

// Candidates handles GET /consolidation/candidates: items holding positive
// balance at more than one active location, each with a suggested target.
func (h *ConsolidationHandler) Candidates(c *gin.Context) {
	candidates, err := h.scanner.FindMultiLocationItems(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: candidates, Count: len(candidates)})
}

// Consolidate handles POST /consolidation. It runs inline and returns the
// movement summary; mid-flight failures roll the whole merge back.
func (h *ConsolidationHandler) Consolidate(c *gin.Context) {
	var req dto.ConsolidateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.engine.Consolidate(c.Request.Context(), req.ItemID, req.TargetID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}
