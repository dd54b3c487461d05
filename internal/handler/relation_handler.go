package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openarchive/preserv-backend/internal/common"
	"github.com/openarchive/preserv-backend/internal/service"
)

// RelationHandler answers obsolescence queries over stored bitstreams.
type RelationHandler struct {
	service service.RelationService
}

// NewRelationHandler creates a new RelationHandler
func NewRelationHandler(service service.RelationService) *RelationHandler {
	return &RelationHandler{service: service}
}

// GetType handles GET /bitstreams/:id/type
func (h *RelationHandler) GetType(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, 400, "Invalid bitstream id", err)
		return
	}
	kind, record, err := h.service.TypeOf(c.Request.Context(), id)
	if err != nil {
		common.ErrorResponse(c, common.StatusFor(err), "Failed to classify bitstream", err)
		return
	}
	common.SuccessResponse(c, gin.H{"type": kind, "version": record}, nil)
}

// GetObsoletes handles GET /bitstreams/:id/obsoletes
func (h *RelationHandler) GetObsoletes(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, 400, "Invalid bitstream id", err)
		return
	}
	predecessor, err := h.service.Obsoletes(c.Request.Context(), id)
	if err != nil {
		common.ErrorResponse(c, common.StatusFor(err), "Obsolescence lookup failed", err)
		return
	}
	common.SuccessResponse(c, predecessor, nil)
}

// GetObsoletedBy handles GET /bitstreams/:id/obsoleted-by
func (h *RelationHandler) GetObsoletedBy(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, 400, "Invalid bitstream id", err)
		return
	}
	successor, err := h.service.ObsoletedBy(c.Request.Context(), id)
	if err != nil {
		common.ErrorResponse(c, common.StatusFor(err), "Obsolescence lookup failed", err)
		return
	}
	common.SuccessResponse(c, successor, nil)
}
