package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openarchive/preserv-backend/internal/common"
	"github.com/openarchive/preserv-backend/internal/service"
)

// VersionHandler exposes read access to version histories for preservation
// clients and repository UIs.
type VersionHandler struct {
	service service.VersioningService
}

// NewVersionHandler creates a new VersionHandler
func NewVersionHandler(service service.VersioningService) *VersionHandler {
	return &VersionHandler{service: service}
}

// GetVersion handles GET /versions/:id
func (h *VersionHandler) GetVersion(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, 400, "Invalid version id", err)
		return
	}
	record, err := h.service.GetVersion(c.Request.Context(), id)
	if err != nil {
		common.ErrorResponse(c, common.StatusFor(err), "Failed to fetch version", err)
		return
	}
	common.SuccessResponse(c, record, nil)
}

// GetHistory handles GET /histories/:id
func (h *VersionHandler) GetHistory(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, 400, "Invalid history id", err)
		return
	}
	records, err := h.service.ListHistory(c.Request.Context(), id)
	if err != nil {
		common.ErrorResponse(c, common.StatusFor(err), "Failed to fetch history", err)
		return
	}
	common.SuccessResponse(c, records, &common.Meta{Total: int64(len(records))})
}

// GetItemHistory handles GET /items/:id/history
func (h *VersionHandler) GetItemHistory(c *gin.Context) {
	itemID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, 400, "Invalid item id", err)
		return
	}
	history, err := h.service.HistoryForItem(c.Request.Context(), itemID)
	if err != nil {
		common.ErrorResponse(c, common.StatusFor(err), "Failed to resolve history", err)
		return
	}
	if history == nil {
		common.ErrorResponse(c, 404, "Item has no version history", common.ErrHistoryNotFound)
		return
	}
	records, err := h.service.ListHistory(c.Request.Context(), history.ID)
	if err != nil {
		common.ErrorResponse(c, common.StatusFor(err), "Failed to fetch history", err)
		return
	}
	common.SuccessResponse(c, gin.H{"history": history, "versions": records}, nil)
}

// SearchVersions handles GET /versions?q=&offset=&limit=
func (h *VersionHandler) SearchVersions(c *gin.Context) {
	query := c.Query("q")
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	records, total, err := h.service.SearchVersions(c.Request.Context(), query, offset, limit)
	if err != nil {
		common.ErrorResponse(c, common.StatusFor(err), "Version search failed", err)
		return
	}
	common.SuccessResponse(c, records, &common.Meta{
		Query:  query,
		Offset: offset,
		Limit:  limit,
		Total:  total,
	})
}
