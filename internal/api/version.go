package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/docstream/internal/middleware"
)

// ListVersions handles GET /v1/documents/:id/versions?limit=N
//
// Newest first. limit is further capped by HISTORY_LIMIT.
func (h *DocumentHandler) ListVersions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	versions, err := h.docs.ListVersions(c.Request.Context(), middleware.GetPrincipal(c), id, limit)
	if err != nil {
		writeError(c, h.logger, err, "failed to list versions")
		return
	}
	c.JSON(http.StatusOK, versions)
}

// Revert handles POST /v1/documents/:id/versions/:versionId/revert
func (h *DocumentHandler) Revert(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	versionID, ok := pathID(c, "versionId")
	if !ok {
		return
	}

	res, err := h.hub.Revert(c.Request.Context(), middleware.GetPrincipal(c), id, versionID)
	if err != nil {
		writeError(c, h.logger, err, "failed to revert document")
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListOperations handles GET /v1/documents/:id/operations?limit=N
func (h *DocumentHandler) ListOperations(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	ops, err := h.docs.ListOperations(c.Request.Context(), middleware.GetPrincipal(c), id, limit)
	if err != nil {
		writeError(c, h.logger, err, "failed to list operations")
		return
	}
	c.JSON(http.StatusOK, ops)
}
