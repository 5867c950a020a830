package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/docstream/internal/middleware"
	"github.com/lalith-99/docstream/internal/models"
	"github.com/lalith-99/docstream/internal/repository"
	"go.uber.org/zap"
)

// PresenceHandler lists who currently has a session open on a document.
type PresenceHandler struct {
	docs     Documents
	presence repository.PresenceRepository
	logger   *zap.Logger
}

func NewPresenceHandler(docs Documents, presence repository.PresenceRepository, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{docs: docs, presence: presence, logger: logger}
}

// List handles GET /v1/documents/:id/presence
//
// Anyone who can view the document may see who is on it.
func (h *PresenceHandler) List(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	doc, err := h.docs.Get(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		writeError(c, h.logger, err, "failed to list participants")
		return
	}

	participants, err := h.presence.List(c.Request.Context(), doc.TenantID, doc.ID)
	if err != nil {
		writeError(c, h.logger, err, "failed to list participants")
		return
	}
	if participants == nil {
		participants = []models.Participant{}
	}
	c.JSON(http.StatusOK, participants)
}
