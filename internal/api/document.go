package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/docstream/internal/access"
	"github.com/lalith-99/docstream/internal/apperr"
	"github.com/lalith-99/docstream/internal/document"
	"github.com/lalith-99/docstream/internal/middleware"
	"github.com/lalith-99/docstream/internal/models"
	"go.uber.org/zap"
)

// Documents is the document service as the handlers use it.
type Documents interface {
	Create(ctx context.Context, p access.Principal, title, content string) (*models.Document, error)
	List(ctx context.Context, p access.Principal) ([]models.Document, error)
	Get(ctx context.Context, p access.Principal, documentID uuid.UUID) (*models.Document, error)
	CreateShareLink(ctx context.Context, p access.Principal, documentID uuid.UUID, level models.AccessLevel, expiresAt *time.Time) (*models.ShareLink, error)
	RevokeShareLink(ctx context.Context, p access.Principal, documentID, linkID uuid.UUID) error
	SetPermission(ctx context.Context, p access.Principal, documentID, subjectID uuid.UUID, level models.AccessLevel) (*models.Document, error)
	ListVersions(ctx context.Context, p access.Principal, documentID uuid.UUID, limit int) ([]models.DocumentVersion, error)
	ListOperations(ctx context.Context, p access.Principal, documentID uuid.UUID, limit int) ([]models.Operation, error)
}

// Collaboration is the realtime hub. Content mutations go through it so
// they are ordered with, and broadcast to, live sessions.
type Collaboration interface {
	ApplyEdit(ctx context.Context, p access.Principal, documentID uuid.UUID, in document.EditInput) (*document.EditResult, error)
	Revert(ctx context.Context, p access.Principal, documentID, versionID uuid.UUID) (*document.RevertResult, error)
	ServeWS(w http.ResponseWriter, r *http.Request, p access.Principal, documentID uuid.UUID) error
}

type DocumentHandler struct {
	docs   Documents
	hub    Collaboration
	logger *zap.Logger
}

func NewDocumentHandler(docs Documents, hub Collaboration, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{docs: docs, hub: hub, logger: logger}
}

type createDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Create handles POST /v1/documents
func (h *DocumentHandler) Create(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apperr.CodeInvalid})
		return
	}

	doc, err := h.docs.Create(c.Request.Context(), middleware.GetPrincipal(c), req.Title, req.Content)
	if err != nil {
		writeError(c, h.logger, err, "failed to create document")
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// List handles GET /v1/documents
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docs.List(c.Request.Context(), middleware.GetPrincipal(c))
	if err != nil {
		writeError(c, h.logger, err, "failed to list documents")
		return
	}
	c.JSON(http.StatusOK, docs)
}

// Get handles GET /v1/documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	doc, err := h.docs.Get(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		writeError(c, h.logger, err, "failed to get document")
		return
	}
	c.JSON(http.StatusOK, doc)
}

type editRequest struct {
	Content *string `json:"content" binding:"required"`
	// BaseVersion is the version the client last saw, if it tracks one.
	BaseVersion *int64 `json:"base_version"`
	Delta       string `json:"delta"`
	Lamport     int64  `json:"lamport"`
}

// Edit handles PUT /v1/documents/:id/content
func (h *DocumentHandler) Edit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apperr.CodeInvalid})
		return
	}

	res, err := h.hub.ApplyEdit(c.Request.Context(), middleware.GetPrincipal(c), id, document.EditInput{
		Content:     *req.Content,
		BaseVersion: req.BaseVersion,
		Delta:       req.Delta,
		Lamport:     req.Lamport,
	})
	if err != nil {
		writeError(c, h.logger, err, "failed to edit document")
		return
	}
	c.JSON(http.StatusOK, res)
}

type shareLinkRequest struct {
	Level     models.AccessLevel `json:"level" binding:"required"`
	ExpiresAt *time.Time         `json:"expires_at"`
}

// CreateShareLink handles POST /v1/documents/:id/share-links
func (h *DocumentHandler) CreateShareLink(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req shareLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apperr.CodeInvalid})
		return
	}

	link, err := h.docs.CreateShareLink(c.Request.Context(), middleware.GetPrincipal(c), id, req.Level, req.ExpiresAt)
	if err != nil {
		writeError(c, h.logger, err, "failed to create share link")
		return
	}
	c.JSON(http.StatusCreated, link)
}

// RevokeShareLink handles DELETE /v1/documents/:id/share-links/:linkId
func (h *DocumentHandler) RevokeShareLink(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	linkID, ok := pathID(c, "linkId")
	if !ok {
		return
	}

	if err := h.docs.RevokeShareLink(c.Request.Context(), middleware.GetPrincipal(c), id, linkID); err != nil {
		writeError(c, h.logger, err, "failed to revoke share link")
		return
	}
	c.Status(http.StatusNoContent)
}

type permissionRequest struct {
	SubjectID uuid.UUID          `json:"subject_id"`
	Level     models.AccessLevel `json:"level" binding:"required"`
}

// SetPermission handles PUT /v1/documents/:id/permissions
func (h *DocumentHandler) SetPermission(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apperr.CodeInvalid})
		return
	}

	doc, err := h.docs.SetPermission(c.Request.Context(), middleware.GetPrincipal(c), id, req.SubjectID, req.Level)
	if err != nil {
		writeError(c, h.logger, err, "failed to set permission")
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Connect handles GET /v1/documents/:id/ws
func (h *DocumentHandler) Connect(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.hub.ServeWS(c.Writer, c.Request, middleware.GetPrincipal(c), id); err != nil {
		writeError(c, h.logger, err, "failed to open session")
	}
}
