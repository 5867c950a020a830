package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/docstream/internal/access"
	"github.com/lalith-99/docstream/internal/apperr"
	"github.com/lalith-99/docstream/internal/middleware"
	"github.com/lalith-99/docstream/internal/repository"
	"go.uber.org/zap"
)

type UserHandler struct {
	repo   repository.UserRepository
	logger *zap.Logger
}

func NewUserHandler(repo repository.UserRepository, logger *zap.Logger) *UserHandler {
	return &UserHandler{repo: repo, logger: logger}
}

// GetMe handles GET /v1/users/me
//
// Share-link holders are anonymous and get 403.
func (h *UserHandler) GetMe(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p.Kind != access.KindUser {
		writeError(c, h.logger, fmt.Errorf("share links have no user: %w", apperr.ErrForbidden), "")
		return
	}

	user, err := h.repo.GetByID(c.Request.Context(), p.TenantID, p.UserID)
	if err != nil {
		writeError(c, h.logger, err, "failed to get user")
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found", "code": apperr.CodeNotFound})
		return
	}
	c.JSON(http.StatusOK, user)
}
