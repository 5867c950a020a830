package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/docstream/internal/apperr"
	"go.uber.org/zap"
)

// writeError answers with the status the error maps to. Errors outside the
// taxonomy are logged and replaced by msg so storage details never leak.
func writeError(c *gin.Context, logger *zap.Logger, err error, msg string) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": msg, "code": apperr.CodeInternal})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": apperr.Code(err)})
}

// pathID parses a uuid path parameter, answering 400 if it is malformed.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name, "code": apperr.CodeInvalid})
		return uuid.Nil, false
	}
	return id, true
}

// queryLimit reads ?limit=, where 0 or absent means the server default.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter", "code": apperr.CodeInvalid})
		return 0, false
	}
	return n, true
}
