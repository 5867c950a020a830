// Package middleware resolves who is calling before any handler runs.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/docstream/internal/access"
	"github.com/lalith-99/docstream/internal/auth"
)

const (
	ContextKeyPrincipal = "principal"
	ContextKeyEmail     = "email"
)

// Share-link credentials. Browsers cannot set headers on a websocket
// handshake, so every credential also has a query parameter form.
const (
	HeaderShareToken = "X-Share-Token"
	HeaderTenantID   = "X-Tenant-ID"

	QueryAccessToken = "access_token"
	QueryShareToken  = "share_token"
	QueryTenantID    = "tenant_id"
)

// AuthMiddleware puts an access.Principal on the context or aborts with 401.
//
// A bearer JWT (Authorization header or access_token) becomes a user
// principal. Otherwise a share token together with the tenant it belongs to
// becomes a link principal. Whether a link token matches anything is decided
// later, against the document it is used on.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if bearer, ok := bearerToken(c); ok {
			claims, err := auth.ParseToken(bearer, secret)
			if err != nil {
				abort(c, "invalid or expired token")
				return
			}
			c.Set(ContextKeyPrincipal, access.User(claims.TenantID, claims.UserID))
			c.Set(ContextKeyEmail, claims.Email)
			c.Next()
			return
		}

		token := firstNonEmpty(c.GetHeader(HeaderShareToken), c.Query(QueryShareToken))
		if token == "" {
			if c.GetHeader("Authorization") != "" {
				abort(c, "invalid authorization format, expected: Bearer <token>")
				return
			}
			abort(c, "missing credentials")
			return
		}

		tenantID, err := uuid.Parse(firstNonEmpty(c.GetHeader(HeaderTenantID), c.Query(QueryTenantID)))
		if err != nil {
			abort(c, "share token requires a valid tenant id")
			return
		}
		c.Set(ContextKeyPrincipal, access.Link(tenantID, token))
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && parts[1] != "" {
			return parts[1], true
		}
		return "", false
	}
	if token := c.Query(QueryAccessToken); token != "" {
		return token, true
	}
	return "", false
}

func abort(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetPrincipal returns the caller, or the zero Principal (which is never
// Valid) if the middleware did not run.
func GetPrincipal(c *gin.Context) access.Principal {
	val, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return access.Principal{}
	}
	p, ok := val.(access.Principal)
	if !ok {
		return access.Principal{}
	}
	return p
}

func GetEmail(c *gin.Context) string {
	val, exists := c.Get(ContextKeyEmail)
	if !exists {
		return ""
	}
	email, ok := val.(string)
	if !ok {
		return ""
	}
	return email
}
