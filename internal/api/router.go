package api

import (
	"github.com/gin-gonic/gin"
	"github.com/lalith-99/docstream/internal/middleware"
)

// Handlers is everything NewRouter mounts.
type Handlers struct {
	Auth      *AuthHandler
	Users     *UserHandler
	Documents *DocumentHandler
	Presence  *PresenceHandler
	Health    *HealthHandler
}

// NewRouter builds the /v1 API. Everything except auth and health requires
// a principal.
func NewRouter(h Handlers, jwtSecret string, middlewares ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(middlewares...)

	public := r.Group("/v1")
	public.GET("/health", h.Health.Health)
	public.POST("/auth/signup", h.Auth.Signup)
	public.POST("/auth/login", h.Auth.Login)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtSecret))

	v1.GET("/users/me", h.Users.GetMe)

	docs := v1.Group("/documents")
	docs.POST("", h.Documents.Create)
	docs.GET("", h.Documents.List)
	docs.GET("/:id", h.Documents.Get)
	docs.PUT("/:id/content", h.Documents.Edit)
	docs.POST("/:id/share-links", h.Documents.CreateShareLink)
	docs.DELETE("/:id/share-links/:linkId", h.Documents.RevokeShareLink)
	docs.PUT("/:id/permissions", h.Documents.SetPermission)
	docs.GET("/:id/versions", h.Documents.ListVersions)
	docs.POST("/:id/versions/:versionId/revert", h.Documents.Revert)
	docs.GET("/:id/operations", h.Documents.ListOperations)
	docs.GET("/:id/presence", h.Presence.List)
	docs.GET("/:id/ws", h.Documents.Connect)

	return r
}
