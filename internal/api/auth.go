package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/docstream/internal/apperr"
	"github.com/lalith-99/docstream/internal/auth"
	"github.com/lalith-99/docstream/internal/models"
	"github.com/lalith-99/docstream/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler handles signup and login, the only public endpoints besides
// health. They issue the bearer tokens every other route expects.
type AuthHandler struct {
	userRepo   repository.UserRepository
	tenantRepo repository.TenantRepository
	jwtSecret  string
	tokenTTL   time.Duration
	logger     *zap.Logger
}

func NewAuthHandler(
	userRepo repository.UserRepository,
	tenantRepo repository.TenantRepository,
	jwtSecret string,
	tokenTTL time.Duration,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		userRepo:   userRepo,
		tenantRepo: tenantRepo,
		jwtSecret:  jwtSecret,
		tokenTTL:   tokenTTL,
		logger:     logger,
	}
}

type signupRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"required"`
	TenantName  string `json:"tenant_name" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// authResponse is what both signup and login return. The client sends
// Token as "Authorization: Bearer <token>" on every later request.
type authResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Signup handles POST /v1/auth/signup
//
// It creates a new tenant with the caller as its first user.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apperr.CodeInvalid})
		return
	}
	ctx := c.Request.Context()

	existing, err := h.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		writeError(c, h.logger, err, "signup failed")
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered", "code": apperr.CodeConflict})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(c, h.logger, err, "signup failed")
		return
	}

	tenant, err := h.tenantRepo.Create(ctx, req.TenantName)
	if err != nil {
		writeError(c, h.logger, err, "signup failed")
		return
	}

	user, err := h.userRepo.Create(ctx, tenant.ID, req.Email, req.DisplayName, string(hash))
	if errors.Is(err, apperr.ErrConflict) {
		// Lost a race with another signup for the same email.
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered", "code": apperr.CodeConflict})
		return
	}
	if err != nil {
		writeError(c, h.logger, err, "signup failed")
		return
	}

	h.respondWithToken(c, http.StatusCreated, user, "signup failed")
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apperr.CodeInvalid})
		return
	}

	user, err := h.userRepo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		writeError(c, h.logger, err, "login failed")
		return
	}

	// Same answer for unknown email and wrong password, so registered
	// emails cannot be probed.
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password", "code": apperr.CodeUnauthorized})
		return
	}

	h.respondWithToken(c, http.StatusOK, user, "login failed")
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, user *models.User, failMsg string) {
	expiresAt := time.Now().Add(h.tokenTTL).UTC()
	token, err := auth.GenerateToken(user.ID, user.TenantID, user.Email, h.jwtSecret, h.tokenTTL)
	if err != nil {
		writeError(c, h.logger, err, failMsg)
		return
	}
	c.JSON(status, authResponse{Token: token, ExpiresAt: expiresAt, User: user})
}
