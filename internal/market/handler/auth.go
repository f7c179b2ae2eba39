package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/songzhibin97/qwork/internal/market/auth"
	"github.com/songzhibin97/qwork/internal/market/service"
	"github.com/songzhibin97/qwork/pkg/log"
)

// AuthHandler handles signup, activation and token endpoints
type AuthHandler struct {
	accounts *service.AccountService
	logger   log.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(accounts *service.AccountService, logger log.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, logger: logger.With(log.Component("auth_handler"))}
}

// EmailRequest carries a bare email address
type EmailRequest struct {
	Email string `json:"email"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries a refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// PasswordRequest carries a new password
type PasswordRequest struct {
	Password string `json:"password"`
}

// TokenResponse is returned by login and refresh
type TokenResponse struct {
	Message string `json:"message"`
	*auth.TokenPair
}

// RegisterRoutes registers the auth routes. limited wraps the credential
// endpoints that are rate limited per client.
func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup, requireUser, limited gin.HandlerFunc) {
	group := router.Group("/auth")
	{
		group.POST("/signup", limited, h.Signup)
		group.GET("/activate-account/:token", h.Activate)
		group.POST("/resend-activation", h.ResendActivation)
		group.POST("/login", limited, h.Login)
		group.POST("/refresh-token", h.Refresh)
		group.POST("/logout", h.Logout)
		group.POST("/forgot-password", limited, h.ForgotPassword)
		group.POST("/reset-password/:token", h.ResetPassword)
		group.GET("/me", requireUser, h.Me)
	}
}

// Signup handles POST /api/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	profile, err := profileInput(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	image, err := formUpload(c, "profileImage")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	account, result, err := h.accounts.Signup(c.Request.Context(), &service.SignupInput{
		Email:        c.PostForm("email"),
		Password:     c.PostForm("password"),
		Profile:      profile,
		ProfileImage: image,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Signup successful. Please check your email to activate your account.",
		"user_id":  account.ID,
		"warnings": warnings(result),
	})
}

// Activate handles GET /api/auth/activate-account/:token
func (h *AuthHandler) Activate(c *gin.Context) {
	if err := h.accounts.Activate(c.Request.Context(), c.Param("token")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, "Account activated!", nil)
}

// ResendActivation handles POST /api/auth/resend-activation
func (h *AuthHandler) ResendActivation(c *gin.Context) {
	var req EmailRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.accounts.ResendActivation(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, "Activation email resent. Please check your inbox.", nil)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	pair, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Message: "Login successful", TokenPair: pair})
}

// Refresh handles POST /api/auth/refresh-token
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if !bindJSON(c, &req) {
		return
	}
	pair, err := h.accounts.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Message: "Token refreshed", TokenPair: pair})
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	var req RefreshRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.accounts.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, "Logout successful", nil)
}

// ForgotPassword handles POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req EmailRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.accounts.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, "Password reset email sent", nil)
}

// ResetPassword handles POST /api/auth/reset-password/:token
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req PasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.accounts.ResetPassword(c.Request.Context(), c.Param("token"), req.Password); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, "Password reset successful", nil)
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	who := caller(c)
	view, err := h.accounts.Get(c.Request.Context(), who.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": view})
}
