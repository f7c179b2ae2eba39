package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/songzhibin97/qwork/internal/market/service"
	"github.com/songzhibin97/qwork/pkg/log"
	"github.com/songzhibin97/qwork/pkg/market"
)

// AdminHandler handles moderator endpoints
type AdminHandler struct {
	admins     *service.AdminService
	portfolios *service.PortfolioService
	logger     log.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(admins *service.AdminService, portfolios *service.PortfolioService, logger log.Logger) *AdminHandler {
	return &AdminHandler{
		admins:     admins,
		portfolios: portfolios,
		logger:     logger.With(log.Component("admin_handler")),
	}
}

// ChangePasswordRequest represents an admin password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// PortfolioStatusRequest changes the moderation status of a portfolio
type PortfolioStatusRequest struct {
	Status market.PortfolioStatus `json:"status"`
}

// RegisterRoutes registers the admin routes
func (h *AdminHandler) RegisterRoutes(router *gin.RouterGroup, requireAdmin, limited gin.HandlerFunc) {
	group := router.Group("/admin")
	{
		group.POST("/login", limited, h.Login)
		group.POST("/forget-password", limited, h.ForgotPassword)
		group.PATCH("/reset-password", requireAdmin, h.ChangePassword)
		group.GET("/me", requireAdmin, h.Me)
		group.GET("/portfolios", requireAdmin, h.ListPortfolios)
		group.PATCH("/portfolios/:portfolio_id/status", requireAdmin, h.SetPortfolioStatus)
	}
}

// Login handles POST /api/admin/login
func (h *AdminHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	pair, err := h.admins.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Message: "Admin login successful", TokenPair: pair})
}

// ForgotPassword handles POST /api/admin/forget-password
func (h *AdminHandler) ForgotPassword(c *gin.Context) {
	var req EmailRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.admins.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, "Temporary password sent to your email", nil)
}

// ChangePassword handles PATCH /api/admin/reset-password
func (h *AdminHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	err := h.admins.ChangePassword(c.Request.Context(), caller(c).ID, &service.ChangePasswordInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, "Password updated successfully", nil)
}

// Me handles GET /api/admin/me
func (h *AdminHandler) Me(c *gin.Context) {
	admin, err := h.admins.Get(c.Request.Context(), caller(c).ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admin": admin})
}

// ListPortfolios handles GET /api/admin/portfolios?status=
func (h *AdminHandler) ListPortfolios(c *gin.Context) {
	q := &service.PortfolioQuery{Search: c.Query("q")}
	if raw := c.Query("status"); raw != "" {
		status := market.PortfolioStatus(raw)
		q.Status = &status
	}
	var ok bool
	if q.Page, ok = queryInt(c, "page"); !ok {
		return
	}
	if q.Limit, ok = queryInt(c, "limit"); !ok {
		return
	}

	page, err := h.portfolios.ListForModeration(c.Request.Context(), q)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// SetPortfolioStatus handles PATCH /api/admin/portfolios/:portfolio_id/status
func (h *AdminHandler) SetPortfolioStatus(c *gin.Context) {
	id, ok := idParam(c, "portfolio_id")
	if !ok {
		return
	}
	var req PortfolioStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.portfolios.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Portfolio status updated", "data": p})
}
