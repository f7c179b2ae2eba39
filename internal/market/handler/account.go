package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/songzhibin97/qwork/internal/market/service"
	"github.com/songzhibin97/qwork/pkg/log"
)

// AccountHandler handles profile and account administration endpoints
type AccountHandler struct {
	accounts *service.AccountService
	logger   log.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(accounts *service.AccountService, logger log.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger.With(log.Component("account_handler"))}
}

// PremiumRequest changes the premium flag of an account
type PremiumRequest struct {
	AccountID int64 `json:"user_id"`
	IsPremium *bool `json:"is_premium"`
}

// StatusRequest changes the active flag of an account
type StatusRequest struct {
	IsActive *bool `json:"is_active"`
}

// RegisterRoutes registers the account routes
func (h *AccountHandler) RegisterRoutes(router *gin.RouterGroup, requireAuth, requireAdmin gin.HandlerFunc) {
	group := router.Group("/account")
	{
		group.GET("/get-single", requireAuth, h.GetSingle)
		group.GET("/get-all", requireAdmin, h.List)
		group.GET("/get-premium-users", h.Premium)
		group.PUT("/update-profile", requireAuth, h.UpdateProfile)
		group.PATCH("/update-premium-status", requireAdmin, h.SetPremium)
		group.PATCH("/update-status/:user_id", requireAdmin, h.SetStatus)
		group.DELETE("/delete/:user_id", requireAuth, h.Delete)
	}
}

// GetSingle handles GET /api/account/get-single?email=
func (h *AccountHandler) GetSingle(c *gin.Context) {
	view, err := h.accounts.GetByEmail(c.Request.Context(), c.Query("email"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": view})
}

// List handles GET /api/account/get-all
func (h *AccountHandler) List(c *gin.Context) {
	q := &service.AccountQuery{}
	var ok bool
	if q.IsActive, ok = queryBool(c, "is_active"); !ok {
		return
	}
	if q.IsPremium, ok = queryBool(c, "is_premium"); !ok {
		return
	}
	if q.Page, ok = queryInt(c, "page"); !ok {
		return
	}
	if q.Limit, ok = queryInt(c, "limit"); !ok {
		return
	}

	page, err := h.accounts.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Premium handles GET /api/account/get-premium-users
func (h *AccountHandler) Premium(c *gin.Context) {
	users, err := h.accounts.Premium(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// UpdateProfile handles PUT /api/account/update-profile
func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	profile, err := profileInput(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	version, err := formInt64(c, "version")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	image, err := formUpload(c, "profileImage")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	result, err := h.accounts.UpdateProfile(c.Request.Context(), caller(c), &service.UpdateProfileInput{
		Email:        c.PostForm("email"),
		Version:      version,
		Profile:      profile,
		ProfileImage: image,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, "Profile updated successfully", result)
}

// SetPremium handles PATCH /api/account/update-premium-status
func (h *AccountHandler) SetPremium(c *gin.Context) {
	var req PremiumRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.AccountID <= 0 || req.IsPremium == nil {
		badRequest(c, "FIELDS_REQUIRED", "user_id and is_premium are required")
		return
	}
	if err := h.accounts.SetPremium(c.Request.Context(), req.AccountID, *req.IsPremium); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, fmt.Sprintf("Premium status updated to %t", *req.IsPremium), nil)
}

// SetStatus handles PATCH /api/account/update-status/:user_id
func (h *AccountHandler) SetStatus(c *gin.Context) {
	id, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	var req StatusRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.IsActive == nil {
		badRequest(c, "FIELDS_REQUIRED", "is_active is required")
		return
	}
	if err := h.accounts.SetActive(c.Request.Context(), id, *req.IsActive); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, fmt.Sprintf("Account status updated to %t", *req.IsActive), nil)
}

// Delete handles DELETE /api/account/delete/:user_id
func (h *AccountHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	result, err := h.accounts.Delete(c.Request.Context(), caller(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondMessage(c, "Account deleted successfully", result)
}
