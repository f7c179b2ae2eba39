// Package handler exposes the marketplace services over HTTP with gin.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/songzhibin97/qwork/internal/market/coordinator"
	"github.com/songzhibin97/qwork/internal/market/middleware"
	"github.com/songzhibin97/qwork/internal/market/service"
	"github.com/songzhibin97/qwork/pkg/log"
	"github.com/songzhibin97/qwork/pkg/market"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageResponse is the body of requests that return no resource
type MessageResponse struct {
	Message string `json:"message"`
	// Warnings lists files that could not be written or removed after commit
	Warnings []string `json:"warnings,omitempty"`
}

// statusOf maps a marketplace error to its HTTP status
func statusOf(err error) int {
	switch {
	case market.IsValidationError(err):
		return http.StatusBadRequest
	case market.IsNotFoundError(err):
		return http.StatusNotFound
	case market.IsConflictError(err):
		return http.StatusConflict
	case market.IsPermissionError(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an ErrorResponse. Internal failures are
// logged and their message is not exposed.
func respondError(c *gin.Context, logger log.Logger, err error) {
	status := statusOf(err)
	resp := ErrorResponse{Error: market.CodeOf(err), Message: err.Error()}

	var merr *market.MarketError
	if errors.As(err, &merr) {
		resp.Message = merr.Message
		resp.Details = merr.Details
	}

	if status == http.StatusInternalServerError {
		logger.WithContext(c.Request.Context()).Error("Request failed",
			log.String(log.FieldPath, c.FullPath()), log.Error(err))
		if resp.Error == "" || resp.Error == "INTERNAL" {
			resp.Error = "INTERNAL_ERROR"
		}
		resp.Message = "internal server error"
		resp.Details = ""
	}
	c.AbortWithStatusJSON(status, resp)
}

func respondMessage(c *gin.Context, message string, result *coordinator.Result) {
	c.JSON(http.StatusOK, MessageResponse{Message: message, Warnings: warnings(result)})
}

// warnings describes the file operations of result that failed after commit
func warnings(result *coordinator.Result) []string {
	if result == nil {
		return nil
	}
	var out []string
	for _, inc := range result.Inconsistencies {
		out = append(out, string(inc.Kind)+" failed: "+inc.Path)
	}
	return out
}

func badRequest(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: code, Message: message})
}

// caller builds the service principal from the validated token claims
func caller(c *gin.Context) *service.Caller {
	claims, ok := middleware.Claims(c)
	if !ok {
		return nil
	}
	return &service.Caller{ID: claims.AccountID, Email: claims.Email, Role: claims.Role}
}

// idParam parses a positive integer path parameter
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "INVALID_ID", "invalid "+name)
		return 0, false
	}
	return id, true
}

// bindJSON decodes the request body into v
func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, "INVALID_JSON", "Invalid JSON format")
		return false
	}
	return true
}

// queryBool parses an optional boolean query parameter
func queryBool(c *gin.Context, name string) (*bool, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		badRequest(c, "INVALID_QUERY", name+" must be a boolean")
		return nil, false
	}
	return &v, true
}

// queryInt parses an optional integer query parameter, returning zero when absent
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "INVALID_QUERY", name+" must be an integer")
		return 0, false
	}
	return v, true
}
