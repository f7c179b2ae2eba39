package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of a rejected request
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// Middleware limits each client IP per route
func Middleware(l *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := c.FullPath() + "|" + c.ClientIP()
		result := l.Allow(c.Request.Context(), identifier)
		SetHeaders(c.Writer.Header(), result)

		if !result.Allowed {
			retry := int(result.RetryAfter.Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error:      "RATE_LIMITED",
				Message:    "Rate limit exceeded. Please try again later.",
				RetryAfter: retry,
			})
			return
		}
		c.Next()
	}
}

// SetHeaders writes the X-RateLimit-* headers of result
func SetHeaders(h http.Header, result *Result) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))
}
