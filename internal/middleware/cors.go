// Package middleware provides the gin middleware shared by every route:
// request ids, access logging, CORS, body limits, metrics and tracing.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/songzhibin97/qwork/internal/config"
)

var defaultMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"}

// CORSMiddleware handles Cross-Origin Resource Sharing (CORS)
type CORSMiddleware struct {
	config *config.CORSConfig
}

// NewCORSMiddleware creates a new CORS middleware
func NewCORSMiddleware(cfg *config.CORSConfig) *CORSMiddleware {
	return &CORSMiddleware{config: cfg}
}

// Handler returns the gin middleware
func (m *CORSMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if !m.config.Enabled || origin == "" {
			c.Next()
			return
		}

		if !m.isOriginAllowed(origin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "CORS_REJECTED", "message": "Origin not allowed"})
			return
		}

		h := c.Writer.Header()
		if m.allowAll() {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if m.config.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
		}

		// preflight
		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			if !m.isMethodAllowed(c.GetHeader("Access-Control-Request-Method")) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "CORS_REJECTED", "message": "Method not allowed"})
				return
			}
			h.Set("Access-Control-Allow-Methods", strings.Join(m.methods(), ", "))
			if len(m.config.AllowedHeaders) > 0 {
				h.Set("Access-Control-Allow-Headers", strings.Join(m.config.AllowedHeaders, ", "))
			} else if requested := c.GetHeader("Access-Control-Request-Headers"); requested != "" {
				h.Set("Access-Control-Allow-Headers", requested)
			}
			if m.config.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(int(m.config.MaxAge.Seconds())))
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		if len(m.config.ExposedHeaders) > 0 {
			h.Set("Access-Control-Expose-Headers", strings.Join(m.config.ExposedHeaders, ", "))
		}
		c.Next()
	}
}

func (m *CORSMiddleware) allowAll() bool {
	for _, o := range m.config.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (m *CORSMiddleware) methods() []string {
	if len(m.config.AllowedMethods) == 0 {
		return defaultMethods
	}
	return m.config.AllowedMethods
}

// isOriginAllowed checks if the origin is allowed
func (m *CORSMiddleware) isOriginAllowed(origin string) bool {
	for _, pattern := range m.config.AllowedOrigins {
		if matchOrigin(origin, pattern) {
			return true
		}
	}
	return false
}

// isMethodAllowed checks if the HTTP method is allowed
func (m *CORSMiddleware) isMethodAllowed(method string) bool {
	for _, allowed := range m.methods() {
		if strings.EqualFold(method, allowed) {
			return true
		}
	}
	return false
}

// matchOrigin checks if origin matches the allowed origin pattern.
// Patterns are exact origins, "*" or subdomain wildcards like "*.example.com".
func matchOrigin(origin, pattern string) bool {
	if pattern == "*" || origin == pattern {
		return true
	}
	domain, ok := strings.CutPrefix(pattern, "*.")
	if !ok {
		return false
	}
	hostname := origin
	if _, rest, found := strings.Cut(origin, "://"); found {
		hostname = rest
	}
	return strings.HasSuffix(hostname, "."+domain) || hostname == domain
}
