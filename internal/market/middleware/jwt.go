// Package middleware authenticates marketplace requests with bearer JWTs.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/songzhibin97/qwork/internal/market/auth"
	"github.com/songzhibin97/qwork/pkg/log"
	"github.com/songzhibin97/qwork/pkg/market"
)

// claimsKey is the gin context key of the validated claims
const claimsKey = "qwork.claims"

// TokenValidator validates access tokens
type TokenValidator interface {
	Validate(token string, typ auth.TokenType) (*auth.Claims, error)
}

// JWTMiddleware handles JWT authentication for API endpoints
type JWTMiddleware struct {
	validator TokenValidator
}

// NewJWTMiddleware creates a new JWT middleware
func NewJWTMiddleware(validator TokenValidator) *JWTMiddleware {
	return &JWTMiddleware{validator: validator}
}

// RequireAuth rejects requests without a valid access token
func (jm *JWTMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := jm.authenticate(c); !ok {
			return
		}
		c.Next()
	}
}

// RequireRole rejects requests whose token does not carry role
func (jm *JWTMiddleware) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := jm.authenticate(c)
		if !ok {
			return
		}
		if claims.Role != role {
			abort(c, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS", "Required role: "+role)
			return
		}
		c.Next()
	}
}

func (jm *JWTMiddleware) authenticate(c *gin.Context) (*auth.Claims, bool) {
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		abort(c, http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header must be in format 'Bearer <token>'")
		return nil, false
	}

	claims, err := jm.validator.Validate(token, auth.TokenAccess)
	if err != nil {
		abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
		return nil, false
	}

	setClaims(c, claims)
	return claims, true
}

// OptionalAuth attaches the claims of a valid token and lets every
// request continue
func (jm *JWTMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
			if claims, err := jm.validator.Validate(token, auth.TokenAccess); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

// Claims returns the claims of the authenticated caller
func Claims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

// IsAdmin reports whether the caller is an authenticated admin
func IsAdmin(c *gin.Context) bool {
	claims, ok := Claims(c)
	return ok && claims.Role == market.RoleAdmin
}

func setClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(claimsKey, claims)
	c.Request = c.Request.WithContext(log.ContextWithAccountID(c.Request.Context(), claims.AccountID))
}

func bearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}
