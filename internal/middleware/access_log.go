package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/songzhibin97/qwork/internal/config"
	"github.com/songzhibin97/qwork/pkg/log"
)

// AccessLogMiddleware provides structured access logging
type AccessLogMiddleware struct {
	config *config.AccessLogConfig
	logger log.Logger
	skip   map[string]bool
}

// NewAccessLogMiddleware creates a new access log middleware
func NewAccessLogMiddleware(cfg *config.AccessLogConfig, logger log.Logger) *AccessLogMiddleware {
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}
	return &AccessLogMiddleware{
		config: cfg,
		logger: logger.With(log.Component("middleware.access_log")),
		skip:   skip,
	}
}

// Handler returns the gin middleware
func (m *AccessLogMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.config.Enabled || m.skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		requestID, _ := log.RequestIDFromContext(c.Request.Context())
		fields := log.RequestFields(requestID, c.Request.Method, c.Request.URL.Path, c.ClientIP())
		fields = append(fields, log.ResponseFields(c.Writer.Status(), int64(c.Writer.Size()), latency)...)
		fields = append(fields, log.String(log.FieldUserAgent, c.Request.UserAgent()))
		if accountID, ok := log.AccountIDFromContext(c.Request.Context()); ok {
			fields = append(fields, log.Int64(log.FieldAccountID, accountID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, log.String(log.FieldError, c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			m.logger.Error("Access log entry", fields...)
		case status >= http.StatusBadRequest:
			m.logger.Warn("Access log entry", fields...)
		default:
			m.logger.Info("Access log entry", fields...)
		}
	}
}

// Recovery converts panics into 500 responses and logs them
func Recovery(logger log.Logger) gin.HandlerFunc {
	logger = logger.With(log.Component("middleware.recovery"))
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithContext(c.Request.Context()).Error("Panic recovered",
			log.String(log.FieldPath, c.Request.URL.Path), log.Any("panic", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "INTERNAL_ERROR",
			"message": "internal server error",
		})
	})
}

// BodyLimit caps the size of request bodies at limit bytes
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			if c.Request.ContentLength > limit {
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
					"error":   "PAYLOAD_TOO_LARGE",
					"message": "request body exceeds the upload limit",
				})
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
