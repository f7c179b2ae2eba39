package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware provides OpenTelemetry distributed tracing
type TracingMiddleware struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewTracingMiddleware creates a new tracing middleware
func NewTracingMiddleware(tracer trace.Tracer, propagator propagation.TextMapPropagator) *TracingMiddleware {
	if propagator == nil {
		propagator = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	}
	return &TracingMiddleware{tracer: tracer, propagator: propagator}
}

// Handler returns the gin middleware
func (m *TracingMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		r := c.Request
		ctx := m.propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := c.FullPath()
		if route == "" {
			route = r.URL.Path
		}
		ctx, span := m.tracer.Start(ctx, fmt.Sprintf("%s %s", r.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
				attribute.String("http.client_ip", c.ClientIP()),
			),
		)
		defer span.End()

		if r.ContentLength > 0 {
			span.SetAttributes(attribute.Int64("http.request_content_length", r.ContentLength))
		}

		c.Request = r.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.Int("http.response_size", c.Writer.Size()),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
			span.RecordError(fmt.Errorf("server error: HTTP %d", status))
		} else if status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
	}
}
