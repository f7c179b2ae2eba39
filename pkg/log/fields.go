package log

import (
	"time"
)

// Standard field names used across the service
const (
	FieldError     = "error"
	FieldRequestID = "request_id"
	FieldAccountID = "account_id"
	FieldTraceID   = "trace_id"
	FieldComponent = "component"

	// HTTP
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldStatusCode   = "status_code"
	FieldLatency      = "latency"
	FieldClientIP     = "client_ip"
	FieldUserAgent    = "user_agent"
	FieldResponseSize = "response_size"

	// Coordinator
	FieldOperation = "operation"
	FieldFilePath  = "file_path"
	FieldFileOpID  = "file_op_id"

	// Domain
	FieldPortfolioID = "portfolio_id"
	FieldEmail       = "email"
)

// RequestFields returns the standard fields of an incoming HTTP request.
func RequestFields(requestID, method, path, clientIP string) []Field {
	return []Field{
		String(FieldRequestID, requestID),
		String(FieldMethod, method),
		String(FieldPath, path),
		String(FieldClientIP, clientIP),
	}
}

// ResponseFields returns the standard fields of a completed HTTP response.
func ResponseFields(statusCode int, responseSize int64, latency time.Duration) []Field {
	return []Field{
		Int(FieldStatusCode, statusCode),
		Int64(FieldResponseSize, responseSize),
		Duration(FieldLatency, latency),
	}
}

// FileFields returns the fields describing a file operation of a coordinated write.
func FileFields(operation, path string) []Field {
	return []Field{
		String(FieldOperation, operation),
		String(FieldFilePath, path),
	}
}

// Component returns a field naming the emitting component.
func Component(name string) Field {
	return String(FieldComponent, name)
}
