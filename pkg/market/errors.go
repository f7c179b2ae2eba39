package market

import (
	"errors"
	"fmt"
)

// Common error variables
var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrPortfolioNotFound = errors.New("portfolio not found")
	ErrEmailTaken        = errors.New("email already registered")
	ErrInvalidInput      = errors.New("invalid input")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrStorage           = errors.New("storage error")
	ErrFileSystem        = errors.New("filesystem error")
	ErrInternal          = errors.New("internal error")
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypePermission ErrorType = "permission"
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeFileSystem ErrorType = "filesystem"
	ErrorTypeInternal   ErrorType = "internal"
)

// MarketError represents a structured error with additional context
type MarketError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *MarketError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Details)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *MarketError) Unwrap() error {
	return e.Cause
}

// WithDetails returns a copy of the error carrying details
func (e *MarketError) WithDetails(details string) *MarketError {
	cp := *e
	cp.Details = details
	return &cp
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *MarketError {
	return &MarketError{Type: ErrorTypeNotFound, Code: code, Message: message}
}

// NewConflictError creates a new conflict error
func NewConflictError(code, message string) *MarketError {
	return &MarketError{Type: ErrorTypeConflict, Code: code, Message: message}
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string) *MarketError {
	return &MarketError{Type: ErrorTypeValidation, Code: code, Message: message}
}

// NewPermissionError creates a new permission error
func NewPermissionError(code, message string) *MarketError {
	return &MarketError{Type: ErrorTypePermission, Code: code, Message: message}
}

// NewStorageError creates a new relational storage error
func NewStorageError(code, message string, cause error) *MarketError {
	return &MarketError{Type: ErrorTypeStorage, Code: code, Message: message, Cause: cause}
}

// NewFileSystemError creates a new file system error
func NewFileSystemError(code, message string, cause error) *MarketError {
	return &MarketError{Type: ErrorTypeFileSystem, Code: code, Message: message, Cause: cause}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *MarketError {
	return &MarketError{Type: ErrorTypeInternal, Code: code, Message: message, Cause: cause}
}

func typeOf(err error) (ErrorType, bool) {
	var marketErr *MarketError
	if errors.As(err, &marketErr) {
		return marketErr.Type, true
	}
	return "", false
}

// CodeOf returns the code of a MarketError, or an empty string
func CodeOf(err error) string {
	var marketErr *MarketError
	if errors.As(err, &marketErr) {
		return marketErr.Code
	}
	return ""
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	if t, ok := typeOf(err); ok {
		return t == ErrorTypeNotFound
	}
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrPortfolioNotFound)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	if t, ok := typeOf(err); ok {
		return t == ErrorTypeConflict
	}
	return errors.Is(err, ErrEmailTaken)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	if t, ok := typeOf(err); ok {
		return t == ErrorTypeValidation
	}
	return errors.Is(err, ErrInvalidInput)
}

// IsPermissionError checks if the error is a permission error
func IsPermissionError(err error) bool {
	if t, ok := typeOf(err); ok {
		return t == ErrorTypePermission
	}
	return errors.Is(err, ErrPermissionDenied)
}

// IsStorageError checks if the error is a relational storage error
func IsStorageError(err error) bool {
	if t, ok := typeOf(err); ok {
		return t == ErrorTypeStorage
	}
	return errors.Is(err, ErrStorage)
}

// IsFileSystemError checks if the error is a file system error
func IsFileSystemError(err error) bool {
	if t, ok := typeOf(err); ok {
		return t == ErrorTypeFileSystem
	}
	return errors.Is(err, ErrFileSystem)
}

// IsInternalError checks if the error is an internal error
func IsInternalError(err error) bool {
	if t, ok := typeOf(err); ok {
		return t == ErrorTypeInternal
	}
	return errors.Is(err, ErrInternal)
}
