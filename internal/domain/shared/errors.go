package shared

import (
	"errors"
	"fmt"
)

// Error codes shared by every layer of the engine
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotConfigured       = "NOT_CONFIGURED"
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeRateLimited         = "RATE_LIMITED"
	CodeDuplicateReference  = "DUPLICATE_REFERENCE"
	CodeGatewayError        = "GATEWAY_ERROR"
	CodeInvalidState        = "INVALID_STATE"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped cause, if any
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches domain errors by code so wrapped copies compare equal to sentinels
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapDomainError creates a domain error carrying an underlying cause
func WrapDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists       = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrInvalidInput        = NewDomainError(CodeValidation, "Invalid input provided")
	ErrNotConfigured       = NewDomainError(CodeNotConfigured, "Required integration is not configured")
	ErrUnauthenticated     = NewDomainError(CodeUnauthenticated, "Authentication required")
	ErrForbidden           = NewDomainError(CodeForbidden, "Access to this resource is forbidden")
	ErrRateLimited         = NewDomainError(CodeRateLimited, "Too many requests, please try again later")
	ErrDuplicateReference  = NewDomainError(CodeDuplicateReference, "Reference ID already exists")
	ErrGateway             = NewDomainError(CodeGatewayError, "Payment gateway returned an error")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
)

// NewValidationError creates a validation error with a specific message
func NewValidationError(message string) *DomainError {
	return NewDomainError(CodeValidation, message)
}

// NewNotFoundError creates a not-found error for the named resource
func NewNotFoundError(resource string) *DomainError {
	return NewDomainError(CodeNotFound, resource+" not found")
}

// ForbiddenError is a FORBIDDEN domain error with a machine-readable reason
type ForbiddenError struct {
	*DomainError
	Reason           string
	Feature          string
	CurrentPlan      string
	UpgradeAvailable bool
}

// NewForbiddenError creates a forbidden error for the given reason code
func NewForbiddenError(reason, message string) *ForbiddenError {
	return &ForbiddenError{
		DomainError: NewDomainError(CodeForbidden, message),
		Reason:      reason,
	}
}

// Unwrap exposes the embedded domain error to errors.As
func (e *ForbiddenError) Unwrap() error {
	return e.DomainError
}

// GetDomainError extracts a DomainError from an error chain
func GetDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsCode reports whether err carries the given domain error code
func IsCode(err error, code string) bool {
	de, ok := GetDomainError(err)
	return ok && de.Code == code
}
