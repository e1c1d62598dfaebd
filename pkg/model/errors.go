package model

import (
	"errors"
	"fmt"
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the monitor API and by
// configuration validation.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// NewInternalError creates an INTERNAL_ERROR APIError.
func NewInternalError(msg string) *APIError {
	return &APIError{Code: ErrInternal, Message: msg}
}

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}

// ErrorKind classifies simulation failures. Every kind is fatal.
type ErrorKind string

const (
	// KindResource: the clock or the channel could not be established.
	KindResource ErrorKind = "RESOURCE_ERROR"
	// KindCommunication: a send or receive failed mid-run.
	KindCommunication ErrorKind = "COMMUNICATION_ERROR"
	// KindTimeout: the wall-clock safety budget ran out.
	KindTimeout ErrorKind = "TIMEOUT_ERROR"
	// KindCapacity: the process table has no free slot.
	KindCapacity ErrorKind = "CAPACITY_EXCEEDED"
)

// SimError is a classified simulation failure.
type SimError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *SimError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *SimError) Unwrap() error { return e.Err }

// Is matches any SimError of the same kind, so errors.Is(err, &SimError{Kind: KindTimeout}) works.
func (e *SimError) Is(target error) bool {
	t, ok := target.(*SimError)
	return ok && t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// NewResourceError wraps err as a resource-acquisition failure.
func NewResourceError(op string, err error) *SimError {
	return &SimError{Kind: KindResource, Op: op, Err: err}
}

// NewCommunicationError wraps err as a dispatch-channel failure.
func NewCommunicationError(op string, err error) *SimError {
	return &SimError{Kind: KindCommunication, Op: op, Err: err}
}

// NewTimeoutError wraps err as an expired safety budget.
func NewTimeoutError(op string, err error) *SimError {
	return &SimError{Kind: KindTimeout, Op: op, Err: err}
}

// NewCapacityError reports a full process table.
func NewCapacityError(capacity int) *SimError {
	return &SimError{Kind: KindCapacity, Op: fmt.Sprintf("allocate (capacity %d)", capacity)}
}

// KindOf returns the kind of the first SimError in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var se *SimError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
