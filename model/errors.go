package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest         = "BAD_REQUEST"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrForbidden          = "FORBIDDEN"
	ErrNotFound           = "NOT_FOUND"
	ErrConflict           = "CONFLICT"
	ErrValidationError    = "VALIDATION_ERROR"
	ErrInternalError      = "INTERNAL_ERROR"
	ErrStorageUnavailable = "STORAGE_UNAVAILABLE"
)

// Workflow-specific error codes.
const (
	ErrTransitionNotAllowed = "TRANSITION_NOT_ALLOWED"
)

// Transition denial reasons. The two causes are distinguishable for caller
// diagnostics even though the HTTP surface collapses both to 403.
const (
	ReasonNoSuchTransition  = "no_such_transition"
	ReasonRoleNotAuthorized = "role_not_authorized"
)

// ErrorEnvelope is the standard error response envelope returned by the API.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Reason  string       `json:"reason,omitempty"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a single violated invariant in a submitted definition
// or request body.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error. Transition callers receive this
// when an optimistic-lock check fails and should re-read and retry; the engine
// never retries on their behalf.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR carrying every violated
// invariant, not just the first.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more invariants are violated",
		Details: details,
	}
}

// NewTransitionNotAllowedError returns a TRANSITION_NOT_ALLOWED error with the
// given denial reason.
func NewTransitionNotAllowedError(reason, msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrTransitionNotAllowed, Reason: reason, Message: msg}
}

// NewStorageUnavailableError returns a STORAGE_UNAVAILABLE error. Callers
// treat this as fatal for the enclosing operation.
func NewStorageUnavailableError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrStorageUnavailable, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// IsCode returns true if err is an ErrorEnvelope with the given code.
func IsCode(err error, code string) bool {
	ee, ok := err.(*ErrorEnvelope)
	return ok && ee.Code == code
}
