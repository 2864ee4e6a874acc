package errors

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by the engine unwraps to exactly one of these.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrForbidden            = errors.New("action forbidden")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrDuplicateResponse    = errors.New("duplicate approval response")
	ErrNotActive            = errors.New("resource not active")
	ErrTransitionFailed     = errors.New("transition failed")
	ErrInvalidInput         = errors.New("invalid input")
)

// Transport-level errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal server error")
	ErrBadRequest   = errors.New("bad request")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

// Not found
var (
	ErrTicketNotFound     = newKindError(ErrNotFound, "ticket not found")
	ErrWorkflowNotFound   = newKindError(ErrNotFound, "workflow not found")
	ErrTransitionNotFound = newKindError(ErrNotFound, "transition not found")
	ErrApprovalNotFound   = newKindError(ErrNotFound, "approval not found")
	ErrSLANotFound        = newKindError(ErrNotFound, "SLA timer not found")
	ErrPauseNotFound      = newKindError(ErrNotFound, "open SLA pause not found")
	ErrUserNotFound       = newKindError(ErrNotFound, "user not found")
)

// Business rule violations
var (
	ErrStatusMismatch      = newKindError(ErrInvalidTransition, "transition does not start from the ticket's current status")
	ErrUnknownStatus       = newKindError(ErrInvalidTransition, "status is not part of the workflow")
	ErrRoleNotPermitted    = newKindError(ErrForbidden, "actor role may not perform this transition")
	ErrNotApprover         = newKindError(ErrForbidden, "user is not a required approver")
	ErrAlreadyResponded    = newKindError(ErrDuplicateResponse, "user has already responded to this approval")
	ErrApprovalClosed      = newKindError(ErrNotActive, "approval is no longer pending")
	ErrSLANotActive        = newKindError(ErrNotActive, "SLA timer cannot be paused or completed in its current state")
	ErrSLANotPaused        = newKindError(ErrNotActive, "SLA timer is not paused")
	ErrSLAAlreadyRunning   = newKindError(ErrNotActive, "ticket already has an active SLA timer")
	ErrNoApprovers         = newKindError(ErrTransitionFailed, "no approvers available for the approval role")
	ErrPauseReasonRequired = newKindError(ErrInvalidInput, "pause reason is required")
	ErrAmbiguousTransition = newKindError(ErrInvalidInput, "workflow defines more than one transition between the same statuses")
	ErrInvalidWorkflow     = newKindError(ErrInvalidInput, "workflow definition is invalid")
	ErrUnknownField        = newKindError(ErrInvalidInput, "unknown ticket field")
	ErrProtectedField      = newKindError(ErrInvalidInput, "field cannot be changed by a workflow action")
	ErrInvalidFieldValue   = newKindError(ErrInvalidInput, "invalid value for ticket field")
	ErrInvalidAction       = newKindError(ErrInvalidInput, "invalid workflow action")
)

type kindError struct {
	kind error
	msg  string
}

func newKindError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// Wrap attaches detail to one of the errors above while keeping it matchable with errors.Is.
func Wrap(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))
}

// MissingFieldError names the first required field that was empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingRequiredField }

// TransitionFailedError reports the side-effect action that aborted a transition.
type TransitionFailedError struct {
	Action string
	Err    error
}

func (e *TransitionFailedError) Error() string {
	return fmt.Sprintf("transition failed in %s action: %v", e.Action, e.Err)
}

func (e *TransitionFailedError) Unwrap() []error {
	return []error{ErrTransitionFailed, e.Err}
}

// Kind returns the stable machine-readable code for err, or "" for infrastructure errors.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransitionFailed):
		// checked first: a failed action may wrap another kind
		return "TRANSITION_FAILED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrMissingRequiredField):
		return "MISSING_REQUIRED_FIELD"
	case errors.Is(err, ErrDuplicateResponse):
		return "DUPLICATE_RESPONSE"
	case errors.Is(err, ErrNotActive):
		return "NOT_ACTIVE"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	default:
		return ""
	}
}

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		StatusCode: 401,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "An unexpected error occurred",
		Code:       "INTERNAL_ERROR",
		StatusCode: 500,
	}
}

// ValidationErrors holds multiple field validation errors
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d field(s) have errors", len(v.Errors))
}
