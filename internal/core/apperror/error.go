// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All stock ledger business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal           = "INTERNAL_ERROR"
	CodePersistenceFailure = "PERSISTENCE_FAILURE"

	// Validation errors (400)
	CodeValidation          = "VALIDATION_ERROR"
	CodeInvalidMovementType = "INVALID_MOVEMENT_TYPE"
	CodeInvalidQuery        = "INVALID_QUERY"

	// Business rule violations (422)
	CodeInsufficientStock = "INSUFFICIENT_STOCK"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeReservationConflict = "RESERVATION_CONFLICT"
	CodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"

	// Key reuse (422)
	CodeIdempotencyMismatch = "IDEMPOTENCY_KEY_REUSED"
)

// AppError is the standard error type of the service.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInsufficientStock creates a stock shortage error.
// The message always reports the quantity available for reservation,
// never available+reserved: that is what the caller can actually get.
func NewInsufficientStock(productID string, requested, available int64) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    fmt.Sprintf("Insufficient stock. Available: %d, Requested: %d", available, requested),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product_id": productID,
			"requested":  requested,
			"available":  available,
		},
	}
}

// NewInvalidMovementType rejects a movement type outside the closed set,
// or a type not accepted by the called operation.
func NewInvalidMovementType(movementType, reason string) *AppError {
	return &AppError{
		Code:       CodeInvalidMovementType,
		Message:    fmt.Sprintf("invalid movement type %q: %s", movementType, reason),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"movement_type": movementType},
	}
}

// NewReservationConflict reports a release/commit against an unknown or
// already resolved reservation, or a reused reservation reference.
func NewReservationConflict(reservationID any, message string) *AppError {
	return &AppError{
		Code:       CodeReservationConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"reservation_id": reservationID},
	}
}

// NewIdempotencyConflict reports a key whose first request is still running.
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotencyConflict,
		Message:    "A request with this idempotency key is already in progress",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch reports a key reused for a different request.
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotencyMismatch,
		Message:    "Idempotency key was already used for a different request",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewPersistenceFailure wraps a storage/transaction failure.
// Never retried inside the service: mutations are not idempotent.
func NewPersistenceFailure(err error) *AppError {
	return &AppError{
		Code:       CodePersistenceFailure,
		Message:    "Storage is temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewInvalidQuery reports a malformed filter value.
func NewInvalidQuery(field, message string) *AppError {
	return &AppError{
		Code:       CodeInvalidQuery,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"field": field},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err carries the given AppError code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsInsufficientStock checks if error is CodeInsufficientStock
func IsInsufficientStock(err error) bool {
	return HasCode(err, CodeInsufficientStock)
}

// IsReservationConflict checks if error is CodeReservationConflict
func IsReservationConflict(err error) bool {
	return HasCode(err, CodeReservationConflict)
}

// Persistence converts any non-AppError into a PersistenceFailure.
// AppErrors pass through untouched.
func Persistence(err error) error {
	if err == nil || IsAppError(err) {
		return err
	}
	return NewPersistenceFailure(err)
}
