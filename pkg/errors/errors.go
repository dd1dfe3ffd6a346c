package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeAttachmentRejected ErrorCode = "ATTACHMENT_REJECTED"

	// Authentication and authorization errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"

	// Not found errors
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeReferenceNotFound ErrorCode = "REFERENCE_NOT_FOUND"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeStorage  ErrorCode = "STORAGE_ERROR"
	ErrCodePublish  ErrorCode = "PUBLISH_ERROR"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Field      string    `json:"field,omitempty"`
	StatusCode int       `json:"-"`
	Retryable  bool      `json:"retryable,omitempty"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given code and message
// The status code defaults to 500 Internal Server Error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WrapWithStatus wraps an existing error with an AppError and specific status code
func WrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// WithDetails adds additional details to an AppError for debugging
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// WithField records which input field failed
func (e *AppError) WithField(field string) *AppError {
	e.Field = field
	return e
}

// ValidationError reports invalid caller input. Nothing has been persisted.
func ValidationError(field, message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest).WithField(field)
}

// AttachmentRejectedError reports an attachment that violates size or type constraints
func AttachmentRejectedError(message string) *AppError {
	return NewWithStatus(ErrCodeAttachmentRejected, message, http.StatusUnprocessableEntity).WithField("attachment")
}

// ReferenceNotFoundError reports an id in the request that does not resolve
func ReferenceNotFoundError(resource string) *AppError {
	return NewWithStatus(ErrCodeReferenceNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound).WithField(resource)
}

// NotFoundError reports a missing (or hidden) resource on a read path
func NotFoundError(resource string) *AppError {
	return NewWithStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func UnauthorizedError(message string) *AppError {
	return NewWithStatus(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func ForbiddenError(message string) *AppError {
	return NewWithStatus(ErrCodeForbidden, message, http.StatusForbidden)
}

func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

// StorageError reports a failed transactional step. The whole operation was rolled back
// and the caller may retry.
func StorageError(err error) *AppError {
	e := WrapWithStatus(ErrCodeStorage, "Storage error", http.StatusServiceUnavailable, err)
	e.Retryable = true
	return e
}

// PublishError wraps a broadcast transport failure. It is only ever logged.
func PublishError(channel string, err error) *AppError {
	return WrapWithStatus(ErrCodePublish, fmt.Sprintf("publish to %s failed", channel), http.StatusInternalServerError, err)
}

// IsAppError checks if an error is or wraps an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// HasCode reports whether err is an AppError carrying code
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return InternalError(err.Error())
}
