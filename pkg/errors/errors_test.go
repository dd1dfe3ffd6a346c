package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := ValidationError("body", "Body can't be blank")

	assert.Equal(t, ErrCodeValidation, err.Code)
	assert.Equal(t, "body", err.Field)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.False(t, err.Retryable)
}

func TestStorageError_IsRetryable(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := StorageError(cause)

	assert.True(t, err.Retryable)
	assert.Equal(t, http.StatusServiceUnavailable, err.StatusCode)
	assert.ErrorIs(t, err, cause)
}

func TestHasCode_Wrapped(t *testing.T) {
	err := fmt.Errorf("admit: %w", AttachmentRejectedError("too large"))

	assert.True(t, HasCode(err, ErrCodeAttachmentRejected))
	assert.False(t, HasCode(err, ErrCodeValidation))
	assert.True(t, IsAppError(err))
}

func TestGetAppError_PlainError(t *testing.T) {
	appErr := GetAppError(fmt.Errorf("boom"))

	assert.Equal(t, ErrCodeInternal, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
}
