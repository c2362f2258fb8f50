package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := NewDeviceNotFoundError("device \"XYZ\" not found")
	assert.Contains(t, err.Error(), "DEVICE_NOT_FOUND")
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus)
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(cause, ErrCodeServiceUnavailable, "backend unreachable", http.StatusServiceUnavailable)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "caused by")
}

func TestAppError_WithContext(t *testing.T) {
	err := NewInvalidInputError("bad coordinates").WithContext("x", -1)
	assert.Equal(t, -1, err.Context["x"])
}

func TestGetAppError(t *testing.T) {
	appErr := NewInternalError("boom")
	wrapped := fmt.Errorf("handler: %w", appErr)

	got := GetAppError(wrapped)
	assert.NotNil(t, got)
	assert.Equal(t, ErrCodeInternal, got.Code)

	assert.Nil(t, GetAppError(errors.New("plain")))
	assert.Nil(t, GetAppError(nil))
}
