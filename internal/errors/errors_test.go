package errors

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorRender(t *testing.T) {
	tests := []struct {
		name       string
		apiErr     *APIError
		wantStatus int
		wantCode   string
	}{
		{"invalid request", ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
		{"entitlement required", ErrEntitlementRequired, http.StatusPaymentRequired, "ENTITLEMENT_REQUIRED"},
		{"not found", ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"rate limited", ErrRateLimitExceeded, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
		{"internal", ErrInternalServer, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)

			require.NoError(t, render.Render(w, r, tt.apiErr))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantCode)
		})
	}
}

func TestAPIErrorImplementsError(t *testing.T) {
	err := New(http.StatusConflict, "CONFLICT", "bookmark already exists")
	assert.EqualError(t, err, "bookmark already exists")
}

func TestErrValidationDetails(t *testing.T) {
	apiErr := ErrValidation("title", "must not be empty")
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	details, ok := apiErr.Details.(ValidationError)
	require.True(t, ok)
	assert.Equal(t, "title", details.Field)
	assert.Equal(t, "must not be empty", details.Message)
}

func TestNotFoundError(t *testing.T) {
	apiErr := NotFoundError("Bookmark")
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Bookmark not found", apiErr.Message)
}

func TestStorageErrorHidesDriver(t *testing.T) {
	apiErr := StorageError(errors.New("constraint violated"))
	assert.Equal(t, "STORAGE_ERROR", apiErr.ErrorCode)
	assert.Equal(t, "Storage operation failed", apiErr.Message)
}
