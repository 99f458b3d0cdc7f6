package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/services/auth"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials},
		{"wrapped unauthenticated", fmt.Errorf("%w: token expired", model.ErrUnauthenticated), http.StatusUnauthorized, CodeUnauthorized},
		{"forbidden", model.ErrForbidden, http.StatusForbidden, CodeForbidden},
		{"not found", fmt.Errorf("delete user: %w", model.ErrUserNotFound), http.StatusNotFound, CodeUserNotFound},
		{"conflict", model.ErrUsernameExists, http.StatusConflict, CodeUsernameExists},
		{"bad username", auth.ErrInvalidUsername, http.StatusBadRequest, CodeInvalidUsername},
		{"bad role", model.ErrInvalidRole, http.StatusBadRequest, CodeInvalidRole},
		{"store down", fmt.Errorf("%w: dial tcp", model.ErrStoreUnavailable), http.StatusServiceUnavailable, CodeStoreUnavailable},
		{"explicit", NewInvalidRequestError("invalid request body"), http.StatusBadRequest, CodeInvalidRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantStatus, Status(tt.err))
		})
	}
}

func TestUnknownErrorsDoNotLeakDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, errors.New("pq: password authentication failed for user admin"))

	assert.NotContains(t, rr.Body.String(), "password authentication")
}
