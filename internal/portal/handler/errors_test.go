package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alloggiati/internal/portal/portalerr"
	"alloggiati/pkg/platform/httputil"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		writeError(w, errors.New("db failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "internal_error", body["error"])
		_, ok := body["error_description"]
		assert.False(t, ok, "expected error_description to be omitted for internal errors")
	})

	t.Run("rejection includes portal code", func(t *testing.T) {
		w := httptest.NewRecorder()
		writeError(w, portalerr.Rejection("Send", "E21", "Schedina duplicata", ""))

		assert.Equal(t, http.StatusConflict, w.Code)

		var body httputil.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "rejection_error", body.Error)
		assert.Equal(t, "E21", body.PortalCode)
		assert.Contains(t, body.ErrorDescription, "Schedina duplicata")
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", portalerr.FieldRequired("family_name"), http.StatusUnprocessableEntity},
		{"empty batch", portalerr.ErrEmptyBatch, http.StatusUnprocessableEntity},
		{"rejection", portalerr.Rejection("Test", "E01", "", ""), http.StatusConflict},
		{"auth", portalerr.New(portalerr.KindAuth, "GenerateToken", "", portalerr.ErrAuthFailed), http.StatusBadGateway},
		{"protocol", portalerr.Protocol("Send", "missing esito"), http.StatusBadGateway},
		{"timeout", portalerr.Transport("Send", true, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unavailable", portalerr.Transport("Send", false, portalerr.ErrCircuitOpen), http.StatusServiceUnavailable},
		{"token wait cancelled", portalerr.Transport("GenerateToken", false, context.Canceled), http.StatusServiceUnavailable},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
