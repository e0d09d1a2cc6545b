package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gatekeeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Internal Server Error", resp.Error)
	assert.Equal(t, models.ErrorCodeInternalError, resp.Code)
}

func TestLoggingMiddleware_RecordsStatus(t *testing.T) {
	var seen *statusRecorder
	handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		seen = w.(*statusRecorder)
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	require.NotNil(t, seen)
	assert.Equal(t, http.StatusTeapot, seen.status)
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	s := newTestStack(t)

	rr := s.do(t, http.MethodGet, "/api/v1/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	rr = s.do(t, http.MethodPut, "/api/v1/session", "user-1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, models.ErrorCodeInvalidRequest, resp.Code)

	rr = s.do(t, http.MethodPut, "/api/v1/admin/blocks/198.51.100.7", "root:admin", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/v1/admin/nope", "root:admin", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	var missing models.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &missing))
	assert.Equal(t, models.ErrorCodeNotFound, missing.Code)
}

func TestWithOTelMiddleware(t *testing.T) {
	s := newTestStack(t, WithOTelMiddleware("gatekeeper-test"))

	rr := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/v1/session", "user-1", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}
