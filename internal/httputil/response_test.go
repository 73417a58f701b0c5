package httputil

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		want   ErrorBody
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "invalid t") }, http.StatusBadRequest, ErrorBody{"invalid t", "bad_request"}},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "dataset not found") }, http.StatusNotFound, ErrorBody{"dataset not found", "not_found"}},
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed, ErrorBody{"method not allowed", "method_not_allowed"}},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError, ErrorBody{"boom", "internal"}},
		{"not ready", func(w http.ResponseWriter) { ServiceUnavailable(w, "annotations not loaded") }, http.StatusServiceUnavailable, ErrorBody{"annotations not loaded", "not_ready"}},
		{"unmapped status", func(w http.ResponseWriter) { WriteJSONError(w, http.StatusTeapot, "short and stout") }, http.StatusTeapot, ErrorBody{"short and stout", "error"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.want, decodeError(t, rec))
		})
	}
}

func TestServiceUnavailableRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	ServiceUnavailable(rec, "loading")
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestWriteJSONOK(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]float64{"t_s": 1.5})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"t_s":1.5}`, rec.Body.String())
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, math.NaN())

	// Headers are already out; the body is empty.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}
