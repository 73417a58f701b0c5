// Package httputil holds the JSON response writers and query parsers used
// by the HTTP API, plus the client that fetches remote annotation documents.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/banshee-data/pose.overlay/internal/monitoring"
)

// ErrorBody is the JSON shape of every error response. Code is a stable
// machine-readable reason; Error is for humans.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var statusCodes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusNotFound:            "not_found",
	http.StatusMethodNotAllowed:    "method_not_allowed",
	http.StatusInternalServerError: "internal",
	http.StatusServiceUnavailable:  "not_ready",
}

// WriteJSONError writes an ErrorBody with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	code, ok := statusCodes[status]
	if !ok {
		code = "error"
	}
	WriteJSON(w, status, ErrorBody{Error: msg, Code: code})
}

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("[api] encode %T response: %v", data, err)
	}
}

// WriteJSONOK is WriteJSON with 200.
func WriteJSONOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}

func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}

func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, msg)
}

// ServiceUnavailable answers while the dataset is still loading. Clients
// should retry after a second.
func ServiceUnavailable(w http.ResponseWriter, msg string) {
	w.Header().Set("Retry-After", "1")
	WriteJSONError(w, http.StatusServiceUnavailable, msg)
}
