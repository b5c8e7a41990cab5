// Package httputil writes the gateway's error taxonomy. Callers build retry
// logic around these distinctions, so the statuses never collapse into one
// another: 401 bad credential, 403 wrong project, 404 no such cluster,
// 502 downstream unhealthy.
package httputil

import (
	"encoding/json"
	"net/http"
)

// APIError is the OpenAI-style error envelope.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, errType, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message:   message,
			Type:      errType,
			Code:      code,
			RequestID: requestID,
		},
	})
}

func WriteAuthError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, "authentication_error", "invalid_api_key", message)
}

func WriteForbiddenError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusForbidden, "authorization_error", "project_mismatch", message)
}

func WriteNotFoundError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusNotFound, "not_found_error", "cluster_not_found", message)
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", "invalid_request", message)
}

// WriteConfigurationError signals that routing cannot proceed safely: a
// binding references an inaccessible provider config, or no provider in the
// cluster could be resolved.
func WriteConfigurationError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadGateway, "configuration_error", "cluster_unroutable", message)
}

// WriteUpstreamError covers the downstream engine being unreachable or
// failing before any bytes were sent. The message stays generic; internal
// detail belongs in logs.
func WriteUpstreamError(w http.ResponseWriter, requestID string) {
	WriteError(w, requestID, http.StatusBadGateway, "upstream_error", "engine_unavailable",
		"The inference engine is currently unavailable")
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "server_error", "internal_error", message)
}
