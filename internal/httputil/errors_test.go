package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var e APIError
	if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestErrorTaxonomyDistinct(t *testing.T) {
	cases := []struct {
		name    string
		write   func(w http.ResponseWriter)
		status  int
		errType string
	}{
		{"auth", func(w http.ResponseWriter) { WriteAuthError(w, "r1", "bad key") }, http.StatusUnauthorized, "authentication_error"},
		{"forbidden", func(w http.ResponseWriter) { WriteForbiddenError(w, "r1", "wrong project") }, http.StatusForbidden, "authorization_error"},
		{"notfound", func(w http.ResponseWriter) { WriteNotFoundError(w, "r1", "no cluster") }, http.StatusNotFound, "not_found_error"},
		{"config", func(w http.ResponseWriter) { WriteConfigurationError(w, "r1", "unroutable") }, http.StatusBadGateway, "configuration_error"},
		{"upstream", func(w http.ResponseWriter) { WriteUpstreamError(w, "r1") }, http.StatusBadGateway, "upstream_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tc.write(w)
			if w.Code != tc.status {
				t.Errorf("status = %d, want %d", w.Code, tc.status)
			}
			body := decode(t, w)
			if body.Error.Type != tc.errType {
				t.Errorf("type = %s, want %s", body.Error.Type, tc.errType)
			}
			if body.Error.RequestID != "r1" {
				t.Errorf("request id lost: %+v", body)
			}
		})
	}
}

func TestUpstreamErrorIsGeneric(t *testing.T) {
	w := httptest.NewRecorder()
	WriteUpstreamError(w, "r1")
	body := decode(t, w)
	if body.Error.Message != "The inference engine is currently unavailable" {
		t.Errorf("upstream message leaks detail: %q", body.Error.Message)
	}
}
