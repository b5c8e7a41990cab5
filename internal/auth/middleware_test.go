package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type staticVerifier struct {
	identity *Identity
	err      error
	calls    int
}

func (v *staticVerifier) Verify(_ context.Context, _ string) (*Identity, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return v.identity, nil
}

func routeWith(verifier Verifier, next http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(Middleware(verifier))
		r.Post("/v1/projects/{projectID}/clusters/{clusterName}/completions", next)
	})
	return r
}

func TestMiddleware_MissingCredential(t *testing.T) {
	called := false
	router := routeWith(&staticVerifier{}, func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest("POST", "/v1/projects/42/clusters/prod/completions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if called {
		t.Fatalf("handler reached without credential")
	}
}

func TestMiddleware_InvalidCredential(t *testing.T) {
	router := routeWith(&staticVerifier{err: ErrInvalidCredential}, func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest("POST", "/v1/projects/42/clusters/prod/completions", nil)
	req.Header.Set("Authorization", "Bearer bad-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestMiddleware_ProjectMismatchRejectedBeforeHandler(t *testing.T) {
	// Credential is valid for project 42 but the path targets project 77.
	verifier := &staticVerifier{identity: &Identity{KeyID: "k1", ProjectID: "42"}}
	called := false
	router := routeWith(verifier, func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest("POST", "/v1/projects/77/clusters/prod/completions", nil)
	req.Header.Set("Authorization", "Bearer good-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if called {
		t.Fatalf("handler reached despite project mismatch; no store or downstream work may happen")
	}
}

func TestMiddleware_MatchingProjectPasses(t *testing.T) {
	verifier := &staticVerifier{identity: &Identity{KeyID: "k1", ProjectID: "42"}}
	var got *Identity
	router := routeWith(verifier, func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	})

	req := httptest.NewRequest("POST", "/v1/projects/42/clusters/prod/completions", nil)
	req.Header.Set("Authorization", "Bearer good-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got == nil || got.ProjectID != "42" {
		t.Fatalf("identity not propagated: %+v", got)
	}
}
