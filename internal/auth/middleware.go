package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/routefabric/cluster-gateway/internal/httputil"
)

type contextKey string

const identityContextKey contextKey = "gateway_identity"

func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	return id, ok
}

// Middleware authenticates the Bearer credential and enforces the project
// boundary: a valid key scoped to another project is rejected with 403
// before any store or downstream work happens.
func Middleware(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteAuthError(w, reqID, "Missing Authorization header. Use: Authorization: Bearer <api-key>")
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader || token == "" {
				httputil.WriteAuthError(w, reqID, "Invalid Authorization format. Use: Authorization: Bearer <api-key>")
				return
			}

			identity, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, ErrInvalidCredential) {
					slog.Warn("auth failed: credential rejected", "key_prefix", SafePrefix(token))
					httputil.WriteAuthError(w, reqID, "Invalid API key")
					return
				}
				slog.Error("credential verification failed", "error", err, "key_prefix", SafePrefix(token))
				httputil.WriteInternalError(w, reqID, "Internal error during authentication")
				return
			}

			if projectID := chi.URLParam(r, "projectID"); projectID != "" && projectID != identity.ProjectID {
				slog.Warn("auth failed: project mismatch",
					"key_project", identity.ProjectID, "path_project", projectID)
				httputil.WriteForbiddenError(w, reqID, "Credential does not grant access to this project")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}
