package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

type principalKey struct{}

// WithPrincipal stores the principal in the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext extracts the principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Middleware gates HTTP requests with the same validator the realtime gate uses.
func Middleware(v TokenValidator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, _, ok := CredentialFromRequest(r, RequestSources...)
			if !ok {
				WriteUnauthorized(w, "no token provided")
				return
			}

			principal, err := v.Validate(r.Context(), token)
			if err != nil {
				log.Debug("Rejected request credential", "path", r.URL.Path, "error", err)
				WriteUnauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// WriteUnauthorized writes the JSON 401 body shared by HTTP and handshake rejections.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    http.StatusUnauthorized,
		"message": "unauthorized: " + message,
	})
}
