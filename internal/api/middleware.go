package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/Robin318-Gamer/StoryReader/internal/auth"
)

type contextKey string

const identityKey contextKey = "identity"

// BearerAuth is middleware that resolves Authorization: Bearer <token> to a
// verified identity and stores it on the request context. Requests without
// a valid token are rejected with 401.
func BearerAuth(verifier auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				respondError(w, http.StatusUnauthorized, "Missing bearer token")
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")

			identity, err := verifier.VerifyToken(r.Context(), token)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the verified requester set by BearerAuth.
func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*auth.Identity)
	return identity, ok
}
