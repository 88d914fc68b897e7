package middleware

import (
	"context"
	"net/http"

	"github.com/wondr/rembg/internal/models"
	"github.com/wondr/rembg/internal/services"
)

type contextKey string

const identityKey contextKey = "identity"

// BearerAuth verifies the Authorization header and stores the caller's
// identity in the request context. Used on read-only routes; the removal
// endpoint verifies inside its own pipeline.
func BearerAuth(verifier services.IdentityVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := verifier.Verify(r.Header.Get("Authorization"))
			if err != nil {
				services.SendAppError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFrom returns the identity stored by BearerAuth
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(models.Identity)
	return identity, ok && identity.Key != ""
}
