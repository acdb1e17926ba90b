package httpapi

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/platform/logging"
)

// Authenticator resolves a bearer token into the acting identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
}

// NewAuthMiddleware resolves Authorization: Bearer <token> into an identity in request context.
//
// A request without the header proceeds as anonymous; each operation decides whether that is
// enough. A header that is present but malformed or invalid is rejected with 401.
func NewAuthMiddleware(a Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	log = logging.OrNop(log)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if authz == "" {
				next.ServeHTTP(w, r)
				return
			}
			const prefix = "Bearer "
			if !strings.HasPrefix(authz, prefix) {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "malformed Authorization header", nil)
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
			if raw == "" {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
				return
			}

			id, err := a.Authenticate(r.Context(), raw)
			if err != nil {
				writeAppError(w, r, log, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
