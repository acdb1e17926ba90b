package httpapi

import (
	"context"

	"github.com/dma-portal/association-api/internal/domain"
)

type identityKey struct{}

func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the anonymous identity when none was stored.
func IdentityFromContext(ctx context.Context) domain.Identity {
	id, _ := ctx.Value(identityKey{}).(domain.Identity)
	return id
}
