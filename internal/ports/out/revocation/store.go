package revocation

import (
	"context"
	"time"

	"github.com/dma-portal/association-api/internal/domain"
)

// Store remembers logged-out sessions until their tokens would have expired anyway.
type Store interface {
	Revoke(ctx context.Context, id domain.SessionID, until time.Time) error
	IsRevoked(ctx context.Context, id domain.SessionID) (bool, error)
}
