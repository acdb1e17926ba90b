package tallyfeed

import (
	"context"

	"github.com/dma-portal/association-api/internal/domain"
)

// Publisher announces an updated candidate tally to live viewers.
// Delivery is best effort; a publish failure never affects a recorded vote.
type Publisher interface {
	Publish(ctx context.Context, t domain.Tally) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, t domain.Tally) error

func (f PublisherFunc) Publish(ctx context.Context, t domain.Tally) error { return f(ctx, t) }
