package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/ports/out/clock"
)

const keyPrefix = "session:revoked:"

// Store keeps revoked session ids in redis with a TTL matching the token's remaining life,
// so every API instance sees a logout.
type Store struct {
	client *goredis.Client
	clock  clock.Clock
}

func NewStore(client *goredis.Client, clk clock.Clock) *Store {
	return &Store{client: client, clock: clk}
}

func (s *Store) Revoke(ctx context.Context, id domain.SessionID, until time.Time) error {
	if s.client == nil {
		return errors.New("nil redis client")
	}
	ttl := until.Sub(s.clock.Now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, keyPrefix+string(id), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *Store) IsRevoked(ctx context.Context, id domain.SessionID) (bool, error) {
	if s.client == nil {
		return false, errors.New("nil redis client")
	}
	n, err := s.client.Exists(ctx, keyPrefix+string(id)).Result()
	if err != nil {
		return false, fmt.Errorf("check session revocation: %w", err)
	}
	return n > 0, nil
}
