package revocation

import (
	"context"
	"sync"
	"time"

	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/ports/out/clock"
)

// Store is an in-memory revocation list. Entries are dropped once their tokens have expired.
// It is safe for concurrent use.
type Store struct {
	clock clock.Clock

	mu    sync.Mutex
	until map[domain.SessionID]time.Time
}

func NewStore(clk clock.Clock) *Store {
	return &Store{
		clock: clk,
		until: make(map[domain.SessionID]time.Time),
	}
}

func (s *Store) Revoke(ctx context.Context, id domain.SessionID, until time.Time) error {
	_ = ctx
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, exp := range s.until {
		if !exp.After(now) {
			delete(s.until, k)
		}
	}
	if until.After(now) {
		s.until[id] = until
	}
	return nil
}

func (s *Store) IsRevoked(ctx context.Context, id domain.SessionID) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.until[id]
	if !ok {
		return false, nil
	}
	return exp.After(s.clock.Now()), nil
}
