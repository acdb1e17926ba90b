package idempotency

import (
	"context"
	"sync"
	"time"

	platformclock "github.com/dma-portal/association-api/internal/platform/clock"
	clockport "github.com/dma-portal/association-api/internal/ports/out/clock"
	"github.com/dma-portal/association-api/internal/ports/out/idempotency"
)

// Store is an in-memory implementation of idempotency.Store keyed by the full request fingerprint.
// Expired records are dropped on the next Put. It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex
	m  map[idempotency.Fingerprint]idempotency.Record

	retention time.Duration
	clk       clockport.Clock
}

func NewStore() *Store {
	return NewStoreWithRetention(idempotency.DefaultRetention, nil)
}

// NewStoreWithRetention keeps records for retention (zero keeps them forever), measured on clk.
func NewStoreWithRetention(retention time.Duration, clk clockport.Clock) *Store {
	if clk == nil {
		clk = platformclock.NewSystemClock()
	}
	return &Store{
		m:         make(map[idempotency.Fingerprint]idempotency.Record),
		retention: retention,
		clk:       clk,
	}
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	_ = ctx
	now := s.clk.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.m[fp]
	if !ok || s.expired(rec, now) {
		return idempotency.Record{}, false, nil
	}
	rec.Body = append([]byte(nil), rec.Body...)
	return rec, true, nil
}

func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	_ = ctx
	now := s.clk.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.Body = append([]byte(nil), rec.Body...)
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, old := range s.m {
		if s.expired(old, now) {
			delete(s.m, k)
		}
	}
	s.m[fp] = rec
	return nil
}

// Len reports how many responses are stored, expired ones included until the next Put.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Bodies returns a copy of every stored response body.
func (s *Store) Bodies() [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]byte, 0, len(s.m))
	for _, rec := range s.m {
		out = append(out, append([]byte(nil), rec.Body...))
	}
	return out
}

func (s *Store) expired(rec idempotency.Record, now time.Time) bool {
	return s.retention > 0 && now.Sub(rec.CreatedAt) > s.retention
}
