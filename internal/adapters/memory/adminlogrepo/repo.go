package adminlogrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/dma-portal/association-api/internal/ports/out/adminlogrepo"
)

// Repo is an in-memory append-only audit log.
// It is safe for concurrent use.
type Repo struct {
	mu      sync.RWMutex
	entries []adminlogrepo.Entry
}

func NewRepo() *Repo {
	return &Repo{}
}

func (r *Repo) Append(ctx context.Context, e adminlogrepo.Entry) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *Repo) ListRecent(ctx context.Context, limit int) ([]adminlogrepo.Entry, error) {
	_ = ctx
	r.mu.RLock()
	out := make([]adminlogrepo.Entry, len(r.entries))
	copy(out, r.entries)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
