package settingsrepo

import (
	"context"
	"sync"

	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/ports/out/settingsrepo"
)

// Repo holds the settings singleton in memory.
type Repo struct {
	mu    sync.RWMutex
	saved bool
	s     domain.SiteSettings
}

func NewRepo() *Repo {
	return &Repo{}
}

func (r *Repo) Get(ctx context.Context) (domain.SiteSettings, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.saved {
		return domain.SiteSettings{}, settingsrepo.ErrNotFound
	}
	return r.s, nil
}

func (r *Repo) Save(ctx context.Context, s domain.SiteSettings) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s = s
	r.saved = true
	return nil
}
