package candidaterepo

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/ports/out/candidaterepo"
)

// Repo is an in-memory implementation of candidaterepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu   sync.RWMutex
	byID map[domain.CandidateID]candidaterepo.Candidate
}

func NewRepo() *Repo {
	return &Repo{byID: make(map[domain.CandidateID]candidaterepo.Candidate)}
}

func (r *Repo) Create(ctx context.Context, c candidaterepo.Candidate) error {
	_ = ctx
	if c.ID == "" {
		return candidaterepo.ErrAlreadyExists
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.ID]; ok {
		return candidaterepo.ErrAlreadyExists
	}
	r.byID[c.ID] = c
	return nil
}

func (r *Repo) Update(ctx context.Context, c candidaterepo.Candidate) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byID[c.ID]
	if !ok {
		return candidaterepo.ErrNotFound
	}
	existing.Name = c.Name
	existing.Position = c.Position
	existing.PhotoURL = c.PhotoURL
	existing.UpdatedAt = c.UpdatedAt
	r.byID[c.ID] = existing
	return nil
}

func (r *Repo) Delete(ctx context.Context, id domain.CandidateID) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return candidaterepo.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.CandidateID) (candidaterepo.Candidate, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return candidaterepo.Candidate{}, candidaterepo.ErrNotFound
	}
	return c, nil
}

func (r *Repo) List(ctx context.Context) ([]candidaterepo.Candidate, error) {
	_ = ctx
	r.mu.RLock()
	out := make([]candidaterepo.Candidate, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		pi, pj := strings.ToLower(out[i].Position), strings.ToLower(out[j].Position)
		if pi != pj {
			return pi < pj
		}
		ni, nj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if ni != nj {
			return ni < nj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Repo) Count(ctx context.Context) (int, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

func (r *Repo) IncrementVotes(ctx context.Context, id domain.CandidateID, amount int64) (int64, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return 0, candidaterepo.ErrNotFound
	}
	c.Votes += amount
	r.byID[id] = c
	return c.Votes, nil
}
