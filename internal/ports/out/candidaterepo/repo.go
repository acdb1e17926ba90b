package candidaterepo

import (
	"context"
	"errors"
	"time"

	"github.com/dma-portal/association-api/internal/domain"
)

var (
	// ErrNotFound indicates the requested candidate does not exist.
	ErrNotFound = errors.New("candidate not found")

	// ErrAlreadyExists indicates a candidate already exists with the provided ID.
	ErrAlreadyExists = errors.New("candidate already exists")
)

// Candidate is the persistence shape used by the candidate repository.
type Candidate struct {
	ID       domain.CandidateID
	Name     string
	Position string
	PhotoURL string
	Votes    int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository provides access to persisted candidates.
//
// Result ordering expectations:
// - List returns results ordered by Position, then Name, then ID.
//
// Votes is only ever changed by IncrementVotes, which must be an atomic in-place add.
type Repository interface {
	Create(ctx context.Context, c Candidate) error
	// Update writes name, position and photo. It never touches Votes.
	Update(ctx context.Context, c Candidate) error
	Delete(ctx context.Context, id domain.CandidateID) error

	GetByID(ctx context.Context, id domain.CandidateID) (Candidate, error)
	List(ctx context.Context) ([]Candidate, error)
	Count(ctx context.Context) (int, error)

	// IncrementVotes adds amount to the candidate's counter and returns the new value.
	IncrementVotes(ctx context.Context, id domain.CandidateID, amount int64) (int64, error)
}
