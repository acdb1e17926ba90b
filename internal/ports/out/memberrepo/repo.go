package memberrepo

import (
	"context"
	"time"

	"github.com/dma-portal/association-api/internal/domain"
)

// Member is the persistence shape used by the member repository.
// It is an internal record, not an HTTP DTO; PasswordHash never leaves the app layer.
type Member struct {
	ID          domain.MemberID
	Name        string
	Affiliation string
	// Email is unique case-insensitively across all members.
	Email        string
	PasswordHash string

	Status   domain.MemberStatus
	HasVoted bool

	MembershipDate time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	// PasswordChangedAt is set by SetPasswordHash(es); zero when the password is the original one.
	// Sessions issued before it are no longer honoured.
	PasswordChangedAt time.Time
}

// Filter narrows List. Zero value lists everyone.
type Filter struct {
	// Status restricts to one status; empty means all.
	Status domain.MemberStatus
	// Query is a case-insensitive substring match on name or email; empty means no search.
	Query string
}

// Repository provides access to persisted members.
//
// Result ordering expectations:
// - List returns results ordered by Name ascending, then ID, to keep behavior deterministic.
//
// Concurrency expectations:
// - MarkVoted is a single atomic check-and-set; two concurrent calls for one member never both succeed.
// - InsertBatch, ReplaceAll and SetPasswordHashes are all-or-nothing.
type Repository interface {
	Create(ctx context.Context, m Member) error
	// Update writes the profile fields (name, affiliation, email, status, membership date).
	// It never touches PasswordHash or HasVoted, which have dedicated writes.
	Update(ctx context.Context, m Member) error

	GetByID(ctx context.Context, id domain.MemberID) (Member, error)
	// FindByLogin returns members whose email or id equals identifier case-insensitively.
	FindByLogin(ctx context.Context, identifier string) ([]Member, error)
	// ExistingEmails returns the subset of the given case-folded emails that are already in use.
	ExistingEmails(ctx context.Context, folded []string) (map[string]bool, error)

	List(ctx context.Context, f Filter) ([]Member, error)
	Count(ctx context.Context) (int, error)
	CountVoted(ctx context.Context) (int, error)

	Delete(ctx context.Context, id domain.MemberID) error
	DeleteAll(ctx context.Context) (int, error)

	InsertBatch(ctx context.Context, ms []Member) error
	// ReplaceAll deletes every member and inserts ms as one unit.
	ReplaceAll(ctx context.Context, ms []Member) error

	SetPasswordHash(ctx context.Context, id domain.MemberID, hash string, at time.Time) error
	// SetPasswordHashes updates every listed member that still exists and returns the ids it updated.
	SetPasswordHashes(ctx context.Context, hashes map[domain.MemberID]string, at time.Time) ([]domain.MemberID, error)

	// MarkVoted sets HasVoted only if it is currently false; ErrAlreadyVoted otherwise.
	MarkVoted(ctx context.Context, id domain.MemberID, at time.Time) error
	// ClearVoted undoes MarkVoted for one member (vote compensation).
	ClearVoted(ctx context.Context, id domain.MemberID, at time.Time) error
	// ResetVotes clears HasVoted for every member and returns how many changed.
	ResetVotes(ctx context.Context, at time.Time) (int, error)
}
