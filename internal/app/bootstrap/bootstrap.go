// Package bootstrap prepares a fresh store: default settings, the reserved admin account and,
// optionally, demo members and candidates.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/platform/logging"
	"github.com/dma-portal/association-api/internal/ports/out/candidaterepo"
	clockport "github.com/dma-portal/association-api/internal/ports/out/clock"
	"github.com/dma-portal/association-api/internal/ports/out/memberrepo"
)

type SettingsInitializer interface {
	EnsureDefaults(ctx context.Context) (bool, error)
}

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

type PasswordGenerator interface {
	NewPassword() string
}

type SeedMember struct {
	ID             domain.MemberID
	Name           string
	Affiliation    string
	Email          string
	Password       string
	Status         domain.MemberStatus
	HasVoted       bool
	MembershipDate time.Time
}

type SeedCandidate struct {
	Name     string
	Position string
	PhotoURL string
	Votes    int64
}

type Options struct {
	// AdminPassword is used when the reserved admin has to be created. Empty means generate one.
	AdminPassword string
	// Demo seeds DemoMembers and DemoCandidates into an empty store.
	Demo bool
}

type Report struct {
	SettingsCreated bool
	AdminCreated    bool
	// AdminPassword is set only when it was generated here.
	AdminPassword    string
	MembersSeeded    int
	CandidatesSeeded int
}

const (
	adminName        = "Admin User"
	adminAffiliation = "System"
)

func DemoMembers() []SeedMember {
	return []SeedMember{
		{ID: "mem1", Name: "Alice Johnson", Affiliation: "Gryffindor", Email: "alice@example.com", Password: "password123", Status: domain.MemberStatusActive, MembershipDate: date(2023, 1, 15)},
		{ID: "mem2", Name: "Bob Williams", Affiliation: "Hufflepuff", Email: "bob@example.com", Password: "password123", Status: domain.MemberStatusActive, HasVoted: true, MembershipDate: date(2023, 3, 22)},
		{ID: "mem3", Name: "Charlie Brown", Affiliation: "Ravenclaw", Email: "charlie@example.com", Password: "password123", Status: domain.MemberStatusPending, MembershipDate: date(2023, 5, 10)},
	}
}

func DemoCandidates() []SeedCandidate {
	return []SeedCandidate{
		{Name: "Diana Prince", Position: "President", PhotoURL: "https://i.pravatar.cc/150?u=diana", Votes: 120},
		{Name: "Bruce Wayne", Position: "President", PhotoURL: "https://i.pravatar.cc/150?u=bruce", Votes: 95},
		{Name: "Clark Kent", Position: "Vice President", PhotoURL: "https://i.pravatar.cc/150?u=clark", Votes: 150},
	}
}

type Runner struct {
	members    memberrepo.Repository
	candidates candidaterepo.Repository
	settings   SettingsInitializer
	hasher     PasswordHasher
	gen        PasswordGenerator
	clk        clockport.Clock
	log        *zap.Logger
}

func NewRunner(
	members memberrepo.Repository,
	candidates candidaterepo.Repository,
	settings SettingsInitializer,
	hasher PasswordHasher,
	gen PasswordGenerator,
	clk clockport.Clock,
	log *zap.Logger,
) *Runner {
	return &Runner{
		members:    members,
		candidates: candidates,
		settings:   settings,
		hasher:     hasher,
		gen:        gen,
		clk:        clk,
		log:        logging.OrNop(log),
	}
}

// Run is safe to call on every start. An existing admin keeps its password.
func (r *Runner) Run(ctx context.Context, opts Options) (Report, error) {
	var rep Report

	created, err := r.settings.EnsureDefaults(ctx)
	if err != nil {
		return rep, fmt.Errorf("ensure default settings: %w", err)
	}
	rep.SettingsCreated = created

	count, err := r.members.Count(ctx)
	if err != nil {
		return rep, fmt.Errorf("count members: %w", err)
	}
	empty := count == 0

	if err := r.ensureAdmin(ctx, opts, &rep); err != nil {
		return rep, err
	}

	if opts.Demo && empty {
		n, err := r.seedMembers(ctx, DemoMembers())
		if err != nil {
			return rep, err
		}
		rep.MembersSeeded = n
		r.log.Warn("demo members seeded with a shared demo password", zap.Int("members", n))
	}
	if opts.Demo {
		n, err := r.seedCandidates(ctx, DemoCandidates())
		if err != nil {
			return rep, err
		}
		rep.CandidatesSeeded = n
	}

	r.log.Info("bootstrap complete",
		zap.Bool("settingsCreated", rep.SettingsCreated),
		zap.Bool("adminCreated", rep.AdminCreated),
		zap.Int("membersSeeded", rep.MembersSeeded),
		zap.Int("candidatesSeeded", rep.CandidatesSeeded),
	)
	return rep, nil
}

func (r *Runner) ensureAdmin(ctx context.Context, opts Options, rep *Report) error {
	_, err := r.members.GetByID(ctx, domain.ReservedAdminID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, memberrepo.ErrNotFound) {
		return fmt.Errorf("load admin: %w", err)
	}

	password := opts.AdminPassword
	generated := password == ""
	if generated {
		password = r.gen.NewPassword()
	}
	hash, err := r.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	now := r.clk.Now()
	err = r.members.Create(ctx, memberrepo.Member{
		ID:             domain.ReservedAdminID,
		Name:           adminName,
		Affiliation:    adminAffiliation,
		Email:          domain.DefaultSiteSettings().ContactEmail,
		PasswordHash:   hash,
		Status:         domain.MemberStatusActive,
		MembershipDate: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	switch {
	case err == nil:
	case errors.Is(err, memberrepo.ErrAlreadyExists):
		// Another instance won the race.
		return nil
	case errors.Is(err, memberrepo.ErrEmailTaken):
		// Someone already owns the contact address; the reserved id still works without it.
		err = r.members.Create(ctx, memberrepo.Member{
			ID:             domain.ReservedAdminID,
			Name:           adminName,
			Affiliation:    adminAffiliation,
			Email:          "admin@localhost",
			PasswordHash:   hash,
			Status:         domain.MemberStatusActive,
			MembershipDate: now,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil && !errors.Is(err, memberrepo.ErrAlreadyExists) {
			return fmt.Errorf("create admin: %w", err)
		}
	default:
		return fmt.Errorf("create admin: %w", err)
	}

	rep.AdminCreated = true
	if generated {
		rep.AdminPassword = password
		r.log.Warn("created admin account with a generated password; change it after first login",
			zap.String("memberId", string(domain.ReservedAdminID)),
			zap.String("password", password),
		)
	} else {
		r.log.Info("created admin account", zap.String("memberId", string(domain.ReservedAdminID)))
	}
	return nil
}

func (r *Runner) seedMembers(ctx context.Context, seeds []SeedMember) (int, error) {
	now := r.clk.Now()
	recs := make([]memberrepo.Member, 0, len(seeds))
	for _, s := range seeds {
		hash, err := r.hasher.Hash(s.Password)
		if err != nil {
			return 0, fmt.Errorf("hash seed password: %w", err)
		}
		recs = append(recs, memberrepo.Member{
			ID:             s.ID,
			Name:           s.Name,
			Affiliation:    s.Affiliation,
			Email:          s.Email,
			PasswordHash:   hash,
			Status:         s.Status,
			MembershipDate: s.MembershipDate,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	if err := r.members.InsertBatch(ctx, recs); err != nil {
		return 0, fmt.Errorf("seed members: %w", err)
	}
	for _, s := range seeds {
		if !s.HasVoted {
			continue
		}
		if err := r.members.MarkVoted(ctx, s.ID, now); err != nil {
			return 0, fmt.Errorf("seed voted flag: %w", err)
		}
	}
	return len(recs), nil
}

// seedCandidates only writes into an empty ballot.
func (r *Runner) seedCandidates(ctx context.Context, seeds []SeedCandidate) (int, error) {
	n, err := r.candidates.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count candidates: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	now := r.clk.Now()
	for _, s := range seeds {
		if err := r.candidates.Create(ctx, candidaterepo.Candidate{
			ID:        domain.CandidateID(uuid.NewString()),
			Name:      s.Name,
			Position:  s.Position,
			PhotoURL:  s.PhotoURL,
			Votes:     s.Votes,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return 0, fmt.Errorf("seed candidate %q: %w", s.Name, err)
		}
	}
	return len(seeds), nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
