// Package candidates manages the election ballot. Vote counts are owned by the voting service.
package candidates

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dma-portal/association-api/internal/app/apperr"
	"github.com/dma-portal/association-api/internal/app/optional"
	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/platform/logging"
	"github.com/dma-portal/association-api/internal/ports/out/candidaterepo"
	clockport "github.com/dma-portal/association-api/internal/ports/out/clock"
)

// AuditRecorder appends an admin log entry.
type AuditRecorder interface {
	Record(ctx context.Context, id domain.Identity, action string) error
}

type AddInput struct {
	Name     string
	Position string
	PhotoURL string
	// Votes seeds the counter; it must not be negative.
	Votes int64
}

type Patch struct {
	Name     optional.Value[string]
	Position optional.Value[string]
	// PhotoURL may be null, which clears it.
	PhotoURL optional.Value[string]
}

type Service struct {
	repo  candidaterepo.Repository
	clk   clockport.Clock
	audit AuditRecorder
	log   *zap.Logger

	newID func() domain.CandidateID
}

func NewService(repo candidaterepo.Repository, clk clockport.Clock, audit AuditRecorder, log *zap.Logger) *Service {
	return &Service{
		repo:  repo,
		clk:   clk,
		audit: audit,
		log:   logging.OrNop(log),
		newID: func() domain.CandidateID {
			return domain.CandidateID(uuid.NewString())
		},
	}
}

func (s *Service) List(ctx context.Context) ([]domain.Candidate, error) {
	cs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Candidate, 0, len(cs))
	for _, c := range cs {
		out = append(out, toDomain(c))
	}
	return out, nil
}

func (s *Service) Add(ctx context.Context, id domain.Identity, in AddInput) (domain.Candidate, error) {
	if err := apperr.RequireAdmin(id); err != nil {
		return domain.Candidate{}, err
	}
	name := domain.NormalizeHumanName(in.Name)
	if name == "" {
		return domain.Candidate{}, apperr.Validation("name", "must be non-empty")
	}
	position := domain.NormalizeHumanName(in.Position)
	if position == "" {
		return domain.Candidate{}, apperr.Validation("position", "must be non-empty")
	}
	photo, err := validatePhotoURL(in.PhotoURL)
	if err != nil {
		return domain.Candidate{}, err
	}
	if in.Votes < 0 {
		return domain.Candidate{}, apperr.Validation("votes", "must be zero or greater")
	}

	now := s.clk.Now()
	c := candidaterepo.Candidate{
		ID:        s.newID(),
		Name:      name,
		Position:  position,
		PhotoURL:  photo,
		Votes:     in.Votes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return domain.Candidate{}, err
	}
	s.record(ctx, id, "Added candidate: "+c.Name)
	return toDomain(c), nil
}

// Update changes the profile fields. Votes cannot be edited.
func (s *Service) Update(ctx context.Context, id domain.Identity, candidateID domain.CandidateID, p Patch) (domain.Candidate, error) {
	if err := apperr.RequireAdmin(id); err != nil {
		return domain.Candidate{}, err
	}
	c, err := s.repo.GetByID(ctx, candidateID)
	if err != nil {
		if errors.Is(err, candidaterepo.ErrNotFound) {
			return domain.Candidate{}, apperr.CandidateNotFound()
		}
		return domain.Candidate{}, err
	}

	if p.Name.IsSpecified() {
		name := domain.NormalizeHumanName(p.Name.Value())
		if p.Name.IsNull() || name == "" {
			return domain.Candidate{}, apperr.Validation("name", "must be non-empty")
		}
		c.Name = name
	}
	if p.Position.IsSpecified() {
		position := domain.NormalizeHumanName(p.Position.Value())
		if p.Position.IsNull() || position == "" {
			return domain.Candidate{}, apperr.Validation("position", "must be non-empty")
		}
		c.Position = position
	}
	if p.PhotoURL.IsSpecified() {
		if p.PhotoURL.IsNull() {
			c.PhotoURL = ""
		} else {
			photo, err := validatePhotoURL(p.PhotoURL.Value())
			if err != nil {
				return domain.Candidate{}, err
			}
			c.PhotoURL = photo
		}
	}

	c.UpdatedAt = s.clk.Now()
	if err := s.repo.Update(ctx, c); err != nil {
		if errors.Is(err, candidaterepo.ErrNotFound) {
			return domain.Candidate{}, apperr.CandidateNotFound()
		}
		return domain.Candidate{}, err
	}
	// Update never writes Votes; reload so the response carries the live count.
	fresh, err := s.repo.GetByID(ctx, candidateID)
	if err == nil {
		c = fresh
	}
	s.record(ctx, id, "Updated candidate: "+c.Name)
	return toDomain(c), nil
}

func (s *Service) Delete(ctx context.Context, id domain.Identity, candidateID domain.CandidateID) error {
	if err := apperr.RequireAdmin(id); err != nil {
		return err
	}
	c, err := s.repo.GetByID(ctx, candidateID)
	if err != nil {
		if errors.Is(err, candidaterepo.ErrNotFound) {
			return apperr.CandidateNotFound()
		}
		return err
	}
	if err := s.repo.Delete(ctx, candidateID); err != nil {
		if errors.Is(err, candidaterepo.ErrNotFound) {
			return apperr.CandidateNotFound()
		}
		return err
	}
	s.record(ctx, id, "Deleted candidate: "+c.Name)
	return nil
}

func (s *Service) record(ctx context.Context, id domain.Identity, action string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, id, action); err != nil {
		s.log.Warn("audit record failed", zap.String("action", action), zap.Error(err))
	}
}

func validatePhotoURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apperr.Validation("photoUrl", "must be an absolute http(s) URL")
	}
	return raw, nil
}

func toDomain(c candidaterepo.Candidate) domain.Candidate {
	return domain.Candidate{
		ID:        c.ID,
		Name:      c.Name,
		Position:  c.Position,
		PhotoURL:  c.PhotoURL,
		Votes:     c.Votes,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
