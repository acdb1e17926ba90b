// Package auditlog records privileged actions and lists them back to administrators.
package auditlog

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dma-portal/association-api/internal/app/apperr"
	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/platform/logging"
	"github.com/dma-portal/association-api/internal/ports/out/adminlogrepo"
	clockport "github.com/dma-portal/association-api/internal/ports/out/clock"
)

// MaxEntries bounds ListRecent; it is also the default.
const MaxEntries = 100

type Service struct {
	repo adminlogrepo.Repository
	clk  clockport.Clock
	log  *zap.Logger

	newID func() domain.AdminLogID
}

func NewService(repo adminlogrepo.Repository, clk clockport.Clock, log *zap.Logger) *Service {
	return &Service{
		repo: repo,
		clk:  clk,
		log:  logging.OrNop(log),
		newID: func() domain.AdminLogID {
			return domain.AdminLogID(uuid.NewString())
		},
	}
}

// Record appends an entry attributed to the acting administrator.
func (s *Service) Record(ctx context.Context, id domain.Identity, action string) error {
	if err := apperr.RequireAdmin(id); err != nil {
		return err
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return apperr.Validation("action", "must be non-empty")
	}

	admin := id.DisplayName
	if admin == "" {
		admin = string(id.MemberID)
	}
	e := adminlogrepo.Entry{
		ID:        s.newID(),
		Timestamp: s.clk.Now(),
		Admin:     admin,
		Action:    action,
	}
	if err := s.repo.Append(ctx, e); err != nil {
		return err
	}
	s.log.Info("admin action recorded", zap.String("admin", admin), zap.String("action", action))
	return nil
}

// ListRecent returns up to limit entries, newest first. limit <= 0 or above MaxEntries means MaxEntries.
func (s *Service) ListRecent(ctx context.Context, id domain.Identity, limit int) ([]domain.AdminLogEntry, error) {
	if err := apperr.RequireAdmin(id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxEntries {
		limit = MaxEntries
	}
	es, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AdminLogEntry, 0, len(es))
	for _, e := range es {
		out = append(out, domain.AdminLogEntry{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Admin:     e.Admin,
			Action:    e.Action,
		})
	}
	return out, nil
}
