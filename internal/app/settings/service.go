// Package settings owns the site settings singleton. Its contact email decides who holds the admin role.
package settings

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dma-portal/association-api/internal/app/apperr"
	"github.com/dma-portal/association-api/internal/app/optional"
	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/platform/logging"
	clockport "github.com/dma-portal/association-api/internal/ports/out/clock"
	"github.com/dma-portal/association-api/internal/ports/out/settingsrepo"
)

// AuditRecorder appends an admin log entry.
type AuditRecorder interface {
	Record(ctx context.Context, id domain.Identity, action string) error
}

type Patch struct {
	SiteName        optional.Value[string]
	ContactEmail    optional.Value[string]
	ContactPhone    optional.Value[string]
	ContactAddress  optional.Value[string]
	MembershipFee   optional.Value[decimal.Decimal]
	MaintenanceMode optional.Value[bool]
}

type Service struct {
	repo  settingsrepo.Repository
	clk   clockport.Clock
	audit AuditRecorder
	log   *zap.Logger
}

func NewService(repo settingsrepo.Repository, clk clockport.Clock, audit AuditRecorder, log *zap.Logger) *Service {
	return &Service{repo: repo, clk: clk, audit: audit, log: logging.OrNop(log)}
}

// Get returns the stored settings, or the defaults when none have been saved yet.
func (s *Service) Get(ctx context.Context) (domain.SiteSettings, error) {
	st, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, settingsrepo.ErrNotFound) {
			return domain.DefaultSiteSettings(), nil
		}
		return domain.SiteSettings{}, err
	}
	return st, nil
}

// ContactEmail is the address that resolves to the admin role.
func (s *Service) ContactEmail(ctx context.Context) (string, error) {
	st, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	return st.ContactEmail, nil
}

// EnsureDefaults saves the default settings if nothing is stored. It reports whether it wrote.
func (s *Service) EnsureDefaults(ctx context.Context) (bool, error) {
	if _, err := s.repo.Get(ctx); err == nil {
		return false, nil
	} else if !errors.Is(err, settingsrepo.ErrNotFound) {
		return false, err
	}
	st := domain.DefaultSiteSettings()
	st.UpdatedAt = s.clk.Now()
	if err := s.repo.Save(ctx, st); err != nil {
		return false, err
	}
	return true, nil
}

// Update applies patch. Changing ContactEmail changes who is admin from the next request on.
func (s *Service) Update(ctx context.Context, id domain.Identity, p Patch) (domain.SiteSettings, error) {
	if err := apperr.RequireAdmin(id); err != nil {
		return domain.SiteSettings{}, err
	}
	st, err := s.Get(ctx)
	if err != nil {
		return domain.SiteSettings{}, err
	}

	if err := applyText(&st.SiteName, "siteName", p.SiteName, true); err != nil {
		return domain.SiteSettings{}, err
	}
	if err := applyText(&st.ContactPhone, "contactPhone", p.ContactPhone, false); err != nil {
		return domain.SiteSettings{}, err
	}
	if err := applyText(&st.ContactAddress, "contactAddress", p.ContactAddress, false); err != nil {
		return domain.SiteSettings{}, err
	}
	if p.ContactEmail.IsSpecified() {
		if p.ContactEmail.IsNull() {
			return domain.SiteSettings{}, apperr.Validation("contactEmail", "cannot be null")
		}
		email := strings.TrimSpace(p.ContactEmail.Value())
		if err := domain.ValidateEmail(email); err != nil {
			return domain.SiteSettings{}, apperr.Validation("contactEmail", err.Error())
		}
		st.ContactEmail = email
	}
	if p.MembershipFee.IsSpecified() {
		if p.MembershipFee.IsNull() {
			return domain.SiteSettings{}, apperr.Validation("membershipFee", "cannot be null")
		}
		fee := p.MembershipFee.Value()
		if fee.IsNegative() {
			return domain.SiteSettings{}, apperr.Validation("membershipFee", "must be zero or greater")
		}
		st.MembershipFee = fee.Round(2)
	}
	if p.MaintenanceMode.IsSpecified() {
		if p.MaintenanceMode.IsNull() {
			return domain.SiteSettings{}, apperr.Validation("maintenanceMode", "cannot be null")
		}
		st.MaintenanceMode = p.MaintenanceMode.Value()
	}

	st.UpdatedAt = s.clk.Now()
	if err := s.repo.Save(ctx, st); err != nil {
		return domain.SiteSettings{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, id, "Updated site settings"); err != nil {
			s.log.Warn("audit record failed", zap.Error(err))
		}
	}
	return st, nil
}

func applyText(dst *string, field string, v optional.Value[string], required bool) error {
	if !v.IsSpecified() {
		return nil
	}
	if v.IsNull() {
		return apperr.Validation(field, "cannot be null")
	}
	val := strings.TrimSpace(v.Value())
	if required && val == "" {
		return apperr.Validation(field, "must be non-empty")
	}
	*dst = val
	return nil
}
