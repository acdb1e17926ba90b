// Package sessions turns credentials into signed session tokens and tokens back into identities.
// The role is never trusted from the token; it is derived from the member record on every request.
package sessions

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dma-portal/association-api/internal/app/apperr"
	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/platform/auth/sessiontoken"
	"github.com/dma-portal/association-api/internal/platform/logging"
	clockport "github.com/dma-portal/association-api/internal/ports/out/clock"
	"github.com/dma-portal/association-api/internal/ports/out/memberrepo"
	"github.com/dma-portal/association-api/internal/ports/out/revocation"
)

const minPasswordLength = 8

type TokenManager interface {
	Issue(subject, role string) (string, sessiontoken.Claims, error)
	Verify(token string) (sessiontoken.Claims, error)
}

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) error
}

// ContactEmailSource yields the site contact email, which marks the admin account.
type ContactEmailSource interface {
	ContactEmail(ctx context.Context) (string, error)
}

// AuditRecorder appends an admin log entry.
type AuditRecorder interface {
	Record(ctx context.Context, id domain.Identity, action string) error
}

type Session struct {
	Token    string
	Identity domain.Identity
	Member   domain.Member
}

type Service struct {
	members  memberrepo.Repository
	revoked  revocation.Store
	tokens   TokenManager
	hasher   PasswordHasher
	settings ContactEmailSource
	audit    AuditRecorder
	clk      clockport.Clock
	log      *zap.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewService(
	members memberrepo.Repository,
	revoked revocation.Store,
	tokens TokenManager,
	hasher PasswordHasher,
	settings ContactEmailSource,
	audit AuditRecorder,
	clk clockport.Clock,
	log *zap.Logger,
) *Service {
	return &Service{
		members:  members,
		revoked:  revoked,
		tokens:   tokens,
		hasher:   hasher,
		settings: settings,
		audit:    audit,
		clk:      clk,
		log:      logging.OrNop(log),
	}
}

// Login accepts either the member's email or member id as identifier.
func (s *Service) Login(ctx context.Context, identifier, password string) (Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return Session{}, invalidCredentials()
	}
	candidates, err := s.members.FindByLogin(ctx, identifier)
	if err != nil {
		return Session{}, err
	}
	if len(candidates) == 0 {
		// Unknown identifiers cost one hash check, like a wrong password.
		_ = s.hasher.Verify(s.dummy(), password)
		s.log.Info("login rejected", zap.Int("matches", 0))
		return Session{}, invalidCredentials()
	}

	var (
		m     memberrepo.Member
		found bool
	)
	for _, c := range candidates {
		if s.hasher.Verify(c.PasswordHash, password) == nil {
			m, found = c, true
			break
		}
	}
	if !found {
		s.log.Info("login rejected", zap.Int("matches", len(candidates)))
		return Session{}, invalidCredentials()
	}

	switch m.Status {
	case domain.MemberStatusActive:
	case domain.MemberStatusPending:
		return Session{}, &apperr.Error{
			Status:  http.StatusForbidden,
			Code:    apperr.CodePendingApproval,
			Message: "Your membership is awaiting approval.",
		}
	default:
		return Session{}, &apperr.Error{
			Status:  http.StatusForbidden,
			Code:    apperr.CodeInactiveAccount,
			Message: "This account is not active.",
		}
	}

	role, err := s.roleFor(ctx, m)
	if err != nil {
		return Session{}, err
	}
	token, claims, err := s.tokens.Issue(string(m.ID), string(role))
	if err != nil {
		return Session{}, err
	}

	s.log.Info("login succeeded", zap.String("memberId", string(m.ID)), zap.String("role", string(role)))
	return Session{
		Token:    token,
		Identity: identityFor(m, role, claims),
		Member:   toDomain(m),
	}, nil
}

// Authenticate resolves a bearer token. Revoked, expired and orphaned tokens are all 401.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return domain.Identity{}, invalidSession()
	}
	if s.revoked != nil {
		revoked, err := s.revoked.IsRevoked(ctx, domain.SessionID(claims.SessionID))
		if err != nil {
			return domain.Identity{}, err
		}
		if revoked {
			return domain.Identity{}, invalidSession()
		}
	}

	m, err := s.members.GetByID(ctx, domain.MemberID(claims.Subject))
	if err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return domain.Identity{}, invalidSession()
		}
		return domain.Identity{}, err
	}
	if m.Status != domain.MemberStatusActive {
		return domain.Identity{}, invalidSession()
	}
	if issuedBeforePasswordChange(claims.IssuedAt, m.PasswordChangedAt) {
		return domain.Identity{}, invalidSession()
	}

	role, err := s.roleFor(ctx, m)
	if err != nil {
		return domain.Identity{}, err
	}
	return identityFor(m, role, claims), nil
}

// Logout revokes the identity's session until the token would have expired.
func (s *Service) Logout(ctx context.Context, id domain.Identity) error {
	if err := apperr.RequireAuthenticated(id); err != nil {
		return err
	}
	if id.SessionID == "" || s.revoked == nil {
		return nil
	}
	until := id.ExpiresAt
	if until.IsZero() {
		until = s.clk.Now()
	}
	return s.revoked.Revoke(ctx, id.SessionID, until)
}

// ChangePassword ends every session issued before the change, the caller's included.
func (s *Service) ChangePassword(ctx context.Context, id domain.Identity, oldPassword, newPassword string) error {
	if err := apperr.RequireAuthenticated(id); err != nil {
		return err
	}
	if len(newPassword) < minPasswordLength {
		return apperr.Validation("newPassword", "must be at least 8 characters")
	}
	m, err := s.members.GetByID(ctx, id.MemberID)
	if err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return apperr.MemberNotFound()
		}
		return err
	}
	if err := s.hasher.Verify(m.PasswordHash, oldPassword); err != nil {
		return &apperr.Error{
			Status:  http.StatusForbidden,
			Code:    apperr.CodeInvalidCurrentPassword,
			Message: "Current password is incorrect.",
		}
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.members.SetPasswordHash(ctx, id.MemberID, hash, s.clk.Now()); err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return apperr.MemberNotFound()
		}
		return err
	}
	if err := s.Logout(ctx, id); err != nil {
		s.log.Warn("revoke session after password change failed", zap.Error(err))
	}
	if id.IsAdmin() && s.audit != nil {
		if err := s.audit.Record(ctx, id, "Changed admin password."); err != nil {
			s.log.Warn("audit record failed", zap.Error(err))
		}
	}
	s.log.Info("password changed", zap.String("memberId", string(id.MemberID)))
	return nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("not-a-member-password")
	})
	return s.dummyHash
}

// issuedBeforePasswordChange compares at whole seconds, the precision of token timestamps.
func issuedBeforePasswordChange(issuedAt, changedAt time.Time) bool {
	if changedAt.IsZero() {
		return false
	}
	return issuedAt.Before(changedAt.Truncate(time.Second))
}

func (s *Service) roleFor(ctx context.Context, m memberrepo.Member) (domain.Role, error) {
	contact, err := s.settings.ContactEmail(ctx)
	if err != nil {
		return "", err
	}
	return domain.DeriveRole(m.ID, m.Email, contact), nil
}

func identityFor(m memberrepo.Member, role domain.Role, c sessiontoken.Claims) domain.Identity {
	return domain.Identity{
		MemberID:    m.ID,
		DisplayName: m.Name,
		Email:       m.Email,
		Role:        role,
		SessionID:   domain.SessionID(c.SessionID),
		ExpiresAt:   c.ExpiresAt,
	}
}

func invalidCredentials() error {
	return &apperr.Error{
		Status:  http.StatusUnauthorized,
		Code:    apperr.CodeInvalidCredentials,
		Message: "Invalid member ID/email or password.",
	}
}

func invalidSession() error {
	return &apperr.Error{
		Status:  http.StatusUnauthorized,
		Code:    apperr.CodeUnauthorized,
		Message: "Session is invalid or has expired.",
	}
}

func toDomain(m memberrepo.Member) domain.Member {
	return domain.Member{
		ID:             m.ID,
		Name:           m.Name,
		Affiliation:    m.Affiliation,
		Email:          m.Email,
		Status:         m.Status,
		HasVoted:       m.HasVoted,
		MembershipDate: m.MembershipDate,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
