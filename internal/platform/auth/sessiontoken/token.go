// Package sessiontoken issues and verifies signed session tokens (HS256 JWTs).
package sessiontoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dma-portal/association-api/internal/platform/config"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Claims is the verified content of a session token.
//
// Role is informational only; callers recompute it from the member record on every request.
type Claims struct {
	Subject   string
	Role      string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Manager struct {
	cfg   config.SessionConfig
	clock Clock
}

func New(cfg config.SessionConfig) *Manager {
	return NewWithOptions(cfg, nil)
}

func NewWithOptions(cfg config.SessionConfig, clock Clock) *Manager {
	if clock == nil {
		clock = realClock{}
	}
	return &Manager{cfg: cfg, clock: clock}
}

// Issue signs a new session token for subject and returns it with its claims.
func (m *Manager) Issue(subject, role string) (string, Claims, error) {
	if subject == "" {
		return "", Claims{}, fmt.Errorf("issue session token: empty subject")
	}
	if len(m.cfg.Secret) == 0 {
		return "", Claims{}, fmt.Errorf("issue session token: empty secret")
	}

	now := m.clock.Now().UTC().Truncate(time.Second)
	c := Claims{
		Subject:   subject,
		Role:      role,
		SessionID: uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   subject,
			ID:        c.SessionID,
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
	})
	signed, err := tok.SignedString(m.cfg.Secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, c, nil
}

// Verify checks signature, algorithm, issuer, and expiry (with the configured skew).
// Any failure is reported as ErrUnauthorized.
func (m *Manager) Verify(token string) (Claims, error) {
	var tc tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &tc, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(m.cfg.ClockSkew),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrUnauthorized
	}
	if tc.Subject == "" || tc.ID == "" {
		return Claims{}, ErrUnauthorized
	}

	c := Claims{
		Subject:   tc.Subject,
		Role:      tc.Role,
		SessionID: tc.ID,
	}
	if tc.IssuedAt != nil {
		c.IssuedAt = tc.IssuedAt.Time.UTC()
	}
	if tc.ExpiresAt != nil {
		c.ExpiresAt = tc.ExpiresAt.Time.UTC()
	}
	return c, nil
}
