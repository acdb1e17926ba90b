package settingsrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/ports/out/settingsrepo"
)

// Repo stores the settings singleton in the one-row site_settings table.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Get(ctx context.Context) (domain.SiteSettings, error) {
	if r.pool == nil {
		return domain.SiteSettings{}, errors.New("nil postgres pool")
	}
	var (
		s         domain.SiteSettings
		fee       decimal.Decimal
		updatedAt time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT site_name, contact_email, contact_phone, contact_address, membership_fee, maintenance_mode, updated_at
		FROM site_settings
		WHERE id = 1
	`).Scan(&s.SiteName, &s.ContactEmail, &s.ContactPhone, &s.ContactAddress, &fee, &s.MaintenanceMode, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SiteSettings{}, settingsrepo.ErrNotFound
		}
		return domain.SiteSettings{}, err
	}
	s.MembershipFee = fee
	s.UpdatedAt = updatedAt.UTC()
	return s, nil
}

func (r *Repo) Save(ctx context.Context, s domain.SiteSettings) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO site_settings (id, site_name, contact_email, contact_phone, contact_address, membership_fee, maintenance_mode, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			site_name = EXCLUDED.site_name,
			contact_email = EXCLUDED.contact_email,
			contact_phone = EXCLUDED.contact_phone,
			contact_address = EXCLUDED.contact_address,
			membership_fee = EXCLUDED.membership_fee,
			maintenance_mode = EXCLUDED.maintenance_mode,
			updated_at = EXCLUDED.updated_at
	`, s.SiteName, s.ContactEmail, s.ContactPhone, s.ContactAddress, s.MembershipFee, s.MaintenanceMode, s.UpdatedAt.UTC())
	return err
}
