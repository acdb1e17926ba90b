package settingsrepo

import (
	"context"
	"errors"

	"github.com/dma-portal/association-api/internal/domain"
)

// ErrNotFound indicates the settings singleton has never been saved.
var ErrNotFound = errors.New("site settings not found")

// Repository stores the site settings singleton.
type Repository interface {
	Get(ctx context.Context) (domain.SiteSettings, error)
	Save(ctx context.Context, s domain.SiteSettings) error
}
