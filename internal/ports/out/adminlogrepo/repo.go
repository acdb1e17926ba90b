package adminlogrepo

import (
	"context"
	"time"

	"github.com/dma-portal/association-api/internal/domain"
)

// Entry is the persistence shape of one audit record.
type Entry struct {
	ID        domain.AdminLogID
	Timestamp time.Time
	Admin     string
	Action    string
}

// Repository is an append-only audit log.
type Repository interface {
	Append(ctx context.Context, e Entry) error
	// ListRecent returns up to limit entries, newest first (ties broken by ID descending).
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}
