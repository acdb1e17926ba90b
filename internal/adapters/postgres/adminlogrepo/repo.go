package adminlogrepo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/ports/out/adminlogrepo"
)

// Repo is a Postgres implementation of adminlogrepo.Repository. Rows are only ever inserted.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Append(ctx context.Context, e adminlogrepo.Entry) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(e.ID))
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO admin_logs (id, logged_at, admin_name, action)
		VALUES ($1, $2, $3, $4)
	`, id, e.Timestamp.UTC(), e.Admin, e.Action)
	return err
}

func (r *Repo) ListRecent(ctx context.Context, limit int) ([]adminlogrepo.Entry, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	if limit <= 0 {
		return []adminlogrepo.Entry{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, logged_at, admin_name, action
		FROM admin_logs
		ORDER BY logged_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]adminlogrepo.Entry, 0)
	for rows.Next() {
		var (
			id uuid.UUID
			ts time.Time
			e  adminlogrepo.Entry
		)
		if err := rows.Scan(&id, &ts, &e.Admin, &e.Action); err != nil {
			return nil, err
		}
		e.ID = domain.AdminLogID(id.String())
		e.Timestamp = ts.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
