package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dma-portal/association-api/internal/ports/out/idempotency"
)

// Store is a Postgres implementation of idempotency.Store.
// Rows past the retention window are invisible to Get and deleted by the next Put.
type Store struct {
	pool      *pgxpool.Pool
	retention time.Duration
	now       func() time.Time
}

func NewStore(pool *pgxpool.Pool) *Store {
	return NewStoreWithRetention(pool, idempotency.DefaultRetention)
}

// NewStoreWithRetention keeps rows for retention; zero keeps them forever.
func NewStoreWithRetention(pool *pgxpool.Pool, retention time.Duration) *Store {
	return &Store{pool: pool, retention: retention, now: time.Now}
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	if s.pool == nil {
		return idempotency.Record{}, false, errors.New("nil postgres pool")
	}
	row := s.pool.QueryRow(ctx, `
		SELECT status_code, content_type, body, created_at
		FROM idempotency_keys
		WHERE idempotency_key = $1
		  AND actor_id = $2
		  AND method = $3
		  AND route = $4
		  AND body_hash = $5
		  AND created_at >= $6
	`,
		string(fp.Key),
		string(fp.Actor),
		fp.Method,
		fp.Route,
		fp.BodyHash,
		s.cutoff(),
	)
	var rec idempotency.Record
	if err := row.Scan(&rec.StatusCode, &rec.ContentType, &rec.Body, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return idempotency.Record{}, false, nil
		}
		return idempotency.Record{}, false, fmt.Errorf("get idempotency record: %w", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, true, nil
}

func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}
	body := rec.Body
	if body == nil {
		body = []byte{}
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if s.retention > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.cutoff()); err != nil {
				return fmt.Errorf("sweep idempotency records: %w", err)
			}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO idempotency_keys (
				idempotency_key,
				actor_id,
				method,
				route,
				body_hash,
				status_code,
				content_type,
				body,
				created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (idempotency_key, actor_id, method, route, body_hash)
			DO UPDATE SET
				status_code = EXCLUDED.status_code,
				content_type = EXCLUDED.content_type,
				body = EXCLUDED.body,
				created_at = EXCLUDED.created_at
		`,
			string(fp.Key),
			string(fp.Actor),
			fp.Method,
			fp.Route,
			fp.BodyHash,
			rec.StatusCode,
			rec.ContentType,
			body,
			createdAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("put idempotency record: %w", err)
		}
		return nil
	})
}

func (s *Store) cutoff() time.Time {
	if s.retention <= 0 {
		return time.Unix(0, 0).UTC()
	}
	return s.now().UTC().Add(-s.retention)
}
