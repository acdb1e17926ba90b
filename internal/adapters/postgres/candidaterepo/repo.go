package candidaterepo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/dma-portal/association-api/internal/adapters/postgres"
	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/ports/out/candidaterepo"
)

// Repo is a Postgres implementation of candidaterepo.Repository.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Create(ctx context.Context, c candidaterepo.Candidate) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(c.ID))
	if err != nil {
		return candidaterepo.ErrAlreadyExists
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO candidates (id, name, position, photo_url, votes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, c.Name, c.Position, c.PhotoURL, c.Votes, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		if postgres.IsUniqueViolation(err, "candidates_pkey") {
			return candidaterepo.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *Repo) Update(ctx context.Context, c candidaterepo.Candidate) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(c.ID))
	if err != nil {
		return candidaterepo.ErrNotFound
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE candidates
		SET name = $2,
		    position = $3,
		    photo_url = $4,
		    updated_at = $5
		WHERE id = $1
	`, id, c.Name, c.Position, c.PhotoURL, c.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return candidaterepo.ErrNotFound
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id domain.CandidateID) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return candidaterepo.ErrNotFound
	}
	ct, err := r.pool.Exec(ctx, `DELETE FROM candidates WHERE id = $1`, uid)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return candidaterepo.ErrNotFound
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.CandidateID) (candidaterepo.Candidate, error) {
	if r.pool == nil {
		return candidaterepo.Candidate{}, errors.New("nil postgres pool")
	}
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return candidaterepo.Candidate{}, candidaterepo.ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, position, photo_url, votes, created_at, updated_at
		FROM candidates
		WHERE id = $1
	`, uid)
	return scanCandidate(row)
}

func (r *Repo) List(ctx context.Context) ([]candidaterepo.Candidate, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, position, photo_url, votes, created_at, updated_at
		FROM candidates
		ORDER BY lower(position) ASC, lower(name) ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]candidaterepo.Candidate, 0)
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) Count(ctx context.Context) (int, error) {
	if r.pool == nil {
		return 0, errors.New("nil postgres pool")
	}
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM candidates`).Scan(&n)
	return n, err
}

func (r *Repo) IncrementVotes(ctx context.Context, id domain.CandidateID, amount int64) (int64, error) {
	if r.pool == nil {
		return 0, errors.New("nil postgres pool")
	}
	return IncrementVotes(ctx, r.pool, id, amount)
}

// IncrementVotes adds amount in place (never read-modify-write) and returns the new count.
// It is usable inside a caller's transaction.
func IncrementVotes(ctx context.Context, q postgres.Querier, id domain.CandidateID, amount int64) (int64, error) {
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return 0, candidaterepo.ErrNotFound
	}
	var votes int64
	err = q.QueryRow(ctx, `
		UPDATE candidates
		SET votes = votes + $2
		WHERE id = $1
		RETURNING votes
	`, uid, amount).Scan(&votes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, candidaterepo.ErrNotFound
		}
		return 0, err
	}
	return votes, nil
}

func scanCandidate(row interface {
	Scan(dest ...any) error
}) (candidaterepo.Candidate, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		updatedAt time.Time
		c         candidaterepo.Candidate
	)
	if err := row.Scan(&id, &c.Name, &c.Position, &c.PhotoURL, &c.Votes, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return candidaterepo.Candidate{}, candidaterepo.ErrNotFound
		}
		return candidaterepo.Candidate{}, err
	}
	c.ID = domain.CandidateID(id.String())
	c.CreatedAt = createdAt.UTC()
	c.UpdatedAt = updatedAt.UTC()
	return c, nil
}
