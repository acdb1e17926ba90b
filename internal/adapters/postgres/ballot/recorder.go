package ballot

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pgcandidates "github.com/dma-portal/association-api/internal/adapters/postgres/candidaterepo"
	pgmembers "github.com/dma-portal/association-api/internal/adapters/postgres/memberrepo"
	"github.com/dma-portal/association-api/internal/domain"
)

// Recorder records a vote inside one transaction: the conditional has-voted write and the
// in-place counter increment commit together or roll back together.
type Recorder struct {
	pool *pgxpool.Pool
}

func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

func (r *Recorder) RecordVote(ctx context.Context, memberID domain.MemberID, candidateID domain.CandidateID, at time.Time) (int64, error) {
	if r.pool == nil {
		return 0, errors.New("nil postgres pool")
	}
	var votes int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := pgmembers.MarkVoted(ctx, tx, memberID, at); err != nil {
			return err
		}
		v, err := pgcandidates.IncrementVotes(ctx, tx, candidateID, 1)
		if err != nil {
			return err
		}
		votes = v
		return nil
	})
	if err != nil {
		return 0, err
	}
	return votes, nil
}
