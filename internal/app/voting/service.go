// Package voting coordinates the at-most-once ballot: one guarded has-voted write plus one
// atomic tally increment per member.
package voting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dma-portal/association-api/internal/app/apperr"
	"github.com/dma-portal/association-api/internal/domain"
	"github.com/dma-portal/association-api/internal/platform/logging"
	"github.com/dma-portal/association-api/internal/ports/out/ballot"
	"github.com/dma-portal/association-api/internal/ports/out/candidaterepo"
	clockport "github.com/dma-portal/association-api/internal/ports/out/clock"
	"github.com/dma-portal/association-api/internal/ports/out/memberrepo"
	"github.com/dma-portal/association-api/internal/ports/out/tallyfeed"
)

type Options struct {
	// Recorder, when set, records flag and increment in one transaction and replaces compensation.
	Recorder ballot.Recorder
	// Publisher receives the new tally after every successful vote.
	Publisher tallyfeed.Publisher
}

type Service struct {
	members    memberrepo.Repository
	candidates candidaterepo.Repository
	clk        clockport.Clock
	log        *zap.Logger

	recorder  ballot.Recorder
	publisher tallyfeed.Publisher
}

func NewService(members memberrepo.Repository, candidates candidaterepo.Repository, clk clockport.Clock, log *zap.Logger, opts Options) *Service {
	return &Service{
		members:    members,
		candidates: candidates,
		clk:        clk,
		log:        logging.OrNop(log),
		recorder:   opts.Recorder,
		publisher:  opts.Publisher,
	}
}

// CastVote records one vote for the calling member. A second call for the same member fails
// with ALREADY_VOTED and changes nothing.
func (s *Service) CastVote(ctx context.Context, id domain.Identity, candidateID domain.CandidateID) (domain.Tally, error) {
	if err := apperr.RequireMember(id); err != nil {
		return domain.Tally{}, err
	}
	if candidateID == "" {
		return domain.Tally{}, apperr.Validation("candidateId", "must be non-empty")
	}

	now := s.clk.Now()
	var (
		votes int64
		err   error
	)
	if s.recorder != nil {
		votes, err = s.recorder.RecordVote(ctx, id.MemberID, candidateID, now)
		if err != nil {
			return domain.Tally{}, s.mapError(err, candidateID)
		}
	} else {
		votes, err = s.castWithCompensation(ctx, id.MemberID, candidateID, now)
		if err != nil {
			return domain.Tally{}, err
		}
	}

	t := domain.Tally{CandidateID: candidateID, Votes: votes, At: now}
	s.log.Info("vote recorded", zap.String("candidateId", string(candidateID)), zap.Int64("votes", votes))
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, t); err != nil {
			s.log.Warn("tally publish failed", zap.String("candidateId", string(candidateID)), zap.Error(err))
		}
	}
	return t, nil
}

func (s *Service) castWithCompensation(ctx context.Context, memberID domain.MemberID, candidateID domain.CandidateID, at time.Time) (int64, error) {
	if err := s.members.MarkVoted(ctx, memberID, at); err != nil {
		return 0, s.mapError(err, candidateID)
	}

	votes, err := s.candidates.IncrementVotes(ctx, candidateID, 1)
	if err == nil {
		return votes, nil
	}

	// The flag is set but no vote was counted; give the member their vote back. This runs even
	// when ctx is already done.
	cctx := context.WithoutCancel(ctx)
	if cerr := s.members.ClearVoted(cctx, memberID, s.clk.Now()); cerr != nil {
		s.log.Error("vote compensation failed",
			zap.String("memberId", string(memberID)),
			zap.NamedError("cause", err),
			zap.Error(cerr),
		)
		err = errors.Join(err, fmt.Errorf("clear voted flag: %w", cerr))
	}
	return 0, voteFailed(err, candidateID)
}

// Results is the public election read model.
func (s *Service) Results(ctx context.Context) (domain.ElectionResults, error) {
	cs, err := s.candidates.List(ctx)
	if err != nil {
		return domain.ElectionResults{}, err
	}
	voted, err := s.members.CountVoted(ctx)
	if err != nil {
		return domain.ElectionResults{}, err
	}
	res := domain.ElectionResults{
		Candidates:   make([]domain.Candidate, 0, len(cs)),
		MembersVoted: voted,
	}
	for _, c := range cs {
		res.TotalVotes += c.Votes
		res.Candidates = append(res.Candidates, domain.Candidate{
			ID:        c.ID,
			Name:      c.Name,
			Position:  c.Position,
			PhotoURL:  c.PhotoURL,
			Votes:     c.Votes,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		})
	}
	return res, nil
}

func (s *Service) mapError(err error, candidateID domain.CandidateID) error {
	switch {
	case errors.Is(err, memberrepo.ErrAlreadyVoted):
		return &apperr.Error{
			Status:  http.StatusConflict,
			Code:    apperr.CodeAlreadyVoted,
			Message: "You have already voted.",
		}
	case errors.Is(err, memberrepo.ErrNotFound):
		return apperr.MemberNotFound()
	default:
		return voteFailed(err, candidateID)
	}
}

func voteFailed(cause error, candidateID domain.CandidateID) error {
	return &apperr.Error{
		Status:  http.StatusServiceUnavailable,
		Code:    apperr.CodeVoteFailed,
		Message: "Your vote could not be recorded. Please try again.",
		Details: map[string]any{"candidateId": string(candidateID)},
		Cause:   cause,
	}
}
