package ballot

import (
	"context"
	"time"

	"github.com/dma-portal/association-api/internal/domain"
)

// Recorder records a vote as one atomic unit: the member's has-voted flag is set and the
// candidate's counter incremented together, or neither changes.
//
// Errors use the member and candidate repository sentinels (memberrepo.ErrAlreadyVoted,
// memberrepo.ErrNotFound, candidaterepo.ErrNotFound).
type Recorder interface {
	RecordVote(ctx context.Context, memberID domain.MemberID, candidateID domain.CandidateID, at time.Time) (int64, error)
}
