package ballot

import (
	"testing"

	"github.com/dma-portal/association-api/internal/adapters/contracttest"
	pgcandidates "github.com/dma-portal/association-api/internal/adapters/postgres/candidaterepo"
	pgmembers "github.com/dma-portal/association-api/internal/adapters/postgres/memberrepo"
	"github.com/dma-portal/association-api/internal/adapters/postgres/testutil"
	ballotport "github.com/dma-portal/association-api/internal/ports/out/ballot"
	candidaterepoport "github.com/dma-portal/association-api/internal/ports/out/candidaterepo"
	memberrepoport "github.com/dma-portal/association-api/internal/ports/out/memberrepo"
)

func TestContract_PostgresBallotRecorder(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)

	contracttest.RunBallotRecorder(t, func(t *testing.T) (ballotport.Recorder, memberrepoport.Repository, candidaterepoport.Repository, func()) {
		t.Helper()
		return NewRecorder(pool), pgmembers.NewRepo(pool), pgcandidates.NewRepo(pool), nil
	})
}
