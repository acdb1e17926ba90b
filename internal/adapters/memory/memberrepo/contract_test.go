package memberrepo

import (
	"testing"

	"github.com/dma-portal/association-api/internal/adapters/contracttest"
	memberrepoport "github.com/dma-portal/association-api/internal/ports/out/memberrepo"
)

func TestContract_MemberRepo(t *testing.T) {
	contracttest.RunMemberRepo(t, func(t *testing.T) (memberrepoport.Repository, func()) {
		t.Helper()
		return NewRepo(), nil
	})
}
