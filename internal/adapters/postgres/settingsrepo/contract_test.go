package settingsrepo

import (
	"testing"

	"github.com/dma-portal/association-api/internal/adapters/contracttest"
	"github.com/dma-portal/association-api/internal/adapters/postgres/testutil"
	settingsrepoport "github.com/dma-portal/association-api/internal/ports/out/settingsrepo"
)

func TestContract_PostgresSettingsRepo(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)

	contracttest.RunSettingsRepo(t, func(t *testing.T) (settingsrepoport.Repository, func()) {
		t.Helper()
		return NewRepo(pool), nil
	})
}
