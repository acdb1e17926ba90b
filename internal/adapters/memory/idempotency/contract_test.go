package idempotency

import (
	"testing"

	"github.com/dma-portal/association-api/internal/adapters/contracttest"
	idempotencyport "github.com/dma-portal/association-api/internal/ports/out/idempotency"
)

func TestContract_IdempotencyStore(t *testing.T) {
	contracttest.RunIdempotencyStore(t, func(t *testing.T) (idempotencyport.Store, func()) {
		t.Helper()
		// nil clock: the contract stamps records with wall-clock time.
		return NewStoreWithRetention(idempotencyport.DefaultRetention, nil), nil
	})
}
