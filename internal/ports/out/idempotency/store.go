package idempotency

import (
	"context"
	"time"

	"github.com/dma-portal/association-api/internal/domain"
)

// Key is the caller-provided idempotency key (Idempotency-Key header).
type Key string

// Fingerprint identifies a request uniquely for idempotency purposes:
// key + acting member + route + request body hash.
// Route is HTTP method + path template (e.g. "POST /admin/members/import").
type Fingerprint struct {
	Key      Key
	Actor    domain.MemberID
	Method   string
	Route    string
	BodyHash string
}

// Record is the stored response we can replay for a duplicate request.
type Record struct {
	StatusCode  int
	ContentType string
	Body        []byte
	CreatedAt   time.Time
}

// DefaultRetention is how long a stored response stays replayable.
const DefaultRetention = 24 * time.Hour

// Store persists idempotency records for replaying responses on retries.
//
// A record older than the store's retention is reported as absent, so a key may be reused
// once its window has passed.
type Store interface {
	Get(ctx context.Context, fp Fingerprint) (Record, bool, error)
	Put(ctx context.Context, fp Fingerprint, rec Record) error
}
