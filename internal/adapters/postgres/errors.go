package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the adapters translate into port sentinels.
const (
	UniqueViolationCode     = "23505"
	ForeignKeyViolationCode = "23503"
	CheckViolationCode      = "23514"
)

// AsPgError unwraps err to a server-reported Postgres error, if it is one.
func AsPgError(err error) (*pgconn.PgError, bool) {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsUniqueViolation reports whether err is a unique violation on the named constraint
// (any constraint when name is empty).
func IsUniqueViolation(err error, name string) bool {
	pe, ok := AsPgError(err)
	if !ok || pe.Code != UniqueViolationCode {
		return false
	}
	return name == "" || pe.ConstraintName == name
}
