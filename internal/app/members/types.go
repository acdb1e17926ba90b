package members

import (
	"context"

	"github.com/dma-portal/association-api/internal/domain"
)

// MinPasswordLength applies to self-chosen passwords; generated ones are always this long.
const MinPasswordLength = 8

// CredentialGenerator produces member ids and plaintext passwords.
type CredentialGenerator interface {
	NewMemberID(prefix string) string
	NewPassword() string
}

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// AuditRecorder appends an admin log entry.
type AuditRecorder interface {
	Record(ctx context.Context, id domain.Identity, action string) error
}

type RegisterInput struct {
	Name        string
	Affiliation string
	Email       string
	Password    string
}

// ImportRecord is one row of a bulk import (typically a parsed CSV line).
type ImportRecord struct {
	Name        string
	Affiliation string
	Email       string
}

type ImportMode string

const (
	ImportAppend  ImportMode = "append"
	ImportReplace ImportMode = "replace"
)

func (m ImportMode) Valid() bool { return m == ImportAppend || m == ImportReplace }

type ImportResult struct {
	Mode     ImportMode
	Imported []domain.Credentials
	// SkippedDuplicates are emails repeated within the batch; the first occurrence wins.
	SkippedDuplicates []string
	// SkippedExisting are emails already on file. In replace mode these members are removed
	// with everyone else and not re-created.
	SkippedExisting []string
	// SkippedInvalid are rows missing a name, affiliation or valid email.
	SkippedInvalid []InvalidRecord
}

// InvalidRecord describes a dropped import row. Row is 1-based.
type InvalidRecord struct {
	Row    int
	Email  string
	Issues []string
}

type BulkRegenerateResult struct {
	Regenerated []domain.Credentials
	// Missing lists members deleted between the read and the write.
	Missing []domain.MemberID
}

// StatusFilter narrows List. The zero value is StatusAll.
type StatusFilter string

const (
	StatusAll     StatusFilter = ""
	StatusActive  StatusFilter = "Active"
	StatusPending StatusFilter = "Pending"
)

type ListFilter struct {
	Status StatusFilter
	Query  string
}
