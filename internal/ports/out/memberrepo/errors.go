package memberrepo

import "errors"

var (
	// ErrNotFound indicates the requested member does not exist.
	ErrNotFound = errors.New("member not found")

	// ErrAlreadyExists indicates a member already exists with the provided ID.
	ErrAlreadyExists = errors.New("member already exists")

	// ErrEmailTaken indicates another member already uses the (case-folded) email.
	ErrEmailTaken = errors.New("member email already in use")

	// ErrAlreadyVoted indicates the conditional has-voted write found the flag already set.
	ErrAlreadyVoted = errors.New("member already voted")
)
