// Package apperr defines the application-layer error that the HTTP adapter maps to responses.
package apperr

import (
	"errors"
	"net/http"

	"github.com/dma-portal/association-api/internal/domain"
)

const (
	CodeInvalidCredentials     = "INVALID_CREDENTIALS"
	CodePendingApproval        = "PENDING_APPROVAL"
	CodeInactiveAccount        = "INACTIVE_ACCOUNT"
	CodeInvalidCurrentPassword = "INVALID_CURRENT_PASSWORD"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeAlreadyVoted           = "ALREADY_VOTED"
	CodeVoteFailed             = "VOTE_FAILED"
	CodeMemberNotFound         = "MEMBER_NOT_FOUND"
	CodeCandidateNotFound      = "CANDIDATE_NOT_FOUND"
	CodeDuplicateEmail         = "DUPLICATE_EMAIL"
	CodeImportValidationFailed = "IMPORT_VALIDATION_FAILED"
	CodeImportFailed           = "IMPORT_FAILED"
	CodeAlreadyActive          = "ALREADY_ACTIVE"
	CodeValidation             = "VALIDATION_ERROR"
	CodeInternal               = "INTERNAL"
)

// Error is an application-layer error that can be mapped to an HTTP response.
// Cause, when set, is reachable through errors.Unwrap / errors.Is.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Retryable reports whether the caller may safely retry the same request.
func (e *Error) Retryable() bool {
	return e != nil && e.Status == http.StatusServiceUnavailable
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// HasCode reports whether err carries an *Error with the given code.
func HasCode(err error, code string) bool {
	ae, ok := As(err)
	return ok && ae.Code == code
}

func Validation(field, problem string) *Error {
	return &Error{
		Status:  http.StatusUnprocessableEntity,
		Code:    CodeValidation,
		Message: "invalid " + field,
		Details: map[string]any{field: problem},
	}
}

func MemberNotFound() *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeMemberNotFound, Message: "Member not found."}
}

func CandidateNotFound() *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeCandidateNotFound, Message: "Candidate not found."}
}

func DuplicateEmail(email string) *Error {
	return &Error{
		Status:  http.StatusConflict,
		Code:    CodeDuplicateEmail,
		Message: "A member with this email already exists.",
		Details: map[string]any{"email": email},
	}
}

// RequireAuthenticated fails with 401 for the anonymous identity.
func RequireAuthenticated(id domain.Identity) error {
	if id.IsAnonymous() {
		return &Error{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: "Authentication required."}
	}
	return nil
}

// RequireAdmin fails with 401 for anonymous callers and 403 for non-admins.
func RequireAdmin(id domain.Identity) error {
	if err := RequireAuthenticated(id); err != nil {
		return err
	}
	if !id.IsAdmin() {
		return &Error{Status: http.StatusForbidden, Code: CodeUnauthorized, Message: "Administrator access required."}
	}
	return nil
}

// RequireMember fails with 401 for anonymous callers and 403 for any role other than member.
func RequireMember(id domain.Identity) error {
	if err := RequireAuthenticated(id); err != nil {
		return err
	}
	if !id.IsMember() {
		return &Error{Status: http.StatusForbidden, Code: CodeUnauthorized, Message: "Only members may perform this action."}
	}
	return nil
}
