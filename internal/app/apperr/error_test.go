package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/dma-portal/association-api/internal/domain"
)

func TestError_UnwrapReachesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := fmt.Errorf("cast vote: %w", &Error{Status: http.StatusServiceUnavailable, Code: CodeVoteFailed, Cause: cause})

	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(cause) = false for %v", err)
	}
	ae, ok := As(err)
	if !ok || !ae.Retryable() {
		t.Fatalf("As()=%v ok=%v, want retryable *Error", ae, ok)
	}
	if !HasCode(err, CodeVoteFailed) {
		t.Fatalf("HasCode(VOTE_FAILED)=false")
	}
}

func TestRequireRoles(t *testing.T) {
	t.Parallel()

	anon := domain.Identity{}
	member := domain.Identity{MemberID: "mem1", Role: domain.RoleMember}
	admin := domain.Identity{MemberID: "admin", Role: domain.RoleAdmin}

	cases := []struct {
		name   string
		check  func(domain.Identity) error
		id     domain.Identity
		status int
	}{
		{"admin/anon", RequireAdmin, anon, http.StatusUnauthorized},
		{"admin/member", RequireAdmin, member, http.StatusForbidden},
		{"admin/admin", RequireAdmin, admin, 0},
		{"member/anon", RequireMember, anon, http.StatusUnauthorized},
		{"member/admin", RequireMember, admin, http.StatusForbidden},
		{"member/member", RequireMember, member, 0},
		{"auth/anon", RequireAuthenticated, anon, http.StatusUnauthorized},
		{"auth/member", RequireAuthenticated, member, 0},
	}
	for _, tc := range cases {
		err := tc.check(tc.id)
		if tc.status == 0 {
			if err != nil {
				t.Fatalf("%s: err=%v, want nil", tc.name, err)
			}
			continue
		}
		ae, ok := As(err)
		if !ok || ae.Status != tc.status || ae.Code != CodeUnauthorized {
			t.Fatalf("%s: err=%v, want %d UNAUTHORIZED", tc.name, err, tc.status)
		}
	}
}
