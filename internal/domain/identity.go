package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Identity is the resolved "who is acting" value passed into every core operation.
// The zero value is the anonymous identity.
type Identity struct {
	MemberID    MemberID
	DisplayName string
	Email       string
	Role        Role

	SessionID SessionID
	ExpiresAt time.Time
}

func (i Identity) IsAnonymous() bool { return i.MemberID == "" }
func (i Identity) IsAdmin() bool     { return !i.IsAnonymous() && i.Role == RoleAdmin }
func (i Identity) IsMember() bool    { return !i.IsAnonymous() && i.Role == RoleMember }

// DeriveRole returns admin when the member's email matches the site contact email or the
// member id is the reserved admin id (both case-insensitive); member otherwise.
func DeriveRole(id MemberID, email string, contactEmail string) Role {
	if strings.EqualFold(string(id), string(ReservedAdminID)) {
		return RoleAdmin
	}
	if c := strings.TrimSpace(contactEmail); c != "" && strings.EqualFold(strings.TrimSpace(email), c) {
		return RoleAdmin
	}
	return RoleMember
}
