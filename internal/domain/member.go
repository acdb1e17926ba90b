package domain

import "time"

type MemberStatus string

const (
	MemberStatusPending MemberStatus = "Pending"
	MemberStatusActive  MemberStatus = "Active"
)

// Member is the domain representation of an association member.
//
// The password hash never leaves the app layer; see Credentials for the one place a
// plaintext password is handed back to a caller.
type Member struct {
	ID          MemberID
	Name        string
	Affiliation string
	Email       string

	Status   MemberStatus
	HasVoted bool

	MembershipDate time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Credentials pairs a member with a freshly generated plaintext password.
// It is only produced by import and credential regeneration.
type Credentials struct {
	Member   Member
	Password string
}
