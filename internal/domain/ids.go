package domain

// MemberID identifies a member record. Generated ids carry a human-meaningful prefix
// (e.g. "DMA-"); the reserved bootstrap account uses the literal "admin".
type MemberID string

// CandidateID is an internal identifier for an election candidate.
type CandidateID string

// AdminLogID identifies an audit log entry.
type AdminLogID string

// SessionID identifies an issued session token (the JWT `jti`). It is what logout revokes.
type SessionID string

// ReservedAdminID is the member id that always resolves to the admin role.
const ReservedAdminID MemberID = "admin"
