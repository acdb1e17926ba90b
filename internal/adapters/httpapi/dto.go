package httpapi

import (
	"time"

	"github.com/oapi-codegen/nullable"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"

	"github.com/dma-portal/association-api/internal/domain"
)

type LoginRequest struct {
	// Identifier is an email address or a member id.
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type LoginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Role      string        `json:"role"`
	Member    MemberProfile `json:"member"`
}

type MeResponse struct {
	Role      string        `json:"role"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Member    MemberProfile `json:"member"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type SignupRequest struct {
	Name        string              `json:"name"`
	Affiliation string              `json:"affiliation"`
	Email       openapi_types.Email `json:"email"`
	Password    string              `json:"password"`
}

type MemberProfile struct {
	Id             string             `json:"id"`
	Name           string             `json:"name"`
	Affiliation    string             `json:"affiliation"`
	Email          string             `json:"email"`
	Status         string             `json:"status"`
	HasVoted       bool               `json:"hasVoted"`
	MembershipDate openapi_types.Date `json:"membershipDate"`
}

type MemberResponse struct {
	Member MemberProfile `json:"member"`
}

type MembersResponse struct {
	Members []MemberProfile `json:"members"`
}

type MemberCredentials struct {
	Member   MemberProfile `json:"member"`
	Password string        `json:"password"`
}

type ImportRecord struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation"`
	Email       string `json:"email"`
}

type ImportRequest struct {
	// Mode is "append" (default) or "replace".
	Mode    string         `json:"mode"`
	Members []ImportRecord `json:"members"`
}

type ImportResponse struct {
	Mode              string              `json:"mode"`
	Imported          []MemberCredentials `json:"imported"`
	SkippedDuplicates []string            `json:"skippedDuplicates"`
	SkippedExisting   []string            `json:"skippedExisting"`
	SkippedInvalid    []InvalidImportRow  `json:"skippedInvalid"`
}

type InvalidImportRow struct {
	Row    int      `json:"row"`
	Email  string   `json:"email"`
	Issues []string `json:"issues"`
}

type CredentialsResponse struct {
	Credentials MemberCredentials `json:"credentials"`
}

type BulkCredentialsResponse struct {
	Credentials []MemberCredentials `json:"credentials"`
	Missing     []string            `json:"missing"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type Candidate struct {
	Id       string                    `json:"id"`
	Name     string                    `json:"name"`
	Position string                    `json:"position"`
	PhotoUrl nullable.Nullable[string] `json:"photoUrl,omitempty"`
	Votes    int64                     `json:"votes"`
}

type CandidateResponse struct {
	Candidate Candidate `json:"candidate"`
}

type CandidatesResponse struct {
	Candidates []Candidate `json:"candidates"`
}

type CreateCandidateRequest struct {
	Name     string  `json:"name"`
	Position string  `json:"position"`
	PhotoUrl *string `json:"photoUrl,omitempty"`
	Votes    *int64  `json:"votes,omitempty"`
}

type UpdateCandidateRequest struct {
	Name     nullable.Nullable[string] `json:"name,omitempty"`
	Position nullable.Nullable[string] `json:"position,omitempty"`
	PhotoUrl nullable.Nullable[string] `json:"photoUrl,omitempty"`
}

type ResultsResponse struct {
	Candidates   []Candidate `json:"candidates"`
	TotalVotes   int64       `json:"totalVotes"`
	MembersVoted int         `json:"membersVoted"`
}

type CastVoteRequest struct {
	CandidateId string `json:"candidateId"`
}

type Tally struct {
	CandidateId string    `json:"candidateId"`
	Votes       int64     `json:"votes"`
	At          time.Time `json:"at"`
}

type CastVoteResponse struct {
	Tally Tally `json:"tally"`
}

type AdminLogEntry struct {
	Id        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Admin     string    `json:"admin"`
	Action    string    `json:"action"`
}

type AdminLogsResponse struct {
	Logs []AdminLogEntry `json:"logs"`
}

type Settings struct {
	SiteName        string          `json:"siteName"`
	ContactEmail    string          `json:"contactEmail"`
	ContactPhone    string          `json:"contactPhone"`
	ContactAddress  string          `json:"contactAddress"`
	MembershipFee   decimal.Decimal `json:"membershipFee"`
	MaintenanceMode bool            `json:"maintenanceMode"`
}

type SettingsResponse struct {
	Settings Settings `json:"settings"`
}

type UpdateSettingsRequest struct {
	SiteName        nullable.Nullable[string]          `json:"siteName,omitempty"`
	ContactEmail    nullable.Nullable[string]          `json:"contactEmail,omitempty"`
	ContactPhone    nullable.Nullable[string]          `json:"contactPhone,omitempty"`
	ContactAddress  nullable.Nullable[string]          `json:"contactAddress,omitempty"`
	MembershipFee   nullable.Nullable[decimal.Decimal] `json:"membershipFee,omitempty"`
	MaintenanceMode nullable.Nullable[bool]            `json:"maintenanceMode,omitempty"`
}

func memberProfileFromDomain(m domain.Member) MemberProfile {
	return MemberProfile{
		Id:             string(m.ID),
		Name:           m.Name,
		Affiliation:    m.Affiliation,
		Email:          m.Email,
		Status:         string(m.Status),
		HasVoted:       m.HasVoted,
		MembershipDate: openapi_types.Date{Time: m.MembershipDate},
	}
}

func credentialsFromDomain(cs []domain.Credentials) []MemberCredentials {
	out := make([]MemberCredentials, 0, len(cs))
	for _, c := range cs {
		out = append(out, MemberCredentials{Member: memberProfileFromDomain(c.Member), Password: c.Password})
	}
	return out
}

func candidateFromDomain(c domain.Candidate) Candidate {
	out := Candidate{
		Id:       string(c.ID),
		Name:     c.Name,
		Position: c.Position,
		Votes:    c.Votes,
	}
	if c.PhotoURL != "" {
		out.PhotoUrl = nullable.NewNullableWithValue(c.PhotoURL)
	} else {
		out.PhotoUrl = nullable.NewNullNullable[string]()
	}
	return out
}

func candidatesFromDomain(cs []domain.Candidate) []Candidate {
	out := make([]Candidate, 0, len(cs))
	for _, c := range cs {
		out = append(out, candidateFromDomain(c))
	}
	return out
}

func settingsFromDomain(s domain.SiteSettings) Settings {
	return Settings{
		SiteName:        s.SiteName,
		ContactEmail:    s.ContactEmail,
		ContactPhone:    s.ContactPhone,
		ContactAddress:  s.ContactAddress,
		MembershipFee:   s.MembershipFee,
		MaintenanceMode: s.MaintenanceMode,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
