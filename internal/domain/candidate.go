package domain

import "time"

// Candidate is an election nominee. Votes only ever increases.
type Candidate struct {
	ID       CandidateID
	Name     string
	Position string
	PhotoURL string
	Votes    int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tally is the vote count of one candidate at a point in time.
type Tally struct {
	CandidateID CandidateID
	Votes       int64
	At          time.Time
}

// ElectionResults is the public read model for the election page.
type ElectionResults struct {
	Candidates   []Candidate
	TotalVotes   int64
	MembersVoted int
}
