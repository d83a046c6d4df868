// File: model/governance.go
package model

import "time"

// ProposalStatus defines the possible states of a governance proposal.
type ProposalStatus string

const (
	ProposalActive   ProposalStatus = "ACTIVE"   // Open for voting
	ProposalPassed   ProposalStatus = "PASSED"   // Finalized with yes > no
	ProposalRejected ProposalStatus = "REJECTED" // Finalized with yes <= no
)

// Proposal is a governance item subject to time-bounded yes/no voting by
// registered researchers. Status moves ACTIVE -> PASSED or ACTIVE -> REJECTED
// exactly once.
type Proposal struct {
	ObjectType   string         `json:"objectType"` // "Proposal"
	ID           uint64         `json:"id"`         // Sequential, assigned on creation, never reused
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	ProposerID   string         `json:"proposerId"`
	ProposedAt   time.Time      `json:"proposedAt"`
	VotingEndsAt time.Time      `json:"votingEndsAt"`
	YesVotes     int            `json:"yesVotes"`
	NoVotes      int            `json:"noVotes"`
	Status       ProposalStatus `json:"status"`
}

// Vote records one researcher's choice on one proposal.
type Vote struct {
	ObjectType string    `json:"objectType"` // "Vote"
	ProposalID uint64    `json:"proposalId"`
	VoterID    string    `json:"voterId"`
	Approve    bool      `json:"approve"`
	CastAt     time.Time `json:"castAt"`
}
