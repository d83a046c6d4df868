package contract

import (
	"errors"
	"testing"
	"time"

	"datamarket/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) createProposal(proposerID, title, votingSeconds string) uint64 {
	id, err := f.s.CreateProposal(asCaller(f.stub, proposerID), title, "details for "+title, votingSeconds)
	require.NoError(f.t, err)
	f.stub.advance(0)
	return id
}

func TestCreateProposalSequentialIDs(t *testing.T) {
	f := newFixture(t)
	f.registerResearcher(aliceID, "Alice Ames")

	first := f.createProposal(aliceID, "Adopt schema v2", "3600")
	second := f.createProposal(aliceID, "Raise listing fee", "3600")
	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)

	proposal, err := f.s.GetProposal(asCaller(f.stub, bobID), "1")
	require.NoError(t, err)
	assert.Equal(t, "Adopt schema v2", proposal.Title)
	assert.Equal(t, aliceID, proposal.ProposerID)
	assert.Equal(t, model.ProposalActive, proposal.Status)
	assert.Equal(t, proposal.ProposedAt.Add(3600*time.Second), proposal.VotingEndsAt)
}

func TestCreateProposalPreconditions(t *testing.T) {
	f := newFixture(t)
	f.registerResearcher(aliceID, "Alice Ames")

	_, err := f.s.CreateProposal(asCaller(f.stub, bobID), "title", "", "3600")
	assert.ErrorIs(t, err, ErrUnknownResearcher)

	for _, bad := range []string{"0", "-5", "soon", ""} {
		_, err := f.s.CreateProposal(asCaller(f.stub, aliceID), "title", "", bad)
		assert.ErrorIs(t, err, ErrInvalidParameters, "votingSeconds %q", bad)
	}

	_, err = f.s.CreateProposal(asCaller(f.stub, aliceID), "", "", "3600")
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestVoteOnProposalTallies(t *testing.T) {
	f := newFixture(t)
	f.registerResearcher(aliceID, "Alice Ames")
	f.registerResearcher(bobID, "Bob Burns")
	f.registerResearcher(carolID, "Carol Chen")
	f.createProposal(aliceID, "Adopt schema v2", "3600")

	require.NoError(t, f.s.VoteOnProposal(asCaller(f.stub, aliceID), "1", "true"))
	require.NoError(t, f.s.VoteOnProposal(asCaller(f.stub, bobID), "1", "true"))
	require.NoError(t, f.s.VoteOnProposal(asCaller(f.stub, carolID), "1", "false"))

	proposal, err := f.s.GetProposal(asCaller(f.stub, aliceID), "1")
	require.NoError(t, err)
	assert.Equal(t, 2, proposal.YesVotes)
	assert.Equal(t, 1, proposal.NoVotes)

	voted, err := f.s.HasVoted(asCaller(f.stub, aliceID), "1", bobID)
	require.NoError(t, err)
	assert.True(t, voted)
	voted, err = f.s.HasVoted(asCaller(f.stub, aliceID), "1", "x509::stranger")
	require.NoError(t, err)
	assert.False(t, voted)
}

func TestVoteOnProposalPreconditions(t *testing.T) {
	f := newFixture(t)
	f.registerResearcher(aliceID, "Alice Ames")
	f.createProposal(aliceID, "Adopt schema v2", "3600")

	err := f.s.VoteOnProposal(asCaller(f.stub, aliceID), "99", "true")
	assert.ErrorIs(t, err, ErrNoActiveVote)

	// bobID is not registered as a researcher.
	err = f.s.VoteOnProposal(asCaller(f.stub, bobID), "1", "true")
	assert.ErrorIs(t, err, ErrUnknownResearcher)

	err = f.s.VoteOnProposal(asCaller(f.stub, aliceID), "1", "maybe")
	assert.ErrorIs(t, err, ErrInvalidParameters)

	require.NoError(t, f.s.VoteOnProposal(asCaller(f.stub, aliceID), "1", "true"))
	err = f.s.VoteOnProposal(asCaller(f.stub, aliceID), "1", "false")
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	proposal, err := f.s.GetProposal(asCaller(f.stub, aliceID), "1")
	require.NoError(t, err)
	assert.Equal(t, 1, proposal.YesVotes)
	assert.Equal(t, 0, proposal.NoVotes)
}

// Votes are accepted past the deadline as long as the proposal has not been
// finalized yet.
func TestLateVoteAcceptedUntilFinalized(t *testing.T) {
	f := newFixture(t)
	f.registerResearcher(aliceID, "Alice Ames")
	f.registerResearcher(bobID, "Bob Burns")
	f.createProposal(aliceID, "Adopt schema v2", "10")

	f.stub.advance(60 * time.Second)
	require.NoError(t, f.s.VoteOnProposal(asCaller(f.stub, bobID), "1", "true"))

	status, err := f.s.FinalizeProposal(asCaller(f.stub, carolID), "1")
	require.NoError(t, err)
	assert.Equal(t, "PASSED", status)

	err = f.s.VoteOnProposal(asCaller(f.stub, aliceID), "1", "true")
	assert.ErrorIs(t, err, ErrNoActiveVote)
}

func TestFinalizeProposalDeadline(t *testing.T) {
	f := newFixture(t)
	f.registerResearcher(aliceID, "Alice Ames")
	f.createProposal(aliceID, "Adopt schema v2", "10")
	require.NoError(t, f.s.VoteOnProposal(asCaller(f.stub, aliceID), "1", "true"))

	// Exactly at the deadline voting is still open.
	f.stub.advance(10 * time.Second)
	_, err := f.s.FinalizeProposal(asCaller(f.stub, aliceID), "1")
	assert.ErrorIs(t, err, ErrInvalidParameters)

	f.stub.advance(1 * time.Second)
	status, err := f.s.FinalizeProposal(asCaller(f.stub, aliceID), "1")
	require.NoError(t, err)
	assert.Equal(t, "PASSED", status)

	_, err = f.s.FinalizeProposal(asCaller(f.stub, aliceID), "1")
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestFinalizeProposalTieRejects(t *testing.T) {
	f := newFixture(t)
	f.registerResearcher(aliceID, "Alice Ames")
	f.registerResearcher(bobID, "Bob Burns")
	f.createProposal(aliceID, "Adopt schema v2", "10")
	require.NoError(t, f.s.VoteOnProposal(asCaller(f.stub, aliceID), "1", "true"))
	require.NoError(t, f.s.VoteOnProposal(asCaller(f.stub, bobID), "1", "false"))

	f.stub.advance(11 * time.Second)
	status, err := f.s.FinalizeProposal(asCaller(f.stub, carolID), "1")
	require.NoError(t, err)
	assert.Equal(t, "REJECTED", status)
}

// A proposal with no votes at all finalizes as REJECTED.
func TestFinalizeProposalNoVotesRejects(t *testing.T) {
	f := newFixture(t)
	f.registerResearcher(aliceID, "Alice Ames")
	f.createProposal(aliceID, "Adopt schema v2", "10")

	f.stub.advance(11 * time.Second)
	status, err := f.s.FinalizeProposal(asCaller(f.stub, aliceID), "1")
	require.NoError(t, err)
	assert.Equal(t, "REJECTED", status)
}

func TestGetActiveProposals(t *testing.T) {
	f := newFixture(t)
	f.registerResearcher(aliceID, "Alice Ames")
	f.createProposal(aliceID, "Adopt schema v2", "10")
	f.createProposal(aliceID, "Raise listing fee", "3600")

	f.stub.advance(11 * time.Second)
	_, err := f.s.FinalizeProposal(asCaller(f.stub, aliceID), "1")
	require.NoError(t, err)

	all, err := f.s.GetAllProposals(asCaller(f.stub, bobID))
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := f.s.GetActiveProposals(asCaller(f.stub, bobID))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, uint64(2), active[0].ID)
}

// A ledger read failure while looking up a proposal must surface as a read
// error, not masquerade as a missing proposal.
func TestVoteOnProposalReadFailureIsNotMissingProposal(t *testing.T) {
	f := newFixture(t)
	f.registerResearcher(aliceID, "Alice Ames")
	f.createProposal(aliceID, "Adopt schema v2", "3600")

	proposalKey, err := f.s.createProposalKey(asCaller(f.stub, aliceID), 1)
	require.NoError(t, err)
	f.stub.failReadsOf(proposalKey, errors.New("world state unavailable"))

	err = f.s.VoteOnProposal(asCaller(f.stub, aliceID), "1", "true")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoActiveVote)
	assert.ErrorContains(t, err, "world state unavailable")

	_, err = f.s.FinalizeProposal(asCaller(f.stub, aliceID), "1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidParameters)
	assert.ErrorContains(t, err, "world state unavailable")
}

func TestHasVotedUnknownProposal(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.HasVoted(asCaller(f.stub, aliceID), "7", aliceID)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}
