package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"datamarket/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Governance Engine ---
//
// Proposals are a three-state machine: ACTIVE on creation, then exactly one
// transition to PASSED or REJECTED via FinalizeProposal. Votes are accepted
// any time a proposal is ACTIVE, even past the voting deadline — only
// finalization enforces the deadline. A tie finalizes as REJECTED.

func (s *DataMarketSmartContract) createProposalKey(ctx contractapi.TransactionContextInterface, proposalID uint64) (string, error) {
	return ctx.GetStub().CreateCompositeKey(proposalObjectType, []string{strconv.FormatUint(proposalID, 10)})
}

func (s *DataMarketSmartContract) createVoteKey(ctx contractapi.TransactionContextInterface, proposalID uint64, voterID string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(voteObjectType, []string{strconv.FormatUint(proposalID, 10), voterID})
}

// CreateProposal opens a new governance proposal for voting. Only registered
// researchers may propose. Proposal ids are sequential from 1 and are
// allocated only when creation succeeds, so they are never reused.
func (s *DataMarketSmartContract) CreateProposal(ctx contractapi.TransactionContextInterface, title, description, votingSeconds string) (uint64, error) {
	callerID, err := s.getCallerID(ctx)
	if err != nil {
		return 0, fmt.Errorf("CreateProposal: failed to get caller identity: %w", err)
	}
	if _, err := s.getResearcherByID(ctx, callerID); err != nil {
		return 0, fmt.Errorf("CreateProposal: caller must be a registered researcher: %w", err)
	}

	if err := s.validateRequiredString(title, "title", maxStringInputLength); err != nil {
		return 0, err
	}
	if err := s.validateOptionalString(description, "description", maxTextInputLength); err != nil {
		return 0, err
	}
	durationSecs, err := strconv.ParseInt(strings.TrimSpace(votingSeconds), 10, 64)
	if err != nil || durationSecs <= 0 {
		return 0, fmt.Errorf("%w: votingSeconds '%s' must be a positive integer", ErrInvalidParameters, votingSeconds)
	}

	lastID, err := s.lastProposalID(ctx)
	if err != nil {
		return 0, fmt.Errorf("CreateProposal: %w", err)
	}
	proposalID := lastID + 1

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return 0, fmt.Errorf("CreateProposal: failed to get transaction timestamp: %w", err)
	}
	proposal := model.Proposal{
		ObjectType:   proposalObjectType,
		ID:           proposalID,
		Title:        title,
		Description:  description,
		ProposerID:   callerID,
		ProposedAt:   now,
		VotingEndsAt: now.Add(time.Duration(durationSecs) * time.Second),
		YesVotes:     0,
		NoVotes:      0,
		Status:       model.ProposalActive,
	}
	if err := s.putProposal(ctx, &proposal); err != nil {
		return 0, fmt.Errorf("CreateProposal: %w", err)
	}
	if err := ctx.GetStub().PutState(proposalSeqKey, []byte(strconv.FormatUint(proposalID, 10))); err != nil {
		return 0, fmt.Errorf("CreateProposal: failed to save proposal counter: %w", err)
	}

	s.emitEvent(ctx, "ProposalCreated", map[string]interface{}{
		"proposalId":   proposalID,
		"title":        title,
		"proposerId":   callerID,
		"votingEndsAt": proposal.VotingEndsAt,
	})
	logger.Infof("Researcher '%s' created proposal %d ('%s'), voting ends at %s", callerID, proposalID, title, proposal.VotingEndsAt.Format(time.RFC3339))
	return proposalID, nil
}

// VoteOnProposal casts the calling researcher's yes/no vote on an active
// proposal. One vote per researcher per proposal; votes cannot be changed.
func (s *DataMarketSmartContract) VoteOnProposal(ctx contractapi.TransactionContextInterface, proposalID, approve string) error {
	callerID, err := s.getCallerID(ctx)
	if err != nil {
		return fmt.Errorf("VoteOnProposal: failed to get caller identity: %w", err)
	}
	id, err := s.parseProposalID(proposalID)
	if err != nil {
		return err
	}
	choice, err := strconv.ParseBool(strings.TrimSpace(approve))
	if err != nil {
		return fmt.Errorf("%w: approve '%s' must be a boolean", ErrInvalidParameters, approve)
	}

	proposal, err := s.getProposalByID(ctx, id)
	if err != nil {
		return fmt.Errorf("VoteOnProposal: %w", err)
	}
	if proposal == nil {
		return fmt.Errorf("%w: proposal %d does not exist", ErrNoActiveVote, id)
	}
	if proposal.Status != model.ProposalActive {
		return fmt.Errorf("%w: proposal %d is %s", ErrNoActiveVote, id, proposal.Status)
	}
	if _, err := s.getResearcherByID(ctx, callerID); err != nil {
		return fmt.Errorf("VoteOnProposal: caller must be a registered researcher: %w", err)
	}

	voteKey, err := s.createVoteKey(ctx, id, callerID)
	if err != nil {
		return fmt.Errorf("VoteOnProposal: failed to create vote key: %w", err)
	}
	existing, err := ctx.GetStub().GetState(voteKey)
	if err != nil {
		return fmt.Errorf("VoteOnProposal: failed to check for existing vote: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: '%s' already voted on proposal %d", ErrAlreadyVoted, callerID, id)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("VoteOnProposal: failed to get transaction timestamp: %w", err)
	}
	if choice {
		proposal.YesVotes++
	} else {
		proposal.NoVotes++
	}
	if err := s.putProposal(ctx, proposal); err != nil {
		return fmt.Errorf("VoteOnProposal: %w", err)
	}

	vote := model.Vote{
		ObjectType: voteObjectType,
		ProposalID: id,
		VoterID:    callerID,
		Approve:    choice,
		CastAt:     now,
	}
	voteBytes, err := json.Marshal(vote)
	if err != nil {
		return fmt.Errorf("VoteOnProposal: failed to marshal vote: %w", err)
	}
	if err := ctx.GetStub().PutState(voteKey, voteBytes); err != nil {
		return fmt.Errorf("VoteOnProposal: failed to save vote: %w", err)
	}

	s.emitEvent(ctx, "VoteCast", map[string]interface{}{
		"proposalId": id,
		"voterId":    callerID,
		"approve":    choice,
	})
	logger.Infof("Researcher '%s' voted %t on proposal %d (now %d yes / %d no)", callerID, choice, id, proposal.YesVotes, proposal.NoVotes)
	return nil
}

// FinalizeProposal closes voting on a proposal whose deadline has elapsed and
// returns the resulting status. The transition is permanent: finalizing a
// PASSED or REJECTED proposal fails.
func (s *DataMarketSmartContract) FinalizeProposal(ctx contractapi.TransactionContextInterface, proposalID string) (string, error) {
	id, err := s.parseProposalID(proposalID)
	if err != nil {
		return "", err
	}
	proposal, err := s.getProposalByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("FinalizeProposal: %w", err)
	}
	if proposal == nil {
		return "", fmt.Errorf("%w: proposal %d does not exist", ErrInvalidParameters, id)
	}
	if proposal.Status != model.ProposalActive {
		return "", fmt.Errorf("%w: proposal %d is already %s", ErrInvalidParameters, id, proposal.Status)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return "", fmt.Errorf("FinalizeProposal: failed to get transaction timestamp: %w", err)
	}
	if !now.After(proposal.VotingEndsAt) {
		return "", fmt.Errorf("%w: voting on proposal %d is open until %s", ErrInvalidParameters, id, proposal.VotingEndsAt.Format(time.RFC3339))
	}

	if proposal.YesVotes > proposal.NoVotes {
		proposal.Status = model.ProposalPassed
	} else {
		proposal.Status = model.ProposalRejected
	}
	if err := s.putProposal(ctx, proposal); err != nil {
		return "", fmt.Errorf("FinalizeProposal: %w", err)
	}

	s.emitEvent(ctx, "ProposalFinalized", map[string]interface{}{
		"proposalId": id,
		"status":     string(proposal.Status),
		"yesVotes":   proposal.YesVotes,
		"noVotes":    proposal.NoVotes,
	})
	logger.Infof("Proposal %d finalized as %s (%d yes / %d no)", id, proposal.Status, proposal.YesVotes, proposal.NoVotes)
	return string(proposal.Status), nil
}

// GetProposal returns one proposal record.
func (s *DataMarketSmartContract) GetProposal(ctx contractapi.TransactionContextInterface, proposalID string) (*model.Proposal, error) {
	logger.Debugf("GetProposal: querying proposal '%s'", proposalID)
	id, err := s.parseProposalID(proposalID)
	if err != nil {
		return nil, err
	}
	proposal, err := s.getProposalByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetProposal: %w", err)
	}
	if proposal == nil {
		return nil, fmt.Errorf("%w: proposal %d does not exist", ErrInvalidParameters, id)
	}
	return proposal, nil
}

// HasVoted reports whether the given identity has voted on a proposal.
func (s *DataMarketSmartContract) HasVoted(ctx contractapi.TransactionContextInterface, proposalID, voterID string) (bool, error) {
	logger.Debugf("HasVoted: proposal '%s', voter '%s'", proposalID, voterID)
	id, err := s.parseProposalID(proposalID)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(voterID) == "" {
		return false, fmt.Errorf("%w: voterID cannot be empty", ErrInvalidParameters)
	}
	proposal, err := s.getProposalByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("HasVoted: %w", err)
	}
	if proposal == nil {
		return false, fmt.Errorf("%w: proposal %d does not exist", ErrInvalidParameters, id)
	}

	voteKey, err := s.createVoteKey(ctx, id, voterID)
	if err != nil {
		return false, fmt.Errorf("HasVoted: failed to create vote key: %w", err)
	}
	voteBytes, err := ctx.GetStub().GetState(voteKey)
	if err != nil {
		return false, fmt.Errorf("HasVoted: failed to read vote: %w", err)
	}
	return voteBytes != nil, nil
}

// GetAllProposals returns every proposal record.
func (s *DataMarketSmartContract) GetAllProposals(ctx contractapi.TransactionContextInterface) ([]model.Proposal, error) {
	logger.Debug("GetAllProposals: listing all proposal records")
	return s.listProposals(ctx, false)
}

// GetActiveProposals returns all proposals still open for voting.
func (s *DataMarketSmartContract) GetActiveProposals(ctx contractapi.TransactionContextInterface) ([]model.Proposal, error) {
	logger.Debug("GetActiveProposals: listing active proposal records")
	return s.listProposals(ctx, true)
}

func (s *DataMarketSmartContract) listProposals(ctx contractapi.TransactionContextInterface, activeOnly bool) ([]model.Proposal, error) {
	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(proposalObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to get proposals iterator: %w", err)
	}
	defer resultsIterator.Close()

	proposals := []model.Proposal{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("listProposals: failed to get next proposal from iterator: %v. Skipping.", iterErr)
			continue
		}
		var proposal model.Proposal
		if err := json.Unmarshal(queryResponse.Value, &proposal); err != nil {
			logger.Warningf("listProposals: failed to unmarshal proposal for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		if activeOnly && proposal.Status != model.ProposalActive {
			continue
		}
		proposals = append(proposals, proposal)
	}
	return proposals, nil
}

// --- Internal helpers ---

func (s *DataMarketSmartContract) parseProposalID(proposalID string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(proposalID), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: proposalID '%s' must be a positive integer", ErrInvalidParameters, proposalID)
	}
	return id, nil
}

// lastProposalID reads the proposal counter scalar; zero means no proposal
// has ever been created.
func (s *DataMarketSmartContract) lastProposalID(ctx contractapi.TransactionContextInterface) (uint64, error) {
	seqBytes, err := ctx.GetStub().GetState(proposalSeqKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read proposal counter: %w", err)
	}
	if seqBytes == nil {
		return 0, nil
	}
	lastID, err := strconv.ParseUint(string(seqBytes), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse proposal counter '%s': %w", string(seqBytes), err)
	}
	return lastID, nil
}

// getProposalByID returns (nil, nil) when the proposal does not exist, so
// callers can tell absence apart from a ledger read failure.
func (s *DataMarketSmartContract) getProposalByID(ctx contractapi.TransactionContextInterface, proposalID uint64) (*model.Proposal, error) {
	proposalKey, err := s.createProposalKey(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to create proposal key for %d: %w", proposalID, err)
	}
	proposalBytes, err := ctx.GetStub().GetState(proposalKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read proposal %d from ledger: %w", proposalID, err)
	}
	if proposalBytes == nil {
		return nil, nil
	}
	var proposal model.Proposal
	if err := json.Unmarshal(proposalBytes, &proposal); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proposal %d: %w", proposalID, err)
	}
	return &proposal, nil
}

func (s *DataMarketSmartContract) putProposal(ctx contractapi.TransactionContextInterface, proposal *model.Proposal) error {
	proposalKey, err := s.createProposalKey(ctx, proposal.ID)
	if err != nil {
		return fmt.Errorf("failed to create proposal key for %d: %w", proposal.ID, err)
	}
	proposalBytes, err := json.Marshal(proposal)
	if err != nil {
		return fmt.Errorf("failed to marshal proposal %d: %w", proposal.ID, err)
	}
	if err := ctx.GetStub().PutState(proposalKey, proposalBytes); err != nil {
		return fmt.Errorf("failed to save proposal %d: %w", proposal.ID, err)
	}
	return nil
}
