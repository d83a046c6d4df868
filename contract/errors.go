package contract

import "errors"

// Error kinds surfaced by the contract. Every failing operation wraps exactly
// one of these, so callers and tests can classify failures with errors.Is
// while the message carries the offending identifiers.
var (
	ErrNotAuthorized     = errors.New("not authorized")
	ErrUnknownDataset    = errors.New("unknown dataset")
	ErrUnknownResearcher = errors.New("unknown researcher")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrInvalidAccessType = errors.New("invalid access type")
	ErrAccessDenied      = errors.New("access denied")
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrNoActiveVote      = errors.New("no active vote")
	ErrAlreadyVoted      = errors.New("already voted")
	ErrTransferFailed    = errors.New("transfer failed")
)
