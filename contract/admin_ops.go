package contract

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Administration ---

// BootstrapLedger initializes the contract by making the calling identity the
// administrator. It can run exactly once: re-running after an administrator
// exists is an error.
func (s *DataMarketSmartContract) BootstrapLedger(ctx contractapi.TransactionContextInterface) error {
	logger.Info("Attempting to bootstrap ledger with initial administrator...")

	adminBytes, err := ctx.GetStub().GetState(adminStateKey)
	if err != nil {
		return fmt.Errorf("BootstrapLedger: failed to check for existing administrator: %w", err)
	}
	if adminBytes != nil {
		return errors.New("ledger is already bootstrapped. BootstrapLedger should not be re-run")
	}

	callerID, err := s.getCallerID(ctx)
	if err != nil {
		return fmt.Errorf("BootstrapLedger: failed to get caller identity: %w", err)
	}
	if err := ctx.GetStub().PutState(adminStateKey, []byte(callerID)); err != nil {
		return fmt.Errorf("BootstrapLedger: failed to save administrator identity: %w", err)
	}

	logger.Infof("Ledger bootstrapped successfully. Identity '%s' is now the administrator.", callerID)
	return nil
}

// GetAdmin returns the current administrator identity.
func (s *DataMarketSmartContract) GetAdmin(ctx contractapi.TransactionContextInterface) (string, error) {
	logger.Debug("GetAdmin: querying administrator identity")
	adminBytes, err := ctx.GetStub().GetState(adminStateKey)
	if err != nil {
		return "", fmt.Errorf("GetAdmin: failed to read administrator identity: %w", err)
	}
	if adminBytes == nil {
		return "", errors.New("ledger is not bootstrapped: no administrator exists")
	}
	return string(adminBytes), nil
}

// TransferOwnership replaces the administrator identity. Only the current
// administrator may do this; there is exactly one administrator at any time.
func (s *DataMarketSmartContract) TransferOwnership(ctx contractapi.TransactionContextInterface, newAdminID string) error {
	callerID, err := s.requireAdmin(ctx)
	if err != nil {
		return fmt.Errorf("TransferOwnership: %w", err)
	}
	if err := s.validateRequiredString(newAdminID, "newAdminID", maxStringInputLength); err != nil {
		return err
	}

	if err := ctx.GetStub().PutState(adminStateKey, []byte(strings.TrimSpace(newAdminID))); err != nil {
		return fmt.Errorf("TransferOwnership: failed to save new administrator identity: %w", err)
	}

	s.emitEvent(ctx, "OwnershipTransferred", map[string]interface{}{
		"previousAdminId": callerID,
		"newAdminId":      newAdminID,
	})
	logger.Infof("Administrator changed from '%s' to '%s'", callerID, newAdminID)
	return nil
}

// VerifyDataset marks a dataset as verified. Administrator only. The flag
// moves false to true exactly once and never reverses; re-verifying an
// already-verified dataset succeeds with no further effect.
func (s *DataMarketSmartContract) VerifyDataset(ctx contractapi.TransactionContextInterface, datasetID string) error {
	callerID, err := s.requireAdmin(ctx)
	if err != nil {
		return fmt.Errorf("VerifyDataset: %w", err)
	}

	dataset, err := s.getDatasetByID(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("VerifyDataset: %w", err)
	}
	if dataset.Verified {
		logger.Infof("Dataset '%s' is already verified. No action needed.", datasetID)
		return nil
	}

	dataset.Verified = true
	if err := s.putDataset(ctx, dataset); err != nil {
		return fmt.Errorf("VerifyDataset: %w", err)
	}

	s.emitEvent(ctx, "DatasetVerified", map[string]interface{}{
		"datasetId":  datasetID,
		"verifiedBy": callerID,
	})
	logger.Infof("Dataset '%s' verified by administrator '%s'", datasetID, callerID)
	return nil
}

// MintTokens credits newly issued tokens to an identity's wallet.
// Administrator only.
func (s *DataMarketSmartContract) MintTokens(ctx contractapi.TransactionContextInterface, toID, amount string) error {
	callerID, err := s.requireAdmin(ctx)
	if err != nil {
		return fmt.Errorf("MintTokens: %w", err)
	}
	if err := s.validateRequiredString(toID, "toID", maxStringInputLength); err != nil {
		return err
	}
	amountValue, err := strconv.ParseInt(strings.TrimSpace(amount), 10, 64)
	if err != nil || amountValue <= 0 {
		return fmt.Errorf("%w: amount '%s' must be a positive integer", ErrInvalidParameters, amount)
	}

	if err := NewWalletLedger(ctx).Mint(toID, amountValue); err != nil {
		return fmt.Errorf("MintTokens: %w", err)
	}

	s.emitEvent(ctx, "TokensMinted", map[string]interface{}{
		"toId":     toID,
		"amount":   amountValue,
		"mintedBy": callerID,
	})
	logger.Infof("Administrator '%s' minted %d tokens to '%s'", callerID, amountValue, toID)
	return nil
}

// requireAdmin checks that the caller is the current administrator and
// returns the caller identity.
func (s *DataMarketSmartContract) requireAdmin(ctx contractapi.TransactionContextInterface) (string, error) {
	callerID, err := s.getCallerID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}
	adminBytes, err := ctx.GetStub().GetState(adminStateKey)
	if err != nil {
		return "", fmt.Errorf("failed to read administrator identity: %w", err)
	}
	if adminBytes == nil || string(adminBytes) != callerID {
		return "", fmt.Errorf("%w: caller '%s' is not the administrator", ErrNotAuthorized, callerID)
	}
	return callerID, nil
}
