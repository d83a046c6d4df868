package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"datamarket/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var walletLogger = flogging.MustGetLogger("datamarket.walletledger")

// WalletLedger handles the token balances that back paid dataset access. It is
// the contract-local realization of the host's value transfer primitive: a
// transfer either moves the full amount and records an audit entry, or fails
// before staging any write.
type WalletLedger struct {
	Ctx contractapi.TransactionContextInterface
}

// NewWalletLedger creates a new instance of WalletLedger.
func NewWalletLedger(ctx contractapi.TransactionContextInterface) *WalletLedger {
	return &WalletLedger{Ctx: ctx}
}

func (wl *WalletLedger) createWalletKey(ownerID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", errors.New("wallet ownerID cannot be empty")
	}
	return wl.Ctx.GetStub().CreateCompositeKey(walletObjectType, []string{ownerID})
}

func (wl *WalletLedger) createTransferKey(txID string) (string, error) {
	return wl.Ctx.GetStub().CreateCompositeKey(transferObjectType, []string{txID})
}

// getWallet returns the wallet for ownerID, or a zero-balance wallet if none
// has been created yet. Absent wallets are indistinguishable from empty ones.
func (wl *WalletLedger) getWallet(ownerID string) (*model.Wallet, error) {
	walletKey, err := wl.createWalletKey(ownerID)
	if err != nil {
		return nil, err
	}
	walletBytes, err := wl.Ctx.GetStub().GetState(walletKey)
	if err != nil {
		return nil, fmt.Errorf("ledger error reading wallet for '%s': %w", ownerID, err)
	}
	if walletBytes == nil {
		return &model.Wallet{ObjectType: walletObjectType, OwnerID: ownerID, Balance: 0}, nil
	}
	var wallet model.Wallet
	if err := json.Unmarshal(walletBytes, &wallet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet for '%s': %w", ownerID, err)
	}
	return &wallet, nil
}

func (wl *WalletLedger) putWallet(wallet *model.Wallet) error {
	walletKey, err := wl.createWalletKey(wallet.OwnerID)
	if err != nil {
		return err
	}
	walletBytes, err := json.Marshal(wallet)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet for '%s': %w", wallet.OwnerID, err)
	}
	if err := wl.Ctx.GetStub().PutState(walletKey, walletBytes); err != nil {
		return fmt.Errorf("failed to save wallet for '%s': %w", wallet.OwnerID, err)
	}
	return nil
}

// recordTransfer writes the audit record for a token movement, keyed by the
// transaction ID that performed it.
func (wl *WalletLedger) recordTransfer(kind, from, to string, amount int64) error {
	stub := wl.Ctx.GetStub()
	ts, err := stub.GetTxTimestamp()
	if err != nil {
		return fmt.Errorf("failed to get transaction timestamp for transfer record: %w", err)
	}
	record := model.TransferRecord{
		ObjectType: transferObjectType,
		TxID:       stub.GetTxID(),
		Kind:       kind,
		From:       from,
		To:         to,
		Amount:     amount,
		Timestamp:  ts.AsTime(),
	}
	transferKey, err := wl.createTransferKey(record.TxID)
	if err != nil {
		return fmt.Errorf("failed to create transfer record key: %w", err)
	}
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal transfer record: %w", err)
	}
	if err := stub.PutState(transferKey, recordBytes); err != nil {
		return fmt.Errorf("failed to save transfer record: %w", err)
	}
	return nil
}

// Balance returns the current token balance of ownerID.
func (wl *WalletLedger) Balance(ownerID string) (int64, error) {
	wallet, err := wl.getWallet(ownerID)
	if err != nil {
		return 0, err
	}
	return wallet.Balance, nil
}

// Transfer moves amount from one identity to the other. All checks happen
// before the first write, so a failed transfer leaves both balances untouched.
func (wl *WalletLedger) Transfer(from, to string, amount int64, kind string) error {
	if amount < 0 {
		return fmt.Errorf("%w: amount cannot be negative", ErrTransferFailed)
	}
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return fmt.Errorf("%w: transfer endpoints cannot be empty", ErrTransferFailed)
	}
	if from == to {
		walletLogger.Debugf("Transfer of %d from '%s' to itself is a no-op", amount, from)
		return wl.recordTransfer(kind, from, to, amount)
	}

	fromWallet, err := wl.getWallet(from)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if fromWallet.Balance < amount {
		return fmt.Errorf("%w: '%s' has balance %d, needs %d", ErrTransferFailed, from, fromWallet.Balance, amount)
	}
	toWallet, err := wl.getWallet(to)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	fromWallet.Balance -= amount
	toWallet.Balance += amount
	if err := wl.putWallet(fromWallet); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := wl.putWallet(toWallet); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := wl.recordTransfer(kind, from, to, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	walletLogger.Infof("Transferred %d tokens from '%s' to '%s' (%s)", amount, from, to, kind)
	return nil
}

// Mint credits newly issued tokens to an identity's wallet.
func (wl *WalletLedger) Mint(to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: mint amount must be positive", ErrInvalidParameters)
	}
	wallet, err := wl.getWallet(to)
	if err != nil {
		return err
	}
	wallet.Balance += amount
	if err := wl.putWallet(wallet); err != nil {
		return err
	}
	if err := wl.recordTransfer(model.TransferKindMint, "", to, amount); err != nil {
		return err
	}
	walletLogger.Infof("Minted %d tokens to '%s'", amount, to)
	return nil
}

// --- Contract surface for the wallet ledger ---

// GetBalance returns the token balance of the given identity.
func (s *DataMarketSmartContract) GetBalance(ctx contractapi.TransactionContextInterface, ownerID string) (int64, error) {
	logger.Debugf("GetBalance: querying wallet of '%s'", ownerID)
	if strings.TrimSpace(ownerID) == "" {
		return 0, fmt.Errorf("%w: ownerID cannot be empty", ErrInvalidParameters)
	}
	return NewWalletLedger(ctx).Balance(ownerID)
}

// TransferTokens moves tokens from the caller's wallet to another identity.
func (s *DataMarketSmartContract) TransferTokens(ctx contractapi.TransactionContextInterface, toID, amount string) error {
	callerID, err := s.getCallerID(ctx)
	if err != nil {
		return fmt.Errorf("TransferTokens: failed to get caller identity: %w", err)
	}
	if err := s.validateRequiredString(toID, "toID", maxStringInputLength); err != nil {
		return err
	}
	amountValue, err := strconv.ParseInt(strings.TrimSpace(amount), 10, 64)
	if err != nil || amountValue <= 0 {
		return fmt.Errorf("%w: amount '%s' must be a positive integer", ErrInvalidParameters, amount)
	}

	if err := NewWalletLedger(ctx).Transfer(callerID, toID, amountValue, model.TransferKindTransfer); err != nil {
		return fmt.Errorf("TransferTokens: %w", err)
	}
	s.emitEvent(ctx, "TokensTransferred", map[string]interface{}{
		"from":   callerID,
		"to":     toID,
		"amount": amountValue,
	})
	return nil
}
