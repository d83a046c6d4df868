// File: model/wallets.go
package model

import "time"

// Wallet represents an identity's token holding used to pay for dataset access.
type Wallet struct {
	ObjectType string `json:"objectType"` // "Wallet"
	OwnerID    string `json:"ownerId"`
	Balance    int64  `json:"balance"`
}

// Transfer kinds recorded on the ledger.
const (
	TransferKindMint     = "MINT"
	TransferKindTransfer = "TRANSFER"
	TransferKindPurchase = "PURCHASE"
)

// TransferRecord is the audit record for one movement of tokens, keyed by the
// transaction ID that performed it.
type TransferRecord struct {
	ObjectType string    `json:"objectType"` // "TransferRecord"
	TxID       string    `json:"txId"`
	Kind       string    `json:"kind"` // Mint, Transfer, Purchase
	From       string    `json:"from"` // Empty for mints
	To         string    `json:"to"`
	Amount     int64     `json:"amount"`
	Timestamp  time.Time `json:"timestamp"`
}
