package models

import "time"

type ClaimStatus string

const (
	ClaimStatusPending   ClaimStatus = "pending"
	ClaimStatusConfirmed ClaimStatus = "confirmed"
	ClaimStatusFailed    ClaimStatus = "failed"
)

// ClaimRecord is the audit row for an emission claim. A row is pre-recorded
// with a synthetic placeholder signature before submission and promoted to
// confirmed with the real signature once the ledger accepts the transaction.
type ClaimRecord struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	TokenAddress  string      `gorm:"index;not null" json:"token_address"`
	WalletAddress string      `gorm:"index;not null" json:"wallet_address"`
	Amount        uint64      `gorm:"not null" json:"amount"`
	TxSignature   string      `gorm:"uniqueIndex;not null" json:"tx_signature"`
	Status        ClaimStatus `gorm:"default:pending" json:"status"`
	ConfirmedAt   *time.Time  `json:"confirmed_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}
