package models

import "time"

type PresaleStatus string

const (
	PresaleStatusPending  PresaleStatus = "pending"
	PresaleStatusLaunched PresaleStatus = "launched"
)

// Presale holds a pre-launch fundraising round. The escrow private key is
// encrypted at rest and only ever decrypted inside the guarded confirm path
// of a presale claim settlement.
type Presale struct {
	ID                  uint          `gorm:"primaryKey" json:"id"`
	TokenAddress        string        `gorm:"uniqueIndex;not null" json:"token_address"`
	CreatorWallet       string        `gorm:"not null" json:"creator_wallet"`
	Status              PresaleStatus `gorm:"default:pending" json:"status"`
	EscrowPublicKey     string        `gorm:"not null" json:"escrow_public_key"`
	EscrowPrivateKeyEnc string        `gorm:"not null" json:"-"`
	BaseMintAddress     string        `json:"base_mint_address"`
	TotalTokens         uint64        `json:"total_tokens"`
	LaunchedAt          *time.Time    `json:"launched_at,omitempty"`
	VestingStartedAt    *time.Time    `json:"vesting_started_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// PresaleBid is an append-only record of a verified contribution. The unique
// index on the transaction signature is the idempotency guarantee.
type PresaleBid struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	PresaleID     uint      `gorm:"index;not null" json:"presale_id"`
	TokenAddress  string    `gorm:"index;not null" json:"token_address"`
	WalletAddress string    `gorm:"index;not null" json:"wallet_address"`
	Amount        uint64    `gorm:"not null" json:"amount"`
	TxSignature   string    `gorm:"uniqueIndex;not null" json:"tx_signature"`
	BlockTime     time.Time `json:"block_time"`
	Slot          uint64    `json:"slot"`
	CreatedAt     time.Time `json:"created_at"`
}

// PresaleClaim is the per-wallet vesting ledger: the pro-rata allocation
// derived from bids at launch and the running total of tokens claimed.
type PresaleClaim struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	PresaleID        uint       `gorm:"uniqueIndex:idx_presale_wallet;not null" json:"presale_id"`
	WalletAddress    string     `gorm:"uniqueIndex:idx_presale_wallet;not null" json:"wallet_address"`
	TokensAllocated  uint64     `gorm:"not null" json:"tokens_allocated"`
	TokensClaimed    uint64     `gorm:"default:0" json:"tokens_claimed"`
	VestingStartedAt time.Time  `gorm:"not null" json:"vesting_started_at"`
	LastClaimedAt    *time.Time `json:"last_claimed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// PresaleClaimTransaction is the append-only audit row for a confirmed
// presale withdrawal, keyed by unique signature so a replay can never be
// recorded twice.
type PresaleClaimTransaction struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	PresaleID     uint      `gorm:"index;not null" json:"presale_id"`
	WalletAddress string    `gorm:"index;not null" json:"wallet_address"`
	Amount        uint64    `gorm:"not null" json:"amount"`
	TxSignature   string    `gorm:"uniqueIndex;not null" json:"tx_signature"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
	CreatedAt     time.Time `json:"created_at"`
}
