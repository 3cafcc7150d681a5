package models

import "time"

// TokenLaunch represents a launched token. The launch timestamp anchors the
// emission schedule; everything except the designation link is immutable.
type TokenLaunch struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TokenAddress  string    `gorm:"uniqueIndex;not null" json:"token_address"`
	CreatorWallet string    `gorm:"not null" json:"creator_wallet"`
	LaunchedAt    time.Time `gorm:"not null" json:"launched_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	DesignatedClaim *DesignatedClaim `gorm:"foreignKey:TokenAddress;references:TokenAddress" json:"designated_claim,omitempty"`
}

// EmissionSplit routes a percentage of every emission claim for a token to a
// recipient wallet. Rows are managed outside the settlement engine; the sum of
// percentages for a token never exceeds 100.
type EmissionSplit struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	TokenAddress    string    `gorm:"index;not null" json:"token_address"`
	RecipientWallet string    `gorm:"not null" json:"recipient_wallet"`
	Percentage      uint      `gorm:"not null" json:"percentage"`
	Label           string    `json:"label"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DesignatedClaim reassigns emission-claim rights for a token from its
// original launcher to a verified third party. While unverified it blocks all
// claiming; once verified only the verified wallet (or its embedded wallet)
// may claim and the original launcher is explicitly blocked.
type DesignatedClaim struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	TokenAddress     string     `gorm:"uniqueIndex;not null" json:"token_address"`
	OriginalLauncher string     `gorm:"not null" json:"original_launcher"`
	SocialHandle     string     `json:"social_handle"`
	VerifiedWallet   string     `json:"verified_wallet"`
	EmbeddedWallet   string     `json:"embedded_wallet"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
