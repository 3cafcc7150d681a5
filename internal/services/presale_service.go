package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/launchforge/settlement/internal/database"
	"github.com/launchforge/settlement/internal/models"
	"github.com/launchforge/settlement/internal/utils"
	"gorm.io/gorm"
)

type PresaleService interface {
	CreatePresale(ctx context.Context, tokenAddress, creatorWallet string) (*models.Presale, error)
	// LaunchPresale transitions pending → launched, anchors the vesting
	// start, and eagerly materializes allocation rows for all contributors.
	LaunchPresale(ctx context.Context, tokenAddress string, totalTokens uint64, baseMintAddress string) (*models.Presale, error)
	GetPresale(ctx context.Context, tokenAddress string) (*models.Presale, error)
}

type presaleService struct {
	db     *database.Database
	vault  KeyVault
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewPresaleService(db *database.Database, vault KeyVault, clock clockwork.Clock, logger *slog.Logger) PresaleService {
	return &presaleService{db: db, vault: vault, clock: clock, logger: logger}
}

func (s *presaleService) CreatePresale(ctx context.Context, tokenAddress, creatorWallet string) (*models.Presale, error) {
	if !utils.IsValidAddress(tokenAddress) || !utils.IsValidAddress(creatorWallet) {
		return nil, validationError(CodeInvalidAddress, "malformed address")
	}

	escrow, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to generate escrow keypair")
	}
	encrypted, err := s.vault.Encrypt(escrow)
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to encrypt escrow key")
	}

	presale := &models.Presale{
		TokenAddress:        tokenAddress,
		CreatorWallet:       creatorWallet,
		Status:              models.PresaleStatusPending,
		EscrowPublicKey:     escrow.PublicKey().String(),
		EscrowPrivateKeyEnc: encrypted,
	}
	if err := s.db.CreatePresale(presale); err != nil {
		return nil, conflictError(CodeClaimAlreadyExists, "a presale already exists for %s", tokenAddress)
	}

	s.logger.Info("created presale", "token", tokenAddress, "escrow", presale.EscrowPublicKey)
	return presale, nil
}

func (s *presaleService) LaunchPresale(ctx context.Context, tokenAddress string, totalTokens uint64, baseMintAddress string) (*models.Presale, error) {
	if !utils.IsValidAddress(tokenAddress) || !utils.IsValidAddress(baseMintAddress) {
		return nil, validationError(CodeInvalidAddress, "malformed address")
	}
	if totalTokens == 0 {
		return nil, validationError(CodeInvalidAmount, "total tokens must be greater than zero")
	}

	presale, err := s.db.GetPresale(tokenAddress)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError(CodePresaleNotFound, "no presale for token %s", tokenAddress)
	}
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to load presale")
	}
	if presale.Status == models.PresaleStatusLaunched {
		return nil, conflictError(CodePresaleLaunched, "presale for %s already launched", tokenAddress)
	}

	now := s.clock.Now()
	presale.Status = models.PresaleStatusLaunched
	presale.BaseMintAddress = baseMintAddress
	presale.TotalTokens = totalTokens
	presale.LaunchedAt = &now
	presale.VestingStartedAt = &now
	if err := s.db.UpdatePresale(presale); err != nil {
		return nil, internalError(CodeStoreFailure, "failed to launch presale")
	}

	if err := s.materializeAllocations(presale); err != nil {
		return nil, err
	}

	s.logger.Info("launched presale", "token", tokenAddress, "total_tokens", totalTokens)
	return presale, nil
}

func (s *presaleService) materializeAllocations(presale *models.Presale) error {
	totalRaised, err := s.db.SumBids(presale.ID)
	if err != nil {
		return internalError(CodeStoreFailure, "failed to sum bids")
	}
	wallets, err := s.db.ListBidWallets(presale.ID)
	if err != nil {
		return internalError(CodeStoreFailure, "failed to list contributors")
	}

	for _, wallet := range wallets {
		walletBids, err := s.db.SumBidsByWallet(presale.ID, wallet)
		if err != nil {
			return internalError(CodeStoreFailure, "failed to sum wallet bids")
		}
		claim := &models.PresaleClaim{
			PresaleID:        presale.ID,
			WalletAddress:    wallet,
			TokensAllocated:  ProRataAllocation(presale.TotalTokens, walletBids, totalRaised),
			VestingStartedAt: *presale.VestingStartedAt,
		}
		// A lazily materialized row from an earlier vesting query wins the
		// unique-index race; that row is identical, so move on.
		if err := s.db.CreatePresaleClaim(claim); err != nil {
			continue
		}
	}
	return nil
}

func (s *presaleService) GetPresale(ctx context.Context, tokenAddress string) (*models.Presale, error) {
	presale, err := s.db.GetPresale(tokenAddress)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError(CodePresaleNotFound, "no presale for token %s", tokenAddress)
	}
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to load presale")
	}
	return presale, nil
}
