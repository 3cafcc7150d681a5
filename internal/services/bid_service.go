package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/launchforge/settlement/internal/database"
	"github.com/launchforge/settlement/internal/ledger"
	"github.com/launchforge/settlement/internal/models"
	"github.com/launchforge/settlement/internal/utils"
	"gorm.io/gorm"
)

const (
	// BidRecencyWindow bounds how old a contribution transaction may be when
	// it is reported.
	BidRecencyWindow = 15 * time.Minute

	bidLockPrefix = "bid:"
)

type BidService interface {
	// RecordBid validates and idempotently records a contribution. The lock
	// is keyed by the transaction signature, not the token, so contributors
	// to the same presale never serialize against each other.
	RecordBid(ctx context.Context, req RecordBidRequest) (*RecordBidResult, error)
}

type RecordBidRequest struct {
	TokenAddress  string `json:"token_address" validate:"required"`
	WalletAddress string `json:"wallet_address" validate:"required"`
	TxSignature   string `json:"tx_signature" validate:"required"`
	Amount        string `json:"amount" validate:"required"`
	AssetMint     string `json:"asset_mint" validate:"required"`
}

type RecordBidResult struct {
	Signature string `json:"signature"`
	Amount    uint64 `json:"amount"`
}

type bidService struct {
	db            *database.Database
	ledger        ledger.Client
	locks         *LockTable
	allowedAssets map[string]bool
	clock         clockwork.Clock
	logger        *slog.Logger
	validator     *validator.Validate
}

func NewBidService(
	db *database.Database,
	ledgerClient ledger.Client,
	locks *LockTable,
	allowedAssets []string,
	clock clockwork.Clock,
	logger *slog.Logger,
) BidService {
	allowed := make(map[string]bool, len(allowedAssets))
	for _, asset := range allowedAssets {
		allowed[asset] = true
	}
	return &bidService{
		db:            db,
		ledger:        ledgerClient,
		locks:         locks,
		allowedAssets: allowed,
		clock:         clock,
		logger:        logger,
		validator:     validator.New(),
	}
}

func (s *bidService) RecordBid(ctx context.Context, req RecordBidRequest) (*RecordBidResult, error) {
	// Cheap structural checks come first; nothing below runs for garbage
	// input and no lock is taken.
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(CodeInvalidAmount, "missing required fields: %v", err)
	}
	if !utils.IsValidAddress(req.TokenAddress) || !utils.IsValidAddress(req.WalletAddress) {
		return nil, validationError(CodeInvalidAddress, "malformed address")
	}
	if !utils.IsValidTransactionSignature(req.TxSignature) {
		return nil, validationError(CodeInvalidSignature, "malformed transaction signature")
	}
	amount, err := utils.ParseAmount(req.Amount, MaxClaimAmount)
	if err != nil {
		return nil, validationError(CodeInvalidAmount, "%v", err)
	}
	if !s.allowedAssets[req.AssetMint] {
		return nil, validationError(CodeInvalidAsset, "asset %s is not accepted for bids", req.AssetMint)
	}

	lockKey := bidLockPrefix + req.TxSignature
	s.locks.Acquire(lockKey)
	defer s.locks.Release(lockKey)

	presale, err := s.db.GetPresale(req.TokenAddress)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError(CodePresaleNotFound, "no presale for token %s", req.TokenAddress)
	}
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to load presale")
	}
	if presale.Status != models.PresaleStatusPending {
		return nil, eligibilityError(CodePresaleLaunched, "presale for %s is closed to new bids", req.TokenAddress)
	}

	// Cheap duplicate short-circuit before the expensive ledger lookup.
	if existing, err := s.db.GetPresaleBidBySignature(req.TxSignature); err != nil {
		return nil, internalError(CodeStoreFailure, "failed to check bid history")
	} else if existing != nil {
		return nil, conflictError(CodeBidAlreadyRecorded, "bid %s is already recorded", req.TxSignature)
	}

	detail, err := s.verifyTransfer(ctx, req, presale, amount)
	if err != nil {
		return nil, err
	}

	// A concurrent request for the same signature cannot reach here thanks
	// to the lock, but a request verified before this one took the lock
	// may have inserted in the meantime.
	if existing, err := s.db.GetPresaleBidBySignature(req.TxSignature); err != nil {
		return nil, internalError(CodeStoreFailure, "failed to re-check bid history")
	} else if existing != nil {
		return nil, conflictError(CodeBidAlreadyRecorded, "bid %s is already recorded", req.TxSignature)
	}

	bid := &models.PresaleBid{
		PresaleID:     presale.ID,
		TokenAddress:  req.TokenAddress,
		WalletAddress: req.WalletAddress,
		Amount:        amount,
		TxSignature:   req.TxSignature,
		BlockTime:     detail.BlockTime,
		Slot:          detail.Slot,
	}
	// Unique constraint on the signature is the final idempotency backstop.
	if err := s.db.CreatePresaleBid(bid); err != nil {
		return nil, conflictError(CodeBidAlreadyRecorded, "bid %s is already recorded", req.TxSignature)
	}

	s.logger.Info("recorded presale bid",
		"token", req.TokenAddress, "wallet", req.WalletAddress, "amount", amount, "signature", req.TxSignature)

	return &RecordBidResult{Signature: req.TxSignature, Amount: amount}, nil
}

// verifyTransfer independently confirms against the ledger that the reported
// signature moved at least the claimed amount of the claimed asset from the
// claimed wallet to the presale escrow, recently. This is what stops a
// client from reporting a fabricated or mismatched transaction.
func (s *bidService) verifyTransfer(ctx context.Context, req RecordBidRequest, presale *models.Presale, amount uint64) (*ledger.TransactionDetail, error) {
	sig, err := solana.SignatureFromBase58(req.TxSignature)
	if err != nil {
		return nil, validationError(CodeInvalidSignature, "malformed transaction signature")
	}

	detail, err := s.ledger.GetTransactionDetail(ctx, sig)
	if err != nil {
		return nil, integrityError(CodeTransferNotVerified, "transaction could not be verified on ledger")
	}
	if detail.BlockTime.IsZero() || s.clock.Now().Sub(detail.BlockTime) > BidRecencyWindow {
		return nil, integrityError(CodeTransferNotVerified, "transaction is older than the accepted window")
	}

	escrow := solana.MustPublicKeyFromBase58(presale.EscrowPublicKey)
	wallet := solana.MustPublicKeyFromBase58(req.WalletAddress)
	asset := solana.MustPublicKeyFromBase58(req.AssetMint)

	var escrowReceived, walletSent int64
	for _, movement := range detail.Movements {
		if !movement.Mint.Equals(asset) {
			continue
		}
		if movement.Owner.Equals(escrow) {
			escrowReceived += movement.Delta
		}
		if movement.Owner.Equals(wallet) {
			walletSent -= movement.Delta
		}
	}
	if escrowReceived < int64(amount) || walletSent < int64(amount) {
		return nil, integrityError(CodeTransferNotVerified,
			"transaction does not transfer %d of %s from %s to the escrow", amount, req.AssetMint, req.WalletAddress)
	}
	return detail, nil
}
