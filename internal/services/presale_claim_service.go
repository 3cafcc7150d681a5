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
	presaleClaimPendingTTL = 5 * time.Minute
	presaleLockPrefix      = "presale:"
)

type PresaleClaimService interface {
	PreparePresaleClaim(ctx context.Context, req PreparePresaleClaimRequest) (*PreparePresaleClaimResult, error)
	ConfirmPresaleClaim(ctx context.Context, req ConfirmPresaleClaimRequest) (*ConfirmPresaleClaimResult, error)
}

type PreparePresaleClaimRequest struct {
	TokenAddress  string `json:"token_address" validate:"required"`
	WalletAddress string `json:"wallet_address" validate:"required"`
}

type PreparePresaleClaimResult struct {
	Transaction []byte `json:"transaction"`
	PendingKey  string `json:"pending_key"`
	Amount      uint64 `json:"amount"`
}

type ConfirmPresaleClaimRequest struct {
	PendingKey        string `json:"pending_key" validate:"required"`
	SignedTransaction []byte `json:"signed_transaction" validate:"required"`
}

type ConfirmPresaleClaimResult struct {
	Signature string `json:"signature"`
	Amount    uint64 `json:"amount"`
}

// pendingPresaleClaim references the presale row rather than carrying key
// material; the escrow private key is only decrypted at confirm time, after
// every check has passed.
type pendingPresaleClaim struct {
	TokenAddress  string
	WalletAddress string
	PresaleID     uint
	Amount        uint64
}

type presaleClaimService struct {
	db        *database.Database
	ledger    ledger.Client
	vesting   VestingService
	vault     KeyVault
	locks     *LockTable
	pending   *PendingStore[pendingPresaleClaim]
	policy    ConfirmationPolicy
	clock     clockwork.Clock
	logger    *slog.Logger
	validator *validator.Validate
}

func NewPresaleClaimService(
	db *database.Database,
	ledgerClient ledger.Client,
	vesting VestingService,
	vault KeyVault,
	locks *LockTable,
	policy ConfirmationPolicy,
	clock clockwork.Clock,
	logger *slog.Logger,
) PresaleClaimService {
	return &presaleClaimService{
		db:        db,
		ledger:    ledgerClient,
		vesting:   vesting,
		vault:     vault,
		locks:     locks,
		pending:   NewPendingStore[pendingPresaleClaim](presaleClaimPendingTTL, clock),
		policy:    policy,
		clock:     clock,
		logger:    logger,
		validator: validator.New(),
	}
}

// checkUnlockGate returns the claimable amount, rejecting when the vesting
// throttle or the first-unlock boundary still gates the wallet.
func (s *presaleClaimService) checkUnlockGate(ctx context.Context, tokenAddress, walletAddress string) (uint64, error) {
	info, err := s.vesting.GetVestingInfo(ctx, tokenAddress, walletAddress)
	if err != nil {
		return 0, err
	}
	if info.NextUnlockTime != nil {
		gateErr := eligibilityError(CodeNotYetUnlocked, "next claim unlocks at %s", info.NextUnlockTime.UTC().Format(time.RFC3339))
		gateErr.RetryAfter = info.NextUnlockTime.Sub(s.clock.Now())
		return 0, gateErr
	}
	if info.ClaimableAmount == 0 {
		return 0, eligibilityError(CodeNothingToClaim, "nothing has vested beyond what was already claimed")
	}
	return info.ClaimableAmount, nil
}

func (s *presaleClaimService) PreparePresaleClaim(ctx context.Context, req PreparePresaleClaimRequest) (*PreparePresaleClaimResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(CodeInvalidAddress, "missing required fields: %v", err)
	}
	if !utils.IsValidAddress(req.TokenAddress) || !utils.IsValidAddress(req.WalletAddress) {
		return nil, validationError(CodeInvalidAddress, "malformed address")
	}

	presale, err := s.db.GetPresale(req.TokenAddress)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError(CodePresaleNotFound, "no presale for token %s", req.TokenAddress)
	}
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to load presale")
	}

	claimable, err := s.checkUnlockGate(ctx, req.TokenAddress, req.WalletAddress)
	if err != nil {
		return nil, err
	}

	// Only the public half of the escrow key is needed here.
	escrowOwner, err := solana.PublicKeyFromBase58(presale.EscrowPublicKey)
	if err != nil {
		return nil, internalError(CodeStoreFailure, "stored escrow key is malformed")
	}

	mint := solana.MustPublicKeyFromBase58(req.TokenAddress)
	requester := solana.MustPublicKeyFromBase58(req.WalletAddress)

	blockhash, err := s.ledger.LatestBlockhash(ctx)
	if err != nil {
		return nil, ledgerError(CodeSubmissionFailed, "failed to fetch a recent block reference")
	}
	tx, err := ledger.BuildTransferTransaction(blockhash, requester, mint, escrowOwner, requester, claimable)
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to build claim transaction")
	}
	raw, err := ledger.EncodeTransaction(tx)
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to encode claim transaction")
	}

	key := s.pending.Put(pendingPresaleClaim{
		TokenAddress:  req.TokenAddress,
		WalletAddress: req.WalletAddress,
		PresaleID:     presale.ID,
		Amount:        claimable,
	})

	s.logger.Info("prepared presale claim",
		"token", req.TokenAddress, "wallet", req.WalletAddress, "amount", claimable)

	return &PreparePresaleClaimResult{Transaction: raw, PendingKey: key, Amount: claimable}, nil
}

func (s *presaleClaimService) ConfirmPresaleClaim(ctx context.Context, req ConfirmPresaleClaimRequest) (*ConfirmPresaleClaimResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(CodeInvalidAddress, "missing required fields: %v", err)
	}

	state, ok := s.pending.Get(req.PendingKey)
	if !ok {
		return nil, notFoundError(CodePendingNotFound, "no pending presale claim for this key; it may have expired")
	}

	lockKey := presaleLockPrefix + state.TokenAddress
	s.locks.Acquire(lockKey)
	defer s.locks.Release(lockKey)

	// The gate may have shifted since prepare; re-check under the lock.
	claimable, err := s.checkUnlockGate(ctx, state.TokenAddress, state.WalletAddress)
	if err != nil {
		return nil, err
	}
	// Claimable shrinking between prepare and confirm should not happen;
	// reject rather than release more than has vested.
	if claimable < state.Amount {
		return nil, eligibilityError(CodeClaimableDecreased,
			"claimable dropped from %d to %d since prepare", state.Amount, claimable)
	}

	presale, err := s.db.GetPresale(state.TokenAddress)
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to load presale")
	}
	claim, err := s.db.GetPresaleClaim(state.PresaleID, state.WalletAddress)
	if err != nil || claim == nil {
		return nil, internalError(CodeStoreFailure, "failed to load vesting record")
	}

	tx, err := ledger.DecodeTransaction(req.SignedTransaction)
	if err != nil {
		return nil, integrityError(CodeSignatureInvalid, "transaction bytes do not parse")
	}

	valid, err := s.ledger.IsBlockhashValid(ctx, tx.Message.RecentBlockhash)
	if err != nil {
		return nil, ledgerError(CodeSubmissionFailed, "failed to verify block reference")
	}
	if !valid {
		return nil, integrityError(CodeBlockhashExpired, "transaction block reference has expired")
	}

	requester := solana.MustPublicKeyFromBase58(state.WalletAddress)
	if err := ledger.VerifySignerSignature(tx, requester); err != nil {
		return nil, integrityError(CodeSignatureInvalid, "requester signature is missing or invalid")
	}

	escrowOwner, err := solana.PublicKeyFromBase58(presale.EscrowPublicKey)
	if err != nil {
		return nil, internalError(CodeStoreFailure, "stored escrow key is malformed")
	}
	mint := solana.MustPublicKeyFromBase58(state.TokenAddress)
	source, err := ledger.AssociatedTokenAccount(escrowOwner, mint)
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to derive escrow account")
	}
	destination, err := ledger.AssociatedTokenAccount(requester, mint)
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to derive recipient account")
	}

	if err := ledger.ValidateSingleTransfer(tx, ledger.ExpectedTransfer{
		Source:      source,
		Destination: destination,
		Owner:       escrowOwner,
		Amount:      state.Amount,
	}); err != nil {
		s.logger.Warn("presale claim failed instruction validation",
			"token", state.TokenAddress, "wallet", state.WalletAddress, "error", err)
		return nil, integrityError(CodeInstructionMismatch, "%v", err)
	}

	// All checks passed; only now is the escrow private key decrypted.
	escrowBytes, err := s.vault.Decrypt(presale.EscrowPrivateKeyEnc)
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to decrypt escrow key")
	}
	escrowKey := solana.PrivateKey(escrowBytes)
	if !escrowKey.PublicKey().Equals(escrowOwner) {
		return nil, internalError(CodeStoreFailure, "decrypted escrow key does not match stored public key")
	}

	if err := ledger.CounterSign(tx, escrowKey); err != nil {
		return nil, integrityError(CodeSignatureInvalid, "failed to attach escrow signature")
	}

	sig, err := s.ledger.SubmitTransaction(ctx, tx)
	if err != nil {
		return nil, ledgerError(CodeSubmissionFailed, "transaction submission failed")
	}
	if err := waitForConfirmation(ctx, s.ledger, s.clock, sig, s.policy); err != nil {
		if errors.Is(err, errConfirmationTimeout) {
			return nil, ledgerError(CodeConfirmationTimeout, "confirmation not observed for %s", sig)
		}
		return nil, ledgerError(CodeLedgerRejected, "transaction %s was rejected on ledger", sig)
	}

	// Unique signature plus the pre-insert check make a replayed confirm a
	// no-op on the audit trail.
	if existing, err := s.db.GetPresaleClaimTransactionBySignature(sig.String()); err != nil {
		return nil, internalError(CodeStoreFailure, "failed to check withdrawal history")
	} else if existing != nil {
		return nil, conflictError(CodeClaimAlreadyExists, "withdrawal %s is already recorded", sig)
	}
	if err := s.db.RecordPresaleWithdrawal(claim.ID, &models.PresaleClaimTransaction{
		PresaleID:     state.PresaleID,
		WalletAddress: state.WalletAddress,
		Amount:        state.Amount,
		TxSignature:   sig.String(),
		ConfirmedAt:   s.clock.Now(),
	}); err != nil {
		return nil, internalError(CodeStoreFailure, "withdrawal confirmed on ledger but audit write failed")
	}
	s.pending.Delete(req.PendingKey)

	s.logger.Info("confirmed presale claim",
		"token", state.TokenAddress, "wallet", state.WalletAddress, "amount", state.Amount, "signature", sig.String())

	return &ConfirmPresaleClaimResult{Signature: sig.String(), Amount: state.Amount}, nil
}
