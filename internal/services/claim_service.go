package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/launchforge/settlement/internal/database"
	"github.com/launchforge/settlement/internal/ledger"
	"github.com/launchforge/settlement/internal/models"
	"github.com/launchforge/settlement/internal/utils"
	"gorm.io/gorm"
)

const (
	// ProtocolSharePercent of every emission claim is reserved for the
	// protocol wallet; the remainder is distributed across splits or falls
	// back to the creator.
	ProtocolSharePercent = 10

	// MaxClaimAmount bounds a single claim request.
	MaxClaimAmount uint64 = 1_000_000_000_000_000

	// ClaimCooldown is the minimum gap between confirmed emission claims on
	// the same token, re-checked under the lock at confirm time.
	ClaimCooldown = 360 * time.Minute

	claimPendingTTL = 5 * time.Minute

	claimLockPrefix = "claim:"
)

type ClaimService interface {
	PrepareClaim(ctx context.Context, req PrepareClaimRequest) (*PrepareClaimResult, error)
	ConfirmClaim(ctx context.Context, req ConfirmClaimRequest) (*ConfirmClaimResult, error)
}

type PrepareClaimRequest struct {
	TokenAddress  string `json:"token_address" validate:"required"`
	WalletAddress string `json:"wallet_address" validate:"required"`
	Amount        string `json:"amount" validate:"required"`
}

// RecipientShare is one line of the claim breakdown returned to the caller.
type RecipientShare struct {
	Wallet string `json:"wallet"`
	Amount uint64 `json:"amount"`
	Label  string `json:"label"`
}

type PrepareClaimResult struct {
	Transaction    []byte           `json:"transaction"`
	PendingKey     string           `json:"pending_key"`
	Breakdown      []RecipientShare `json:"breakdown"`
	ProtocolAmount uint64           `json:"protocol_amount"`
}

type ConfirmClaimRequest struct {
	PendingKey        string `json:"pending_key" validate:"required"`
	SignedTransaction []byte `json:"signed_transaction" validate:"required"`
}

type ConfirmClaimResult struct {
	Signature string           `json:"signature"`
	Breakdown []RecipientShare `json:"breakdown"`
}

// pendingClaim is the prepare-phase state revalidated at confirm time.
type pendingClaim struct {
	TokenAddress   string
	WalletAddress  string
	Amount         uint64
	Breakdown      []RecipientShare
	ProtocolAmount uint64
}

type claimService struct {
	db             *database.Database
	ledger         ledger.Client
	oracle         EmissionOracle
	locks          *LockTable
	pending        *PendingStore[pendingClaim]
	authority      solana.PrivateKey
	protocolWallet solana.PublicKey
	policy         ConfirmationPolicy
	clock          clockwork.Clock
	logger         *slog.Logger
	validator      *validator.Validate
}

func NewClaimService(
	db *database.Database,
	ledgerClient ledger.Client,
	oracle EmissionOracle,
	locks *LockTable,
	authority solana.PrivateKey,
	protocolWallet solana.PublicKey,
	policy ConfirmationPolicy,
	clock clockwork.Clock,
	logger *slog.Logger,
) ClaimService {
	return &claimService{
		db:             db,
		ledger:         ledgerClient,
		oracle:         oracle,
		locks:          locks,
		pending:        NewPendingStore[pendingClaim](claimPendingTTL, clock),
		authority:      authority,
		protocolWallet: protocolWallet,
		policy:         policy,
		clock:          clock,
		logger:         logger,
		validator:      validator.New(),
	}
}

// ComputeClaimSplit distributes an emission claim: a fixed protocol share is
// reserved, the remaining pool goes proportionally to configured splits or
// wholly to the creator when none exist. Integer division remainders accrue
// to the protocol share so the shares always sum to exactly amount.
func ComputeClaimSplit(amount uint64, splits []models.EmissionSplit, creatorWallet string) (breakdown []RecipientShare, protocolAmount uint64) {
	pool := amount * (100 - ProtocolSharePercent) / 100

	var distributed uint64
	if len(splits) == 0 {
		breakdown = append(breakdown, RecipientShare{Wallet: creatorWallet, Amount: pool, Label: "creator"})
		distributed = pool
	} else {
		for _, split := range splits {
			share := pool * uint64(split.Percentage) / 100
			if share == 0 {
				continue
			}
			breakdown = append(breakdown, RecipientShare{Wallet: split.RecipientWallet, Amount: share, Label: split.Label})
			distributed += share
		}
	}

	return breakdown, amount - distributed
}

// authorizeClaim decides whether wallet may claim emissions for the token.
// A verified designation restricts claiming to the verified wallet (or its
// embedded wallet) and blocks the original launcher outright; an unverified
// designation blocks everyone. Without a designation, split holders and the
// creator may claim.
func (s *claimService) authorizeClaim(wallet string, launch *models.TokenLaunch, splits []models.EmissionSplit) error {
	designation, err := s.db.GetDesignatedClaim(launch.TokenAddress)
	if err != nil {
		return internalError(CodeStoreFailure, "failed to load claim designation")
	}

	if designation != nil {
		if designation.VerifiedAt == nil {
			return authorizationError(CodeDesignationPending, "claim rights for this token are pending verification")
		}
		if wallet == designation.OriginalLauncher {
			return authorizationError(CodeLauncherBlocked, "the original launcher can no longer claim this token")
		}
		if wallet != designation.VerifiedWallet && (designation.EmbeddedWallet == "" || wallet != designation.EmbeddedWallet) {
			return authorizationError(CodeNotAuthorized, "wallet is not the verified claimer for this token")
		}
		return nil
	}

	for _, split := range splits {
		if split.RecipientWallet == wallet {
			return nil
		}
	}
	if wallet == launch.CreatorWallet {
		return nil
	}
	return authorizationError(CodeNotAuthorized, "wallet holds no claim rights for this token")
}

func (s *claimService) PrepareClaim(ctx context.Context, req PrepareClaimRequest) (*PrepareClaimResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(CodeInvalidAmount, "missing required fields: %v", err)
	}
	if !utils.IsValidAddress(req.TokenAddress) {
		return nil, validationError(CodeInvalidAddress, "malformed token address")
	}
	if !utils.IsValidAddress(req.WalletAddress) {
		return nil, validationError(CodeInvalidAddress, "malformed wallet address")
	}
	amount, err := utils.ParseAmount(req.Amount, MaxClaimAmount)
	if err != nil {
		return nil, validationError(CodeInvalidAmount, "%v", err)
	}

	launch, err := s.db.GetTokenLaunch(req.TokenAddress)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError(CodeTokenNotFound, "token %s has not launched", req.TokenAddress)
	}
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to load token launch")
	}

	eligibility, err := s.oracle.CalculateClaimEligibility(ctx, req.TokenAddress, launch.LaunchedAt)
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to compute claim eligibility")
	}
	if amount > eligibility.AvailableToClaim {
		return nil, eligibilityError(CodeAmountExceedsLimit,
			"requested %d but only %d is available to claim", amount, eligibility.AvailableToClaim)
	}

	splits, err := s.db.ListEmissionSplits(req.TokenAddress)
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to load emission splits")
	}
	if err := s.authorizeClaim(req.WalletAddress, launch, splits); err != nil {
		return nil, err
	}

	breakdown, protocolAmount := ComputeClaimSplit(amount, splits, launch.CreatorWallet)

	mint := solana.MustPublicKeyFromBase58(req.TokenAddress)
	feePayer := solana.MustPublicKeyFromBase58(req.WalletAddress)
	outputs := make([]ledger.MintOutput, 0, len(breakdown)+1)
	for _, share := range breakdown {
		outputs = append(outputs, ledger.MintOutput{
			Wallet: solana.MustPublicKeyFromBase58(share.Wallet),
			Amount: share.Amount,
			Label:  share.Label,
		})
	}
	outputs = append(outputs, ledger.MintOutput{Wallet: s.protocolWallet, Amount: protocolAmount, Label: "protocol"})

	blockhash, err := s.ledger.LatestBlockhash(ctx)
	if err != nil {
		return nil, ledgerError(CodeSubmissionFailed, "failed to fetch a recent block reference")
	}
	tx, err := ledger.BuildMintTransaction(blockhash, feePayer, mint, s.authority.PublicKey(), outputs)
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to build claim transaction")
	}
	raw, err := ledger.EncodeTransaction(tx)
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to encode claim transaction")
	}

	key := s.pending.Put(pendingClaim{
		TokenAddress:   req.TokenAddress,
		WalletAddress:  req.WalletAddress,
		Amount:         amount,
		Breakdown:      breakdown,
		ProtocolAmount: protocolAmount,
	})

	s.logger.Info("prepared emission claim",
		"token", req.TokenAddress, "wallet", req.WalletAddress, "amount", amount, "recipients", len(outputs))

	return &PrepareClaimResult{
		Transaction:    raw,
		PendingKey:     key,
		Breakdown:      breakdown,
		ProtocolAmount: protocolAmount,
	}, nil
}

func (s *claimService) ConfirmClaim(ctx context.Context, req ConfirmClaimRequest) (*ConfirmClaimResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(CodeInvalidAmount, "missing required fields: %v", err)
	}

	state, ok := s.pending.Get(req.PendingKey)
	if !ok {
		return nil, notFoundError(CodePendingNotFound, "no pending claim for this key; it may have expired")
	}

	// Lock before any further validation to close the race window between
	// concurrent confirms for the same token.
	lockKey := claimLockPrefix + state.TokenAddress
	s.locks.Acquire(lockKey)
	defer s.locks.Release(lockKey)

	if latest, err := s.db.LatestConfirmedClaim(state.TokenAddress); err != nil {
		return nil, internalError(CodeStoreFailure, "failed to check recent claims")
	} else if latest != nil && latest.ConfirmedAt != nil {
		if remaining := ClaimCooldown - s.clock.Now().Sub(*latest.ConfirmedAt); remaining > 0 {
			err := conflictError(CodeCooldownActive, "token was claimed %s ago; retry in %s",
				s.clock.Now().Sub(*latest.ConfirmedAt).Round(time.Second), remaining.Round(time.Second))
			err.RetryAfter = remaining
			return nil, err
		}
	}

	// Pre-record the audit row under a placeholder signature. If this write
	// fails the claim is aborted: fail closed, not open.
	record := &models.ClaimRecord{
		TokenAddress:  state.TokenAddress,
		WalletAddress: state.WalletAddress,
		Amount:        state.Amount,
		TxSignature:   "pending-" + uuid.New().String(),
		Status:        models.ClaimStatusPending,
	}
	if err := s.db.CreateClaimRecord(record); err != nil {
		return nil, internalError(CodeStoreFailure, "failed to pre-record claim")
	}
	// Rejections before submission remove the placeholder so an aborted
	// confirm leaves no partial mutation behind.
	reject := func(err error) (*ConfirmClaimResult, error) {
		if delErr := s.db.DeleteClaimRecord(record.ID); delErr != nil {
			s.logger.Error("failed to remove placeholder claim record", "id", record.ID, "error", delErr)
		}
		return nil, err
	}

	launch, err := s.db.GetTokenLaunch(state.TokenAddress)
	if err != nil {
		return reject(internalError(CodeStoreFailure, "failed to load token launch"))
	}
	eligibility, err := s.oracle.CalculateClaimEligibility(ctx, state.TokenAddress, launch.LaunchedAt)
	if err != nil {
		return reject(internalError(CodeStoreFailure, "failed to recompute claim eligibility"))
	}
	if state.Amount > eligibility.AvailableToClaim {
		return reject(eligibilityError(CodeAmountExceedsLimit,
			"eligibility dropped to %d since prepare", eligibility.AvailableToClaim))
	}

	splits, err := s.db.ListEmissionSplits(state.TokenAddress)
	if err != nil {
		return reject(internalError(CodeStoreFailure, "failed to load emission splits"))
	}
	if err := s.authorizeClaim(state.WalletAddress, launch, splits); err != nil {
		return reject(err)
	}

	tx, err := ledger.DecodeTransaction(req.SignedTransaction)
	if err != nil {
		return reject(integrityError(CodeSignatureInvalid, "transaction bytes do not parse"))
	}

	valid, err := s.ledger.IsBlockhashValid(ctx, tx.Message.RecentBlockhash)
	if err != nil {
		return reject(ledgerError(CodeSubmissionFailed, "failed to verify block reference"))
	}
	if !valid {
		return reject(integrityError(CodeBlockhashExpired, "transaction block reference has expired"))
	}

	wallet := solana.MustPublicKeyFromBase58(state.WalletAddress)
	if err := ledger.VerifySignerSignature(tx, wallet); err != nil {
		return reject(integrityError(CodeSignatureInvalid, "requester signature is missing or invalid"))
	}

	// Re-derive the expected mint outputs deterministically from the stored
	// prepare state; no lookups, nothing taken from the untrusted bytes.
	mint := solana.MustPublicKeyFromBase58(state.TokenAddress)
	expected := make([]ledger.ExpectedMint, 0, len(state.Breakdown)+1)
	for _, share := range state.Breakdown {
		account, err := ledger.AssociatedTokenAccount(solana.MustPublicKeyFromBase58(share.Wallet), mint)
		if err != nil {
			return reject(internalError(CodeStoreFailure, "failed to derive recipient account"))
		}
		expected = append(expected, ledger.ExpectedMint{Destination: account, Amount: share.Amount})
	}
	protocolAccount, err := ledger.AssociatedTokenAccount(s.protocolWallet, mint)
	if err != nil {
		return reject(internalError(CodeStoreFailure, "failed to derive protocol account"))
	}
	expected = append(expected, ledger.ExpectedMint{Destination: protocolAccount, Amount: state.ProtocolAmount})

	if err := ledger.ValidateMintSet(tx, mint, s.authority.PublicKey(), expected); err != nil {
		s.logger.Warn("claim transaction failed instruction validation",
			"token", state.TokenAddress, "wallet", state.WalletAddress, "error", err)
		return reject(integrityError(CodeInstructionMismatch, "%v", err))
	}

	if err := ledger.CounterSign(tx, s.authority); err != nil {
		return reject(integrityError(CodeSignatureInvalid, "failed to attach authority signature"))
	}

	// From here the transaction may reach the ledger, so the audit row stays
	// pending on failure rather than being removed.
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

	now := s.clock.Now()
	if err := s.db.PromoteClaimRecord(record.ID, sig.String(), now); err != nil {
		return nil, internalError(CodeStoreFailure, "claim confirmed on ledger but audit update failed")
	}
	s.pending.Delete(req.PendingKey)

	s.logger.Info("confirmed emission claim",
		"token", state.TokenAddress, "wallet", state.WalletAddress, "amount", state.Amount, "signature", sig.String())

	return &ConfirmClaimResult{Signature: sig.String(), Breakdown: state.Breakdown}, nil
}
