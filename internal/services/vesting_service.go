package services

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/launchforge/settlement/internal/database"
	"github.com/launchforge/settlement/internal/models"
	"github.com/launchforge/settlement/internal/utils"
	"gorm.io/gorm"
)

const (
	// DefaultVestingDuration is the linear vesting window from launch.
	DefaultVestingDuration = 336 * time.Hour

	// ClaimThrottle is the minimum gap between two presale claims by the
	// same wallet, independent of how much has vested in between.
	ClaimThrottle = time.Hour
)

// VestingInfo is the full vesting picture for one wallet in one presale.
// NextUnlockTime is absent exactly when a claim is permitted right now.
type VestingInfo struct {
	TotalAllocated  uint64     `json:"total_allocated"`
	TotalClaimed    uint64     `json:"total_claimed"`
	ClaimableAmount uint64     `json:"claimable_amount"`
	VestingProgress float64    `json:"vesting_progress"`
	IsFullyVested   bool       `json:"is_fully_vested"`
	NextUnlockTime  *time.Time `json:"next_unlock_time,omitempty"`
	VestingEndTime  time.Time  `json:"vesting_end_time"`
}

type VestingService interface {
	// GetVestingInfo computes the vesting state, lazily materializing the
	// allocation row on first call.
	GetVestingInfo(ctx context.Context, tokenAddress, walletAddress string) (*VestingInfo, error)
}

type vestingService struct {
	db       *database.Database
	duration time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

func NewVestingService(db *database.Database, duration time.Duration, clock clockwork.Clock, logger *slog.Logger) VestingService {
	if duration <= 0 {
		duration = DefaultVestingDuration
	}
	return &vestingService{db: db, duration: duration, clock: clock, logger: logger}
}

// ProRataAllocation is floor(totalTokens × walletBids ÷ totalRaised). Any
// division remainder is simply never allocated to anyone.
func ProRataAllocation(totalTokens, walletBids, totalRaised uint64) uint64 {
	if totalRaised == 0 || walletBids == 0 {
		return 0
	}
	product := new(big.Int).Mul(new(big.Int).SetUint64(totalTokens), new(big.Int).SetUint64(walletBids))
	return new(big.Int).Div(product, new(big.Int).SetUint64(totalRaised)).Uint64()
}

// VestedAmount applies the linear schedule. Progress is rounded to
// two-decimal-percent precision before multiplying; the dust this can leave
// permanently unvested is observed behavior and deliberately kept.
func VestedAmount(allocation uint64, elapsed, duration time.Duration) (vested uint64, progressPct float64) {
	if elapsed < 0 {
		elapsed = 0
	}
	progress := float64(elapsed) / float64(duration)
	if progress > 1 {
		progress = 1
	}
	progressPct = math.Round(progress*100*100) / 100
	vested = uint64(math.Floor(float64(allocation) * progressPct / 100))
	if vested > allocation {
		vested = allocation
	}
	return vested, progressPct
}

func (s *vestingService) GetVestingInfo(ctx context.Context, tokenAddress, walletAddress string) (*VestingInfo, error) {
	if !utils.IsValidAddress(tokenAddress) || !utils.IsValidAddress(walletAddress) {
		return nil, validationError(CodeInvalidAddress, "malformed address")
	}

	presale, err := s.db.GetPresale(tokenAddress)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError(CodePresaleNotFound, "no presale for token %s", tokenAddress)
	}
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to load presale")
	}
	if presale.Status != models.PresaleStatusLaunched || presale.VestingStartedAt == nil {
		return nil, eligibilityError(CodePresaleNotLaunched, "presale for %s has not launched", tokenAddress)
	}

	claim, err := s.db.GetPresaleClaim(presale.ID, walletAddress)
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to load vesting record")
	}
	if claim == nil {
		claim, err = s.materializeClaim(presale, walletAddress)
		if err != nil {
			return nil, err
		}
	}

	return s.compute(claim), nil
}

// materializeClaim derives the allocation row on first query. A concurrent
// first query loses the unique-index race and re-reads the winner's row.
func (s *vestingService) materializeClaim(presale *models.Presale, walletAddress string) (*models.PresaleClaim, error) {
	totalRaised, err := s.db.SumBids(presale.ID)
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to sum bids")
	}
	walletBids, err := s.db.SumBidsByWallet(presale.ID, walletAddress)
	if err != nil {
		return nil, internalError(CodeStoreFailure, "failed to sum wallet bids")
	}
	if walletBids == 0 {
		return nil, eligibilityError(CodeNoContribution, "wallet did not contribute to this presale")
	}

	claim := &models.PresaleClaim{
		PresaleID:        presale.ID,
		WalletAddress:    walletAddress,
		TokensAllocated:  ProRataAllocation(presale.TotalTokens, walletBids, totalRaised),
		VestingStartedAt: *presale.VestingStartedAt,
	}
	if err := s.db.CreatePresaleClaim(claim); err != nil {
		existing, getErr := s.db.GetPresaleClaim(presale.ID, walletAddress)
		if getErr != nil || existing == nil {
			return nil, internalError(CodeStoreFailure, "failed to materialize vesting record")
		}
		return existing, nil
	}
	s.logger.Info("materialized presale allocation",
		"presale", presale.TokenAddress, "wallet", walletAddress, "allocated", claim.TokensAllocated)
	return claim, nil
}

func (s *vestingService) compute(claim *models.PresaleClaim) *VestingInfo {
	now := s.clock.Now()
	elapsed := now.Sub(claim.VestingStartedAt)
	vested, progressPct := VestedAmount(claim.TokensAllocated, elapsed, s.duration)

	claimable := uint64(0)
	if vested > claim.TokensClaimed {
		claimable = vested - claim.TokensClaimed
	}

	info := &VestingInfo{
		TotalAllocated:  claim.TokensAllocated,
		TotalClaimed:    claim.TokensClaimed,
		ClaimableAmount: claimable,
		VestingProgress: progressPct,
		IsFullyVested:   progressPct >= 100,
		VestingEndTime:  claim.VestingStartedAt.Add(s.duration),
	}

	switch {
	case claim.LastClaimedAt != nil:
		// A prior claim throttles the next one for a full hour regardless
		// of how much has vested since.
		next := claim.LastClaimedAt.Add(ClaimThrottle)
		if now.Before(next) {
			info.NextUnlockTime = &next
		}
	case vested == 0:
		// Nothing vested yet: the next unlock boundary is the next whole
		// hour tick from vesting start.
		if elapsed < 0 {
			elapsed = 0
		}
		ticks := int64(elapsed/time.Hour) + 1
		next := claim.VestingStartedAt.Add(time.Duration(ticks) * time.Hour)
		info.NextUnlockTime = &next
	}
	return info
}
