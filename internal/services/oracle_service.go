package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/launchforge/settlement/internal/database"
)

// ClaimEligibility is the oracle's answer for "how much exists to claim
// right now" for a token.
type ClaimEligibility struct {
	TotalClaimed     uint64     `json:"total_claimed"`
	AvailableToClaim uint64     `json:"available_to_claim"`
	NextUnlockTime   *time.Time `json:"next_unlock_time,omitempty"`
}

// EmissionOracle is treated as ground truth for emission availability. The
// settlement engine never second-guesses it.
type EmissionOracle interface {
	CalculateClaimEligibility(ctx context.Context, tokenAddress string, launchTime time.Time) (*ClaimEligibility, error)
}

// scheduleOracle unlocks a fixed amount per elapsed interval since launch,
// minus whatever has already been minted and confirmed.
type scheduleOracle struct {
	db              *database.Database
	ratePerInterval uint64
	interval        time.Duration
	clock           clockwork.Clock
}

func NewScheduleOracle(db *database.Database, ratePerInterval uint64, interval time.Duration, clock clockwork.Clock) EmissionOracle {
	return &scheduleOracle{
		db:              db,
		ratePerInterval: ratePerInterval,
		interval:        interval,
		clock:           clock,
	}
}

func (o *scheduleOracle) CalculateClaimEligibility(ctx context.Context, tokenAddress string, launchTime time.Time) (*ClaimEligibility, error) {
	claimed, err := o.db.SumConfirmedClaims(tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to sum confirmed claims: %w", err)
	}

	elapsed := o.clock.Now().Sub(launchTime)
	if elapsed < 0 {
		elapsed = 0
	}
	intervals := uint64(elapsed / o.interval)
	unlocked := intervals * o.ratePerInterval

	available := uint64(0)
	if unlocked > claimed {
		available = unlocked - claimed
	}

	next := launchTime.Add(time.Duration(intervals+1) * o.interval)
	return &ClaimEligibility{
		TotalClaimed:     claimed,
		AvailableToClaim: available,
		NextUnlockTime:   &next,
	}, nil
}
