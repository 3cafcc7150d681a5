package services

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/launchforge/settlement/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleOracle(t *testing.T) {
	token := newAddress(t)
	wallet := newAddress(t)

	t.Run("unlocks per whole elapsed interval", func(t *testing.T) {
		db := setupTestDB(t)
		clock := clockwork.NewFakeClock()
		oracle := NewScheduleOracle(db, 1000, time.Hour, clock)
		launchTime := clock.Now()
		clock.Advance(3*time.Hour + 30*time.Minute)

		eligibility, err := oracle.CalculateClaimEligibility(context.Background(), token, launchTime)
		require.NoError(t, err)
		assert.Equal(t, uint64(3000), eligibility.AvailableToClaim)
		assert.Equal(t, uint64(0), eligibility.TotalClaimed)
		require.NotNil(t, eligibility.NextUnlockTime)
		assert.Equal(t, launchTime.Add(4*time.Hour), *eligibility.NextUnlockTime)
	})

	t.Run("confirmed claims reduce availability", func(t *testing.T) {
		db := setupTestDB(t)
		clock := clockwork.NewFakeClock()
		oracle := NewScheduleOracle(db, 1000, time.Hour, clock)
		launchTime := clock.Now()
		clock.Advance(3 * time.Hour)

		confirmedAt := clock.Now()
		require.NoError(t, db.CreateClaimRecord(&models.ClaimRecord{
			TokenAddress:  token,
			WalletAddress: wallet,
			Amount:        1200,
			TxSignature:   "sig-confirmed",
			Status:        models.ClaimStatusConfirmed,
			ConfirmedAt:   &confirmedAt,
		}))

		eligibility, err := oracle.CalculateClaimEligibility(context.Background(), token, launchTime)
		require.NoError(t, err)
		assert.Equal(t, uint64(1200), eligibility.TotalClaimed)
		assert.Equal(t, uint64(1800), eligibility.AvailableToClaim)
	})

	t.Run("pending claims do not count", func(t *testing.T) {
		db := setupTestDB(t)
		clock := clockwork.NewFakeClock()
		oracle := NewScheduleOracle(db, 1000, time.Hour, clock)
		launchTime := clock.Now()
		clock.Advance(2 * time.Hour)

		require.NoError(t, db.CreateClaimRecord(&models.ClaimRecord{
			TokenAddress:  token,
			WalletAddress: wallet,
			Amount:        500,
			TxSignature:   "sig-pending",
			Status:        models.ClaimStatusPending,
		}))

		eligibility, err := oracle.CalculateClaimEligibility(context.Background(), token, launchTime)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), eligibility.TotalClaimed)
		assert.Equal(t, uint64(2000), eligibility.AvailableToClaim)
	})

	t.Run("nothing unlocks before the first interval", func(t *testing.T) {
		db := setupTestDB(t)
		clock := clockwork.NewFakeClock()
		oracle := NewScheduleOracle(db, 1000, time.Hour, clock)
		launchTime := clock.Now()
		clock.Advance(10 * time.Minute)

		eligibility, err := oracle.CalculateClaimEligibility(context.Background(), token, launchTime)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), eligibility.AvailableToClaim)
		require.NotNil(t, eligibility.NextUnlockTime)
		assert.Equal(t, launchTime.Add(time.Hour), *eligibility.NextUnlockTime)
	})
}
