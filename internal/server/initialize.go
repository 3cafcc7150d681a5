package server

import (
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/launchforge/settlement/internal/config"
	"github.com/launchforge/settlement/internal/database"
	"github.com/launchforge/settlement/internal/ledger"
	"github.com/launchforge/settlement/internal/services"
)

// Services bundles the wired settlement services.
type Services struct {
	Claim        services.ClaimService
	Vesting      services.VestingService
	Presale      services.PresaleService
	PresaleClaim services.PresaleClaimService
	Bid          services.BidService
}

// InitializeServices wires the full settlement engine: one lock table and one
// pending store per service instance, constructed once per process.
func InitializeServices(cfg *config.Config, db *database.Database, logger *slog.Logger) (*Services, error) {
	vault, err := services.NewKeyVault(cfg.VaultMasterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key vault: %w", err)
	}

	clock := clockwork.NewRealClock()
	locks := services.NewLockTable()
	ledgerClient := ledger.NewRPCClient(cfg.RPCEndpoint)
	oracle := services.NewScheduleOracle(db, cfg.EmissionRatePerInterval, cfg.EmissionInterval, clock)
	policy := services.DefaultConfirmationPolicy()

	vesting := services.NewVestingService(db, services.DefaultVestingDuration, clock, logger)

	return &Services{
		Claim: services.NewClaimService(
			db, ledgerClient, oracle, locks, cfg.AuthorityKey, cfg.ProtocolWallet, policy, clock, logger),
		Vesting: vesting,
		Presale: services.NewPresaleService(db, vault, clock, logger),
		PresaleClaim: services.NewPresaleClaimService(
			db, ledgerClient, vesting, vault, locks, policy, clock, logger),
		Bid: services.NewBidService(db, ledgerClient, locks, cfg.AllowedBidAssets, clock, logger),
	}, nil
}
