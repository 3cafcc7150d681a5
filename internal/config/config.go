package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
)

// Config is the process configuration, read from the environment. A .env
// file is honored when present.
type Config struct {
	Port        int
	DatabaseDSN string
	RPCEndpoint string
	Verbose     bool

	// AuthorityKey co-signs emission mints; its public key is every
	// launched token's mint authority.
	AuthorityKey   solana.PrivateKey
	ProtocolWallet solana.PublicKey

	// VaultMasterKey encrypts escrow private keys at rest.
	VaultMasterKey []byte

	AllowedBidAssets []string

	EmissionRatePerInterval uint64
	EmissionInterval        time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    8080,
		DatabaseDSN:             getEnv("DATABASE_DSN", "settlement.db"),
		RPCEndpoint:             getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		Verbose:                 os.Getenv("VERBOSE") == "true",
		EmissionRatePerInterval: 1_000_000,
		EmissionInterval:        time.Hour,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	authority := os.Getenv("AUTHORITY_PRIVATE_KEY")
	if authority == "" {
		return nil, fmt.Errorf("AUTHORITY_PRIVATE_KEY is required")
	}
	key, err := solana.PrivateKeyFromBase58(authority)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTHORITY_PRIVATE_KEY: %w", err)
	}
	cfg.AuthorityKey = key

	protocol := os.Getenv("PROTOCOL_WALLET")
	if protocol == "" {
		return nil, fmt.Errorf("PROTOCOL_WALLET is required")
	}
	wallet, err := solana.PublicKeyFromBase58(protocol)
	if err != nil {
		return nil, fmt.Errorf("invalid PROTOCOL_WALLET: %w", err)
	}
	cfg.ProtocolWallet = wallet

	vaultKey := os.Getenv("VAULT_MASTER_KEY")
	if vaultKey == "" {
		return nil, fmt.Errorf("VAULT_MASTER_KEY is required")
	}
	master, err := hex.DecodeString(vaultKey)
	if err != nil || len(master) != 32 {
		return nil, fmt.Errorf("VAULT_MASTER_KEY must be 32 bytes of hex")
	}
	cfg.VaultMasterKey = master

	if assets := os.Getenv("ALLOWED_BID_ASSETS"); assets != "" {
		for _, asset := range strings.Split(assets, ",") {
			asset = strings.TrimSpace(asset)
			if asset == "" {
				continue
			}
			if _, err := solana.PublicKeyFromBase58(asset); err != nil {
				return nil, fmt.Errorf("invalid bid asset %q: %w", asset, err)
			}
			cfg.AllowedBidAssets = append(cfg.AllowedBidAssets, asset)
		}
	} else {
		// Wrapped native mint by default.
		cfg.AllowedBidAssets = []string{"So11111111111111111111111111111111111111112"}
	}

	if rate := os.Getenv("EMISSION_RATE_PER_INTERVAL"); rate != "" {
		r, err := strconv.ParseUint(rate, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid EMISSION_RATE_PER_INTERVAL: %w", err)
		}
		cfg.EmissionRatePerInterval = r
	}
	if interval := os.Getenv("EMISSION_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid EMISSION_INTERVAL: %q", interval)
		}
		cfg.EmissionInterval = d
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
