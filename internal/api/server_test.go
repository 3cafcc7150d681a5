package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/launchforge/settlement/internal/database"
	"github.com/launchforge/settlement/internal/ledger"
	"github.com/launchforge/settlement/internal/models"
	"github.com/launchforge/settlement/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLedger satisfies ledger.Client for handler tests that never reach a
// real submission.
type stubLedger struct{}

func (stubLedger) SubmitTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return solana.Signature{}, fmt.Errorf("not available in handler tests")
}

func (stubLedger) GetSignatureStatus(ctx context.Context, sig solana.Signature) (ledger.SignatureStatus, error) {
	return ledger.SignatureStatusPending, nil
}

func (stubLedger) IsBlockhashValid(ctx context.Context, hash solana.Hash) (bool, error) {
	return true, nil
}

func (stubLedger) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var hash solana.Hash
	copy(hash[:], []byte("handler-test-blockhash-000000000"))
	return hash, nil
}

func (stubLedger) GetTransactionDetail(ctx context.Context, sig solana.Signature) (*ledger.TransactionDetail, error) {
	return nil, fmt.Errorf("not available in handler tests")
}

type apiFixture struct {
	db     *database.Database
	clock  *clockwork.FakeClock
	server *APIServer
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	db, err := database.NewDatabase(":memory:")
	require.NoError(t, err)
	clock := clockwork.NewFakeClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	vault, err := services.NewKeyVault([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	authority, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	protocol, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	locks := services.NewLockTable()
	var lc ledger.Client = stubLedger{}
	oracle := services.NewScheduleOracle(db, 1000, time.Hour, clock)
	policy := services.DefaultConfirmationPolicy()

	vesting := services.NewVestingService(db, services.DefaultVestingDuration, clock, logger)
	server := NewAPIServer(
		services.NewClaimService(db, lc, oracle, locks, authority, protocol.PublicKey(), policy, clock, logger),
		vesting,
		services.NewPresaleService(db, vault, clock, logger),
		services.NewPresaleClaimService(db, lc, vesting, vault, locks, policy, clock, logger),
		services.NewBidService(db, lc, locks, []string{solana.WrappedSol.String()}, clock, logger),
		logger,
	)
	return &apiFixture{db: db, clock: clock, server: server}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.server.App().Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func testAddress(t *testing.T) string {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key.PublicKey().String()
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	resp, body := f.do(t, "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestPresaleEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	token := testAddress(t)

	t.Run("create returns the presale without key material", func(t *testing.T) {
		resp, body := f.do(t, "POST", "/api/presales", map[string]string{
			"token_address":  token,
			"creator_wallet": testAddress(t),
		})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, token, body["token_address"])
		assert.NotEmpty(t, body["escrow_public_key"])
		_, leaked := body["escrow_private_key_enc"]
		assert.False(t, leaked, "encrypted escrow key must never be serialized")
	})

	t.Run("duplicate create conflicts", func(t *testing.T) {
		resp, body := f.do(t, "POST", "/api/presales", map[string]string{
			"token_address":  token,
			"creator_wallet": testAddress(t),
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, string(services.ErrorKindConflict), body["kind"])
	})

	t.Run("vesting requires the wallet parameter", func(t *testing.T) {
		resp, _ := f.do(t, "GET", "/api/presales/"+token+"/vesting", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("vesting for an unlaunched presale is unprocessable", func(t *testing.T) {
		resp, body := f.do(t, "GET", "/api/presales/"+token+"/vesting?wallet="+testAddress(t), nil)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, services.CodePresaleNotLaunched, body["code"])
	})

	t.Run("launch then query vesting", func(t *testing.T) {
		wallet := testAddress(t)
		require.NoError(t, f.db.DB.Create(&models.PresaleBid{
			PresaleID:     1,
			TokenAddress:  token,
			WalletAddress: wallet,
			Amount:        100,
			TxSignature:   "bid-handler-test",
			BlockTime:     f.clock.Now(),
		}).Error)

		resp, _ := f.do(t, "POST", "/api/presales/"+token+"/launch", map[string]string{
			"total_tokens":      "10000",
			"base_mint_address": token,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		f.clock.Advance(168 * time.Hour)
		resp, body := f.do(t, "GET", "/api/presales/"+token+"/vesting?wallet="+wallet, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(10000), body["total_allocated"])
		assert.Equal(t, float64(5000), body["claimable_amount"])
	})

	t.Run("presale claim for an unknown token is not found", func(t *testing.T) {
		resp, body := f.do(t, "POST", "/api/presales/"+testAddress(t)+"/claims/prepare", map[string]string{
			"wallet_address": testAddress(t),
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, services.CodePresaleNotFound, body["code"])
	})
}

func TestClaimEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/claims/prepare", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Content-Type", "application/json")
		resp, err := f.server.App().Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown token", func(t *testing.T) {
		resp, body := f.do(t, "POST", "/api/claims/prepare", map[string]string{
			"token_address":  testAddress(t),
			"wallet_address": testAddress(t),
			"amount":         "100",
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, services.CodeTokenNotFound, body["code"])
	})

	t.Run("cooldown surfaces retry_after_seconds", func(t *testing.T) {
		token := testAddress(t)
		wallet := testAddress(t)
		launchedAt := f.clock.Now().Add(-10 * time.Hour)
		require.NoError(t, f.db.CreateTokenLaunch(&models.TokenLaunch{
			TokenAddress:  token,
			CreatorWallet: wallet,
			LaunchedAt:    launchedAt,
		}))

		resp, prepareBody := f.do(t, "POST", "/api/claims/prepare", map[string]string{
			"token_address":  token,
			"wallet_address": wallet,
			"amount":         "100",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		confirmedAt := f.clock.Now().Add(-time.Hour)
		require.NoError(t, f.db.CreateClaimRecord(&models.ClaimRecord{
			TokenAddress:  token,
			WalletAddress: wallet,
			Amount:        50,
			TxSignature:   "sig-cooldown",
			Status:        models.ClaimStatusConfirmed,
			ConfirmedAt:   &confirmedAt,
		}))

		resp, body := f.do(t, "POST", "/api/claims/confirm", map[string]any{
			"pending_key":        prepareBody["pending_key"],
			"signed_transaction": prepareBody["transaction"],
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, services.CodeCooldownActive, body["code"])
		assert.InDelta(t, (5 * time.Hour).Seconds(), body["retry_after_seconds"], 1)
	})
}

func TestBidEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	token := testAddress(t)
	resp, _ := f.do(t, "POST", "/api/presales", map[string]string{
		"token_address":  token,
		"creator_wallet": testAddress(t),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := f.do(t, "POST", "/api/presales/"+token+"/bids", map[string]string{
		"wallet_address": testAddress(t),
		"tx_signature":   "not-a-signature",
		"amount":         "500",
		"asset_mint":     solana.WrappedSol.String(),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, services.CodeInvalidSignature, body["code"])
}
