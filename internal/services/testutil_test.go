package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/launchforge/settlement/internal/database"
	"github.com/launchforge/settlement/internal/ledger"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.NewDatabase(":memory:")
	require.NoError(t, err, "Failed to open in-memory database")
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLedger is an in-memory ledger.Client. Unless configured otherwise it
// hands out a fixed blockhash, reports it valid, and confirms every
// submission on the first status poll.
type fakeLedger struct {
	mu sync.Mutex

	blockhash        solana.Hash
	blockhashInvalid bool
	submitErr        error
	submitted        []*solana.Transaction
	statuses         map[solana.Signature]ledger.SignatureStatus
	detail           *ledger.TransactionDetail
	detailErr        error
}

func newFakeLedger() *fakeLedger {
	var hash solana.Hash
	copy(hash[:], []byte("test-blockhash-0000000000000000"))
	return &fakeLedger{
		blockhash: hash,
		statuses:  make(map[solana.Signature]ledger.SignatureStatus),
	}
}

func (f *fakeLedger) SubmitTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return solana.Signature{}, f.submitErr
	}
	f.submitted = append(f.submitted, tx)
	return tx.Signatures[0], nil
}

func (f *fakeLedger) GetSignatureStatus(ctx context.Context, sig solana.Signature) (ledger.SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status, ok := f.statuses[sig]; ok {
		return status, nil
	}
	return ledger.SignatureStatusConfirmed, nil
}

func (f *fakeLedger) IsBlockhashValid(ctx context.Context, hash solana.Hash) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.blockhashInvalid, nil
}

func (f *fakeLedger) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockhash, nil
}

func (f *fakeLedger) GetTransactionDetail(ctx context.Context, sig solana.Signature) (*ledger.TransactionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	return f.detail, nil
}

func (f *fakeLedger) submittedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

// signAs decodes prepared transaction bytes, signs as key, and re-encodes.
func signAs(t *testing.T, raw []byte, key solana.PrivateKey) []byte {
	t.Helper()
	tx, err := ledger.DecodeTransaction(raw)
	require.NoError(t, err)
	require.NoError(t, ledger.CounterSign(tx, key))
	signed, err := ledger.EncodeTransaction(tx)
	require.NoError(t, err)
	return signed
}
