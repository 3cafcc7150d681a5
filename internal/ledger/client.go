package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type SignatureStatus string

const (
	SignatureStatusPending   SignatureStatus = "pending"
	SignatureStatusConfirmed SignatureStatus = "confirmed"
	SignatureStatusFailed    SignatureStatus = "failed"
)

// TokenMovement is the net balance change of one (owner, mint) pair within a
// confirmed transaction. Positive delta means the owner received tokens.
type TokenMovement struct {
	Owner solana.PublicKey
	Mint  solana.PublicKey
	Delta int64
}

// TransactionDetail is the parsed view of a confirmed transaction used for
// independent bid verification.
type TransactionDetail struct {
	Slot      uint64
	BlockTime time.Time
	Movements []TokenMovement
}

// Client is the narrow interface to the transaction-submission service. The
// settlement engine never talks to the ledger any other way, so tests can
// substitute a fake.
type Client interface {
	SubmitTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetSignatureStatus(ctx context.Context, sig solana.Signature) (SignatureStatus, error)
	IsBlockhashValid(ctx context.Context, hash solana.Hash) (bool, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	GetTransactionDetail(ctx context.Context, sig solana.Signature) (*TransactionDetail, error)
}

type rpcClient struct {
	rpc *rpc.Client
}

func NewRPCClient(endpoint string) Client {
	return &rpcClient{rpc: rpc.New(endpoint)}
}

func (c *rpcClient) SubmitTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to submit transaction: %w", err)
	}
	return sig, nil
}

func (c *rpcClient) GetSignatureStatus(ctx context.Context, sig solana.Signature) (SignatureStatus, error) {
	out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return SignatureStatusPending, fmt.Errorf("failed to fetch signature status: %w", err)
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return SignatureStatusPending, nil
	}
	status := out.Value[0]
	if status.Err != nil {
		return SignatureStatusFailed, nil
	}
	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return SignatureStatusConfirmed, nil
	default:
		return SignatureStatusPending, nil
	}
}

func (c *rpcClient) IsBlockhashValid(ctx context.Context, hash solana.Hash) (bool, error) {
	out, err := c.rpc.IsBlockhashValid(ctx, hash, rpc.CommitmentConfirmed)
	if err != nil {
		return false, fmt.Errorf("failed to check blockhash validity: %w", err)
	}
	return out.Value, nil
}

func (c *rpcClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to fetch latest blockhash: %w", err)
	}
	return out.Value.Blockhash, nil
}

func (c *rpcClient) GetTransactionDetail(ctx context.Context, sig solana.Signature) (*TransactionDetail, error) {
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction: %w", err)
	}
	if out == nil || out.Meta == nil {
		return nil, fmt.Errorf("transaction %s not found", sig)
	}
	if out.Meta.Err != nil {
		return nil, fmt.Errorf("transaction %s failed on ledger", sig)
	}

	detail := &TransactionDetail{Slot: out.Slot}
	if out.BlockTime != nil {
		detail.BlockTime = out.BlockTime.Time()
	}

	// Net token movement per (owner, mint) from pre/post balances.
	type key struct {
		owner solana.PublicKey
		mint  solana.PublicKey
	}
	deltas := make(map[key]int64)
	for _, bal := range out.Meta.PreTokenBalances {
		if bal.Owner == nil {
			continue
		}
		amount, err := strconv.ParseInt(bal.UiTokenAmount.Amount, 10, 64)
		if err != nil {
			continue
		}
		deltas[key{*bal.Owner, bal.Mint}] -= amount
	}
	for _, bal := range out.Meta.PostTokenBalances {
		if bal.Owner == nil {
			continue
		}
		amount, err := strconv.ParseInt(bal.UiTokenAmount.Amount, 10, 64)
		if err != nil {
			continue
		}
		deltas[key{*bal.Owner, bal.Mint}] += amount
	}
	for k, delta := range deltas {
		detail.Movements = append(detail.Movements, TokenMovement{Owner: k.owner, Mint: k.mint, Delta: delta})
	}
	return detail, nil
}
