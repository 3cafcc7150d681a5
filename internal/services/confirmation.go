package services

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/launchforge/settlement/internal/ledger"
)

// ConfirmationPolicy bounds the post-submission polling loop. A timeout is
// reported as a failure, never assumed to be a success.
type ConfirmationPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

func DefaultConfirmationPolicy() ConfirmationPolicy {
	return ConfirmationPolicy{Interval: 2 * time.Second, MaxAttempts: 15}
}

var (
	errLedgerRejected      = errors.New("transaction rejected on ledger")
	errConfirmationTimeout = errors.New("confirmation polling timed out")
)

// waitForConfirmation polls the signature status at a fixed interval for a
// bounded number of attempts. Transient status-query errors are retried
// within the same budget.
func waitForConfirmation(ctx context.Context, client ledger.Client, clock clockwork.Clock, sig solana.Signature, policy ConfirmationPolicy) error {
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clock.After(policy.Interval):
			}
		}

		status, err := client.GetSignatureStatus(ctx, sig)
		if err != nil {
			continue
		}
		switch status {
		case ledger.SignatureStatusConfirmed:
			return nil
		case ledger.SignatureStatusFailed:
			return errLedgerRejected
		}
	}
	return errConfirmationTimeout
}
