package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
)

// MintOutput is one recipient of an emission claim.
type MintOutput struct {
	Wallet solana.PublicKey
	Amount uint64
	Label  string
}

// AssociatedTokenAccount derives the canonical token account for a wallet and
// mint. Purely deterministic, no lookups.
func AssociatedTokenAccount(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	account, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive token account for %s: %w", wallet, err)
	}
	return account, nil
}

// BuildMintTransaction builds the unsigned emission-claim transaction: one
// idempotent account creation per distinct recipient followed by one mint per
// recipient with its exact amount. The requesting wallet pays the fee.
func BuildMintTransaction(blockhash solana.Hash, feePayer, mint, mintAuthority solana.PublicKey, outputs []MintOutput) (*solana.Transaction, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("mint transaction requires at least one output")
	}

	var instructions []solana.Instruction
	seen := make(map[solana.PublicKey]bool)
	for _, out := range outputs {
		if seen[out.Wallet] {
			continue
		}
		seen[out.Wallet] = true
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(feePayer, out.Wallet, mint).Build())
	}
	for _, out := range outputs {
		destination, err := AssociatedTokenAccount(out.Wallet, mint)
		if err != nil {
			return nil, err
		}
		instructions = append(instructions,
			token.NewMintToInstruction(out.Amount, mint, destination, mintAuthority, nil).Build())
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, fmt.Errorf("failed to build mint transaction: %w", err)
	}
	return tx, nil
}

// BuildTransferTransaction builds the unsigned presale-claim transaction:
// account creations for the recipient's token account as needed and a single
// transfer of amount from the escrow's token account to the recipient's. The
// recipient pays the fee.
func BuildTransferTransaction(blockhash solana.Hash, feePayer, mint, escrowOwner, recipient solana.PublicKey, amount uint64) (*solana.Transaction, error) {
	source, err := AssociatedTokenAccount(escrowOwner, mint)
	if err != nil {
		return nil, err
	}
	destination, err := AssociatedTokenAccount(recipient, mint)
	if err != nil {
		return nil, err
	}

	instructions := []solana.Instruction{
		associatedtokenaccount.NewCreateInstruction(feePayer, recipient, mint).Build(),
		token.NewTransferInstruction(amount, source, destination, escrowOwner, nil).Build(),
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer transaction: %w", err)
	}
	return tx, nil
}
