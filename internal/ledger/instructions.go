package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ComputeBudgetProgramID is the compute-budget native program.
var ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

// SPL token program instruction tags.
const (
	tokenInstructionTransfer   = 3
	tokenInstructionMintTo     = 7
	tokenInstructionSyncNative = 17
)

// Instruction is one variant of the closed set of recognized instructions.
// Raw compiled instructions are decoded into this set before any expectation
// matching happens, so the validators below never reason about bytes.
type Instruction interface {
	isInstruction()
}

// MintTo mints Amount tokens of Mint into Destination under Authority.
type MintTo struct {
	Mint        solana.PublicKey
	Destination solana.PublicKey
	Authority   solana.PublicKey
	Amount      uint64
}

// Transfer moves Amount tokens from Source to Destination, authorized by Owner.
type Transfer struct {
	Source      solana.PublicKey
	Destination solana.PublicKey
	Owner       solana.PublicKey
	Amount      uint64
}

// CreateAssociatedAccount creates Wallet's associated token account for Mint.
// Safe to include even when the account already exists.
type CreateAssociatedAccount struct {
	Payer   solana.PublicKey
	Account solana.PublicKey
	Wallet  solana.PublicKey
	Mint    solana.PublicKey
}

// ComputeBudget is a fee/compute directive. Its parameters do not move funds,
// so they are not inspected further.
type ComputeBudget struct{}

// SyncNative reconciles a wrapped-native token account balance. Harmless
// pre-flight, allowed in transfer transactions.
type SyncNative struct {
	Account solana.PublicKey
}

// Unknown is any instruction the decoder does not recognize.
type Unknown struct {
	Program solana.PublicKey
}

func (MintTo) isInstruction()                  {}
func (Transfer) isInstruction()                {}
func (CreateAssociatedAccount) isInstruction() {}
func (ComputeBudget) isInstruction()           {}
func (SyncNative) isInstruction()              {}
func (Unknown) isInstruction()                 {}

// DecodeInstruction decodes one compiled instruction of msg into the closed
// variant set. Malformed account indexes or truncated data are errors, never
// silently Unknown, because the validators must be able to trust the result.
func DecodeInstruction(msg *solana.Message, ix solana.CompiledInstruction) (Instruction, error) {
	account := func(i int) (solana.PublicKey, error) {
		if i >= len(ix.Accounts) {
			return solana.PublicKey{}, fmt.Errorf("instruction references account %d but carries %d accounts", i, len(ix.Accounts))
		}
		idx := ix.Accounts[i]
		if int(idx) >= len(msg.AccountKeys) {
			return solana.PublicKey{}, fmt.Errorf("account index %d out of range", idx)
		}
		return msg.AccountKeys[idx], nil
	}

	if int(ix.ProgramIDIndex) >= len(msg.AccountKeys) {
		return nil, fmt.Errorf("program index %d out of range", ix.ProgramIDIndex)
	}
	program := msg.AccountKeys[ix.ProgramIDIndex]

	switch {
	case program.Equals(solana.TokenProgramID):
		if len(ix.Data) == 0 {
			return nil, fmt.Errorf("token instruction with empty data")
		}
		switch ix.Data[0] {
		case tokenInstructionTransfer:
			if len(ix.Data) < 9 {
				return nil, fmt.Errorf("truncated transfer instruction data")
			}
			source, err := account(0)
			if err != nil {
				return nil, err
			}
			dest, err := account(1)
			if err != nil {
				return nil, err
			}
			owner, err := account(2)
			if err != nil {
				return nil, err
			}
			return Transfer{
				Source:      source,
				Destination: dest,
				Owner:       owner,
				Amount:      binary.LittleEndian.Uint64(ix.Data[1:9]),
			}, nil
		case tokenInstructionMintTo:
			if len(ix.Data) < 9 {
				return nil, fmt.Errorf("truncated mint instruction data")
			}
			mint, err := account(0)
			if err != nil {
				return nil, err
			}
			dest, err := account(1)
			if err != nil {
				return nil, err
			}
			authority, err := account(2)
			if err != nil {
				return nil, err
			}
			return MintTo{
				Mint:        mint,
				Destination: dest,
				Authority:   authority,
				Amount:      binary.LittleEndian.Uint64(ix.Data[1:9]),
			}, nil
		case tokenInstructionSyncNative:
			acct, err := account(0)
			if err != nil {
				return nil, err
			}
			return SyncNative{Account: acct}, nil
		default:
			return Unknown{Program: program}, nil
		}

	case program.Equals(solana.SPLAssociatedTokenAccountProgramID):
		payer, err := account(0)
		if err != nil {
			return nil, err
		}
		acct, err := account(1)
		if err != nil {
			return nil, err
		}
		wallet, err := account(2)
		if err != nil {
			return nil, err
		}
		mint, err := account(3)
		if err != nil {
			return nil, err
		}
		return CreateAssociatedAccount{Payer: payer, Account: acct, Wallet: wallet, Mint: mint}, nil

	case program.Equals(ComputeBudgetProgramID):
		return ComputeBudget{}, nil

	default:
		return Unknown{Program: program}, nil
	}
}

// DecodeInstructions decodes every instruction in the transaction.
func DecodeInstructions(tx *solana.Transaction) ([]Instruction, error) {
	decoded := make([]Instruction, 0, len(tx.Message.Instructions))
	for i, ix := range tx.Message.Instructions {
		ins, err := DecodeInstruction(&tx.Message, ix)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		decoded = append(decoded, ins)
	}
	return decoded, nil
}

// ExpectedMint is one required (destination, amount) mint output.
type ExpectedMint struct {
	Destination solana.PublicKey
	Amount      uint64
}

// ValidateMintSet requires the transaction to contain exactly the expected
// mint instructions for the given mint and authority, in any order, and
// nothing else besides associated-account creation and compute-budget
// directives. This is what stops a client from altering a recipient or an
// amount between prepare and confirm.
func ValidateMintSet(tx *solana.Transaction, mint, authority solana.PublicKey, expected []ExpectedMint) error {
	decoded, err := DecodeInstructions(tx)
	if err != nil {
		return err
	}

	matched := make([]bool, len(expected))
	for i, ins := range decoded {
		switch v := ins.(type) {
		case MintTo:
			if !v.Mint.Equals(mint) {
				return fmt.Errorf("instruction %d mints unexpected token %s", i, v.Mint)
			}
			if !v.Authority.Equals(authority) {
				return fmt.Errorf("instruction %d uses unexpected mint authority %s", i, v.Authority)
			}
			found := false
			for j, exp := range expected {
				if matched[j] {
					continue
				}
				if v.Destination.Equals(exp.Destination) && v.Amount == exp.Amount {
					matched[j] = true
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("instruction %d mints %d to %s which matches no expected output", i, v.Amount, v.Destination)
			}
		case CreateAssociatedAccount:
			if !v.Mint.Equals(mint) {
				return fmt.Errorf("instruction %d creates an account for unexpected token %s", i, v.Mint)
			}
		case ComputeBudget:
			// allowed
		default:
			return fmt.Errorf("instruction %d has unexpected type %T", i, ins)
		}
	}

	for j, ok := range matched {
		if !ok {
			return fmt.Errorf("expected mint of %d to %s is missing", expected[j].Amount, expected[j].Destination)
		}
	}
	return nil
}

// ExpectedTransfer is the single required escrow movement.
type ExpectedTransfer struct {
	Source      solana.PublicKey
	Destination solana.PublicKey
	Owner       solana.PublicKey
	Amount      uint64
}

// ValidateSingleTransfer requires exactly one transfer matching exp and
// rejects every instruction outside a small allow-list (compute-budget
// directives, associated-account creation, native-balance sync).
func ValidateSingleTransfer(tx *solana.Transaction, exp ExpectedTransfer) error {
	decoded, err := DecodeInstructions(tx)
	if err != nil {
		return err
	}

	transfers := 0
	for i, ins := range decoded {
		switch v := ins.(type) {
		case Transfer:
			if !v.Source.Equals(exp.Source) || !v.Destination.Equals(exp.Destination) {
				return fmt.Errorf("instruction %d transfers between unexpected accounts %s -> %s", i, v.Source, v.Destination)
			}
			if !v.Owner.Equals(exp.Owner) {
				return fmt.Errorf("instruction %d is authorized by unexpected owner %s", i, v.Owner)
			}
			if v.Amount != exp.Amount {
				return fmt.Errorf("instruction %d transfers %d, expected %d", i, v.Amount, exp.Amount)
			}
			transfers++
		case CreateAssociatedAccount, ComputeBudget, SyncNative:
			// allowed
		default:
			return fmt.Errorf("instruction %d has unexpected type %T", i, ins)
		}
	}

	if transfers != 1 {
		return fmt.Errorf("expected exactly one transfer instruction, found %d", transfers)
	}
	return nil
}
