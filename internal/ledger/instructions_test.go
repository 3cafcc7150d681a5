package ledger

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) solana.PublicKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key.PublicKey()
}

func testBlockhash() solana.Hash {
	var hash solana.Hash
	copy(hash[:], []byte("blockhash-for-ledger-tests-00000"))
	return hash
}

func TestDecodeInstructions(t *testing.T) {
	payer := randomKey(t)
	mint := randomKey(t)
	authority := randomKey(t)
	recipient := randomKey(t)

	t.Run("mint transaction decodes to creations and mints", func(t *testing.T) {
		tx, err := BuildMintTransaction(testBlockhash(), payer, mint, authority, []MintOutput{
			{Wallet: payer, Amount: 900},
			{Wallet: recipient, Amount: 100},
		})
		require.NoError(t, err)

		decoded, err := DecodeInstructions(tx)
		require.NoError(t, err)
		require.Len(t, decoded, 4)

		create, ok := decoded[0].(CreateAssociatedAccount)
		require.True(t, ok)
		assert.Equal(t, mint, create.Mint)
		assert.Equal(t, payer, create.Wallet)

		minted, ok := decoded[2].(MintTo)
		require.True(t, ok)
		assert.Equal(t, mint, minted.Mint)
		assert.Equal(t, authority, minted.Authority)
		assert.Equal(t, uint64(900), minted.Amount)
		expectedDest, err := AssociatedTokenAccount(payer, mint)
		require.NoError(t, err)
		assert.Equal(t, expectedDest, minted.Destination)
	})

	t.Run("transfer transaction decodes to creation and transfer", func(t *testing.T) {
		escrow := randomKey(t)
		tx, err := BuildTransferTransaction(testBlockhash(), recipient, mint, escrow, recipient, 5000)
		require.NoError(t, err)

		decoded, err := DecodeInstructions(tx)
		require.NoError(t, err)
		require.Len(t, decoded, 2)

		transfer, ok := decoded[1].(Transfer)
		require.True(t, ok)
		assert.Equal(t, escrow, transfer.Owner)
		assert.Equal(t, uint64(5000), transfer.Amount)
		source, err := AssociatedTokenAccount(escrow, mint)
		require.NoError(t, err)
		assert.Equal(t, source, transfer.Source)
	})

	t.Run("truncated token instruction data is an error", func(t *testing.T) {
		account, err := AssociatedTokenAccount(recipient, mint)
		require.NoError(t, err)
		ix := solana.NewInstruction(solana.TokenProgramID, solana.AccountMetaSlice{
			solana.Meta(mint),
			solana.Meta(account).WRITE(),
			solana.Meta(authority).SIGNER(),
		}, []byte{7, 1})
		tx, err := solana.NewTransaction([]solana.Instruction{ix}, testBlockhash(), solana.TransactionPayer(payer))
		require.NoError(t, err)

		_, err = DecodeInstructions(tx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "truncated")
	})

	t.Run("unrecognized program decodes to Unknown", func(t *testing.T) {
		ix := solana.NewInstruction(solana.MemoProgramID, solana.AccountMetaSlice{}, []byte("hello"))
		tx, err := solana.NewTransaction([]solana.Instruction{ix}, testBlockhash(), solana.TransactionPayer(payer))
		require.NoError(t, err)

		decoded, err := DecodeInstructions(tx)
		require.NoError(t, err)
		require.Len(t, decoded, 1)
		unknown, ok := decoded[0].(Unknown)
		require.True(t, ok)
		assert.Equal(t, solana.MemoProgramID, unknown.Program)
	})
}

func TestValidateMintSet(t *testing.T) {
	payer := randomKey(t)
	mint := randomKey(t)
	authority := randomKey(t)
	protocol := randomKey(t)

	expectedFor := func(t *testing.T, outputs []MintOutput) []ExpectedMint {
		t.Helper()
		expected := make([]ExpectedMint, 0, len(outputs))
		for _, out := range outputs {
			dest, err := AssociatedTokenAccount(out.Wallet, mint)
			require.NoError(t, err)
			expected = append(expected, ExpectedMint{Destination: dest, Amount: out.Amount})
		}
		return expected
	}

	outputs := []MintOutput{
		{Wallet: payer, Amount: 900},
		{Wallet: protocol, Amount: 100},
	}

	t.Run("built transaction validates against its own outputs", func(t *testing.T) {
		tx, err := BuildMintTransaction(testBlockhash(), payer, mint, authority, outputs)
		require.NoError(t, err)
		assert.NoError(t, ValidateMintSet(tx, mint, authority, expectedFor(t, outputs)))
	})

	t.Run("amount mismatch is rejected", func(t *testing.T) {
		tx, err := BuildMintTransaction(testBlockhash(), payer, mint, authority, []MintOutput{
			{Wallet: payer, Amount: 901},
			{Wallet: protocol, Amount: 100},
		})
		require.NoError(t, err)
		err = ValidateMintSet(tx, mint, authority, expectedFor(t, outputs))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "matches no expected output")
	})

	t.Run("redirected recipient is rejected", func(t *testing.T) {
		tx, err := BuildMintTransaction(testBlockhash(), payer, mint, authority, []MintOutput{
			{Wallet: payer, Amount: 900},
			{Wallet: randomKey(t), Amount: 100},
		})
		require.NoError(t, err)
		assert.Error(t, ValidateMintSet(tx, mint, authority, expectedFor(t, outputs)))
	})

	t.Run("missing expected output is rejected", func(t *testing.T) {
		tx, err := BuildMintTransaction(testBlockhash(), payer, mint, authority, outputs[:1])
		require.NoError(t, err)
		err = ValidateMintSet(tx, mint, authority, expectedFor(t, outputs))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is missing")
	})

	t.Run("wrong authority is rejected", func(t *testing.T) {
		tx, err := BuildMintTransaction(testBlockhash(), payer, mint, randomKey(t), outputs)
		require.NoError(t, err)
		err = ValidateMintSet(tx, mint, authority, expectedFor(t, outputs))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "authority")
	})

	t.Run("smuggled transfer instruction is rejected", func(t *testing.T) {
		source, err := AssociatedTokenAccount(protocol, mint)
		require.NoError(t, err)
		dest, err := AssociatedTokenAccount(payer, mint)
		require.NoError(t, err)
		tx, err := solana.NewTransaction([]solana.Instruction{
			token.NewTransferInstruction(100, source, dest, protocol, nil).Build(),
			token.NewMintToInstruction(900, mint, dest, authority, nil).Build(),
		}, testBlockhash(), solana.TransactionPayer(payer))
		require.NoError(t, err)

		err = ValidateMintSet(tx, mint, authority, expectedFor(t, outputs))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected type")
	})

	t.Run("compute budget directives are allowed", func(t *testing.T) {
		dest, err := AssociatedTokenAccount(payer, mint)
		require.NoError(t, err)
		protocolDest, err := AssociatedTokenAccount(protocol, mint)
		require.NoError(t, err)
		tx, err := solana.NewTransaction([]solana.Instruction{
			solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, []byte{2, 0, 0, 0, 0}),
			token.NewMintToInstruction(900, mint, dest, authority, nil).Build(),
			token.NewMintToInstruction(100, mint, protocolDest, authority, nil).Build(),
		}, testBlockhash(), solana.TransactionPayer(payer))
		require.NoError(t, err)

		assert.NoError(t, ValidateMintSet(tx, mint, authority, expectedFor(t, outputs)))
	})
}

func TestValidateSingleTransfer(t *testing.T) {
	mint := randomKey(t)
	escrow := randomKey(t)
	recipient := randomKey(t)

	expected := func(t *testing.T, amount uint64) ExpectedTransfer {
		t.Helper()
		source, err := AssociatedTokenAccount(escrow, mint)
		require.NoError(t, err)
		dest, err := AssociatedTokenAccount(recipient, mint)
		require.NoError(t, err)
		return ExpectedTransfer{Source: source, Destination: dest, Owner: escrow, Amount: amount}
	}

	t.Run("built transaction validates", func(t *testing.T) {
		tx, err := BuildTransferTransaction(testBlockhash(), recipient, mint, escrow, recipient, 5000)
		require.NoError(t, err)
		assert.NoError(t, ValidateSingleTransfer(tx, expected(t, 5000)))
	})

	t.Run("amount mismatch is rejected", func(t *testing.T) {
		tx, err := BuildTransferTransaction(testBlockhash(), recipient, mint, escrow, recipient, 5001)
		require.NoError(t, err)
		err = ValidateSingleTransfer(tx, expected(t, 5000))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected 5000")
	})

	t.Run("redirected destination is rejected", func(t *testing.T) {
		other := randomKey(t)
		tx, err := BuildTransferTransaction(testBlockhash(), recipient, mint, escrow, other, 5000)
		require.NoError(t, err)
		assert.Error(t, ValidateSingleTransfer(tx, expected(t, 5000)))
	})

	t.Run("duplicate transfers are rejected", func(t *testing.T) {
		exp := expected(t, 5000)
		transfer := token.NewTransferInstruction(5000, exp.Source, exp.Destination, escrow, nil).Build()
		tx, err := solana.NewTransaction([]solana.Instruction{transfer, transfer},
			testBlockhash(), solana.TransactionPayer(recipient))
		require.NoError(t, err)

		err = ValidateSingleTransfer(tx, exp)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "found 2")
	})

	t.Run("mint instruction in a transfer transaction is rejected", func(t *testing.T) {
		exp := expected(t, 5000)
		tx, err := solana.NewTransaction([]solana.Instruction{
			token.NewTransferInstruction(5000, exp.Source, exp.Destination, escrow, nil).Build(),
			token.NewMintToInstruction(1, mint, exp.Destination, escrow, nil).Build(),
		}, testBlockhash(), solana.TransactionPayer(recipient))
		require.NoError(t, err)

		err = ValidateSingleTransfer(tx, exp)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected type")
	})

	t.Run("native balance sync is allowed", func(t *testing.T) {
		exp := expected(t, 5000)
		sync := solana.NewInstruction(solana.TokenProgramID, solana.AccountMetaSlice{
			solana.Meta(exp.Source).WRITE(),
		}, []byte{17})
		tx, err := solana.NewTransaction([]solana.Instruction{
			sync,
			token.NewTransferInstruction(5000, exp.Source, exp.Destination, escrow, nil).Build(),
		}, testBlockhash(), solana.TransactionPayer(recipient))
		require.NoError(t, err)

		assert.NoError(t, ValidateSingleTransfer(tx, exp))
	})
}
