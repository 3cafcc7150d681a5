package ledger

import (
	"crypto/ed25519"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// DecodeTransaction parses untrusted wire bytes into a transaction. The
// result must still pass signature and instruction validation before it is
// trusted.
func DecodeTransaction(raw []byte) (*solana.Transaction, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, nil
}

// EncodeTransaction serializes a transaction for transport.
func EncodeTransaction(tx *solana.Transaction) ([]byte, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	return raw, nil
}

func signerIndex(tx *solana.Transaction, signer solana.PublicKey) (int, error) {
	numSigners := int(tx.Message.Header.NumRequiredSignatures)
	if numSigners > len(tx.Message.AccountKeys) {
		return 0, fmt.Errorf("malformed message header: %d signers, %d accounts", numSigners, len(tx.Message.AccountKeys))
	}
	for i := 0; i < numSigners; i++ {
		if tx.Message.AccountKeys[i].Equals(signer) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%s is not a required signer of this transaction", signer)
}

// VerifySignerSignature checks that the signature slot attributed to signer
// holds a valid ed25519 signature over the exact serialized message bytes.
// This is what proves the requester, not a forger, produced this transaction.
func VerifySignerSignature(tx *solana.Transaction, signer solana.PublicKey) error {
	idx, err := signerIndex(tx, signer)
	if err != nil {
		return err
	}
	if idx >= len(tx.Signatures) {
		return fmt.Errorf("transaction carries no signature for %s", signer)
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	sig := tx.Signatures[idx]
	if sig.IsZero() {
		return fmt.Errorf("signature for %s is empty", signer)
	}
	if !ed25519.Verify(ed25519.PublicKey(signer[:]), message, sig[:]) {
		return fmt.Errorf("signature for %s does not verify against the message", signer)
	}
	return nil
}

// CounterSign appends key's signature into its signer slot without touching
// any other signature already present.
func CounterSign(tx *solana.Transaction, key solana.PrivateKey) error {
	idx, err := signerIndex(tx, key.PublicKey())
	if err != nil {
		return err
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}
	sig, err := key.Sign(message)
	if err != nil {
		return fmt.Errorf("failed to sign message: %w", err)
	}

	for len(tx.Signatures) < int(tx.Message.Header.NumRequiredSignatures) {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
	tx.Signatures[idx] = sig
	return nil
}
