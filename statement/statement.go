// Package statement defines the provable statement behind every Zeto state
// transition. Each arithmetic-circuit constraint of the original protocol is
// re-expressed as an explicit predicate over the witness, composed into one
// "statement is satisfied" check, independent of whether a proof is generated
// over it. The gnark circuit in circuit.go encodes the same transcript.
package statement

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/signature"
	"github.com/zetolabs/zeto/crypto"
	"github.com/zetolabs/zeto/types"
)

const (
	// MaxValueBits bounds every UTXO value below 2^40 so that no sum of a
	// full batch can wrap the BN254 scalar field.
	MaxValueBits = 40

	// SingleSize is the smallest supported circuit size.
	SingleSize = 2

	// BatchSize is the maximum number of inputs/outputs per transaction.
	BatchSize = 10
)

var (
	ErrEmptyTransfer   = errors.New("transfer needs at least one input and one output")
	ErrBatchExceeded   = fmt.Errorf("transfer exceeds the maximum batch size of %d", BatchSize)
	ErrStatementFalse  = errors.New("statement is not satisfied")
	ErrVectorMismatch  = errors.New("public inputs do not match the witness")
	ErrValueOutOfRange = fmt.Errorf("value does not fit in %d bits", MaxValueBits)
)

// PadSize maps a real input/output count to the circuit size that will carry
// it: at most 2 real entries use the single path, 3..10 the batch path. The
// two verifiers encode different public-input layouts and must never be
// interchanged.
func PadSize(n int) (int, error) {
	switch {
	case n == 0:
		return 0, ErrEmptyTransfer
	case n <= SingleSize:
		return SingleSize, nil
	case n <= BatchSize:
		return BatchSize, nil
	default:
		return 0, ErrBatchExceeded
	}
}

// TransferWitness is the private assignment of one transfer. Inputs and
// Outputs hold only the real (non-padding) notes; padding is applied during
// assembly. All inputs are owned by the one signer whose scalar limbs are
// SkHi/SkLo.
type TransferWitness struct {
	SkHi, SkLo []byte
	Inputs     []*types.Note
	Outputs    []*types.Note

	Root           *big.Int
	IdentitiesRoot *big.Int

	// one ephemeral key pair per transaction; the shared secret is derived
	// against the primary receiver (the owner of Outputs[0])
	EphemeralKey signature.Signer
	Nonce        *big.Int
}

// TransferProposal is the assembled, padded public face of a transfer: what
// the ledger receives alongside the proof.
type TransferProposal struct {
	Size              int
	Nullifiers        []types.Nullifier
	OutputCommitments []types.Commitment
	EncryptedValues   []*big.Int
	EphemeralPubKey   []byte
	Nonce             *big.Int
	Root              *big.Int
	PublicInputs      []*big.Int
}

// Assemble pads the witness to its circuit size, computes nullifiers, output
// commitments and the ciphertext, and builds the exact public-input vector
// the proof must attest to.
func Assemble(w *TransferWitness) (*TransferProposal, error) {
	size, err := PadSize(max(len(w.Inputs), len(w.Outputs)))
	if err != nil {
		return nil, err
	}

	nullifiers := make([]types.Nullifier, size)
	enabled := make([]bool, size)
	for i := 0; i < size; i++ {
		if i < len(w.Inputs) {
			nullifiers[i] = w.Inputs[i].NullifierFor(w.SkHi, w.SkLo)
			enabled[i] = true
		} else {
			nullifiers[i] = types.ZeroNullifier()
		}
	}

	outputs := make([]types.Commitment, size)
	for i := 0; i < size; i++ {
		if i < len(w.Outputs) {
			outputs[i] = w.Outputs[i].Commitment()
		} else {
			outputs[i] = types.ZeroCommitment()
		}
	}

	encrypted, ephPub, err := encryptOutputs(w, size)
	if err != nil {
		return nil, err
	}

	pub, err := TransferPublicInputs(size, encrypted, nullifierInts(nullifiers), w.Root, enabled, w.IdentitiesRoot, commitmentInts(outputs), w.Nonce)
	if err != nil {
		return nil, err
	}

	return &TransferProposal{
		Size:              size,
		Nullifiers:        nullifiers,
		OutputCommitments: outputs,
		EncryptedValues:   encrypted,
		EphemeralPubKey:   ephPub,
		Nonce:             w.Nonce,
		Root:              w.Root,
		PublicInputs:      pub,
	}, nil
}

// encryptOutputs encrypts the (value, salt) pairs of all padded output slots
// as one message under the transaction's ephemeral ECDH secret.
func encryptOutputs(w *TransferWitness, size int) ([]*big.Int, []byte, error) {
	if len(w.Outputs) == 0 {
		return nil, nil, ErrEmptyTransfer
	}
	shared, err := crypto.ECDHSharedPoint(w.EphemeralKey, w.Outputs[0].PubKey)
	if err != nil {
		return nil, nil, err
	}

	msg := make([]*big.Int, 0, 2*size)
	for i := 0; i < size; i++ {
		if i < len(w.Outputs) {
			msg = append(msg, w.Outputs[i].Value.ToBig(), new(big.Int).SetBytes(w.Outputs[i].Salt))
		} else {
			msg = append(msg, big.NewInt(0), big.NewInt(0))
		}
	}
	return crypto.EncryptFields(shared, w.Nonce, msg), w.EphemeralKey.Public().Bytes(), nil
}

// Satisfied reports whether the transfer statement holds for the witness and
// whether the given public inputs are exactly the vector the witness implies.
// This is the native mirror of what the circuit proves.
func Satisfied(w *TransferWitness, publicInputs []*big.Int) error {
	if err := CheckOwnership(w.SkHi, w.SkLo, w.Inputs); err != nil {
		return err
	}
	if err := CheckConservation(noteValues(w.Inputs), noteValues(w.Outputs)); err != nil {
		return err
	}

	proposal, err := Assemble(w)
	if err != nil {
		return err
	}
	// Assemble recomputes nullifiers, commitments and the ciphertext from
	// the openings, so vector equality carries the hash-consistency and
	// encryption-consistency predicates.
	if !vectorsEqual(proposal.PublicInputs, publicInputs) {
		return ErrVectorMismatch
	}
	return nil
}

func vectorsEqual(a, b []*big.Int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Cmp(b[i]) != 0 {
			return false
		}
	}
	return true
}

func nullifierInts(ns []types.Nullifier) []*big.Int {
	out := make([]*big.Int, len(ns))
	for i, n := range ns {
		out[i] = new(big.Int).SetBytes(n)
	}
	return out
}

func commitmentInts(cs []types.Commitment) []*big.Int {
	out := make([]*big.Int, len(cs))
	for i, c := range cs {
		out[i] = new(big.Int).SetBytes(c)
	}
	return out
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
