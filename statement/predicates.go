package statement

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/zetolabs/zeto/crypto"
	"github.com/zetolabs/zeto/types"
)

// CheckConservation asserts Σ inputs == Σ outputs and that every value fits
// the protocol's range bound. Nil entries are padding and count as zero;
// zero is a valid padding value, not a rejected "non-positive" amount.
func CheckConservation(inputs, outputs []*uint256.Int) error {
	sumIn := uint256.NewInt(0)
	for i, v := range inputs {
		if v == nil {
			continue
		}
		if !InRange(v) {
			return fmt.Errorf("input %d: %w", i, ErrValueOutOfRange)
		}
		sumIn.Add(sumIn, v)
	}
	sumOut := uint256.NewInt(0)
	for i, v := range outputs {
		if v == nil {
			continue
		}
		if !InRange(v) {
			return fmt.Errorf("output %d: %w", i, ErrValueOutOfRange)
		}
		sumOut.Add(sumOut, v)
	}
	if !sumIn.Eq(sumOut) {
		return fmt.Errorf("%w: inputs sum to %s, outputs to %s", ErrStatementFalse, sumIn.Dec(), sumOut.Dec())
	}
	return nil
}

// InRange reports whether v lies in [0, 2^MaxValueBits - 1]. Values are
// bounded so a full batch cannot wrap the field modulus.
func InRange(v *uint256.Int) bool {
	return v.BitLen() <= MaxValueBits
}

// CheckOwnership derives the public key from the claimed private scalar limbs
// and asserts it matches the owner key of every real input. One signer spends
// all inputs of a transfer; padding slots are excluded.
func CheckOwnership(skHi, skLo []byte, inputs []*types.Note) error {
	derived := crypto.DerivePublicKey(skHi, skLo)
	for i, note := range inputs {
		if note == nil {
			continue
		}
		owner, err := crypto.PubKeyPoint(note.PubKey)
		if err != nil {
			return err
		}
		if !derived.Equal(owner) {
			return fmt.Errorf("%w: input %d is not owned by the signer", ErrStatementFalse, i)
		}
	}
	return nil
}

// CheckCommitments asserts each real note reproduces its claimed commitment.
func CheckCommitments(notes []*types.Note, commitments []types.Commitment) error {
	if len(notes) > len(commitments) {
		return fmt.Errorf("%w: %d notes against %d commitments", ErrVectorMismatch, len(notes), len(commitments))
	}
	for i, note := range notes {
		if note == nil {
			if !commitments[i].IsZero() {
				return fmt.Errorf("%w: slot %d is padding but commitment is non-zero", ErrVectorMismatch, i)
			}
			continue
		}
		if !note.Commitment().Equal(commitments[i]) {
			return fmt.Errorf("%w: commitment %d does not open", ErrStatementFalse, i)
		}
	}
	return nil
}

func noteValues(notes []*types.Note) []*uint256.Int {
	out := make([]*uint256.Int, len(notes))
	for i, n := range notes {
		if n != nil {
			out[i] = n.Value
		}
	}
	return out
}
