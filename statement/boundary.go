package statement

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/zetolabs/zeto/types"
)

// Boundary statements: deposit converts a transparent amount into one hidden
// UTXO, withdraw converts hidden UTXOs back into a transparent amount plus
// one hidden change output. Both are single-party operations against a fixed
// reserve, so neither carries the identities-root binding the transfer does.

// DepositWitness attests that the commitment hides exactly the public amount.
// No ownership or encryption statement is needed: the depositor is the
// implicit owner of the minted note.
type DepositWitness struct {
	Output *types.Note
	Amount *uint256.Int
}

// AssembleDeposit validates the witness and returns the public-input vector.
func AssembleDeposit(w *DepositWitness) ([]*big.Int, error) {
	if !InRange(w.Amount) {
		return nil, ErrValueOutOfRange
	}
	if !w.Output.Value.Eq(w.Amount) {
		return nil, fmt.Errorf("%w: commitment does not hide the deposit amount", ErrStatementFalse)
	}
	return DepositPublicInputs(w.Amount, w.Output.Commitment()), nil
}

// SatisfiedDeposit is the native mirror of the deposit circuit.
func SatisfiedDeposit(w *DepositWitness, publicInputs []*big.Int) error {
	pub, err := AssembleDeposit(w)
	if err != nil {
		return err
	}
	if !vectorsEqual(pub, publicInputs) {
		return ErrVectorMismatch
	}
	return nil
}

// WithdrawWitness spends up to SingleSize hidden inputs, releasing Amount in
// the clear and committing the remainder into Output.
type WithdrawWitness struct {
	SkHi, SkLo []byte
	Inputs     []*types.Note
	Amount     *uint256.Int
	Output     *types.Note
	Root       *big.Int
}

// WithdrawProposal is the padded public face of a withdraw.
type WithdrawProposal struct {
	Nullifiers       []types.Nullifier
	OutputCommitment types.Commitment
	PublicInputs     []*big.Int
}

// AssembleWithdraw pads the inputs to the single circuit size and builds the
// public-input vector.
func AssembleWithdraw(w *WithdrawWitness) (*WithdrawProposal, error) {
	if len(w.Inputs) == 0 || len(w.Inputs) > SingleSize {
		return nil, fmt.Errorf("withdraw spends between 1 and %d inputs", SingleSize)
	}

	nullifiers := make([]types.Nullifier, SingleSize)
	enabled := make([]bool, SingleSize)
	for i := 0; i < SingleSize; i++ {
		if i < len(w.Inputs) {
			nullifiers[i] = w.Inputs[i].NullifierFor(w.SkHi, w.SkLo)
			enabled[i] = true
		} else {
			nullifiers[i] = types.ZeroNullifier()
		}
	}

	output := w.Output.Commitment()
	pub, err := WithdrawPublicInputs(w.Amount, nullifierInts(nullifiers), w.Root, enabled, output)
	if err != nil {
		return nil, err
	}
	return &WithdrawProposal{
		Nullifiers:       nullifiers,
		OutputCommitment: output,
		PublicInputs:     pub,
	}, nil
}

// SatisfiedWithdraw asserts the withdraw statement: the signer owns every
// input, and the inputs sum to the public amount plus the hidden output.
func SatisfiedWithdraw(w *WithdrawWitness, publicInputs []*big.Int) error {
	if err := CheckOwnership(w.SkHi, w.SkLo, w.Inputs); err != nil {
		return err
	}
	if !InRange(w.Amount) || !InRange(w.Output.Value) {
		return ErrValueOutOfRange
	}

	sumIn := uint256.NewInt(0)
	for _, n := range w.Inputs {
		if !InRange(n.Value) {
			return ErrValueOutOfRange
		}
		sumIn.Add(sumIn, n.Value)
	}
	sumOut := new(uint256.Int).Add(w.Amount, w.Output.Value)
	if !sumIn.Eq(sumOut) {
		return fmt.Errorf("%w: inputs do not sum to amount + change", ErrStatementFalse)
	}

	proposal, err := AssembleWithdraw(w)
	if err != nil {
		return err
	}
	if !vectorsEqual(proposal.PublicInputs, publicInputs) {
		return ErrVectorMismatch
	}
	return nil
}
