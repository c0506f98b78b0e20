package statement

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/zetolabs/zeto/crypto"
	"github.com/zetolabs/zeto/types"
)

// The public-input vector is part of the protocol's wire contract. Order:
//
//	[encryptedValues..., nullifiers..., root, inputEnableFlags...,
//	 identitiesRoot, outputCommitments..., encryptionNonce]
//
// Any reordering or omission makes a legitimate proof fail verification.
// Width: 16 for the single path (size 2), 55 for the batch path (size 10).

// VectorWidth returns the public-input vector width for a circuit size.
func VectorWidth(size int) int {
	return 3*size + 3 + crypto.CipherLen(2*size)
}

// TransferPublicInputs deterministically rebuilds the vector from its parts.
// The ledger and the prover both call this; the two must agree bit for bit.
func TransferPublicInputs(
	size int,
	encrypted []*big.Int,
	nullifiers []*big.Int,
	root *big.Int,
	enabled []bool,
	identitiesRoot *big.Int,
	outputs []*big.Int,
	nonce *big.Int,
) ([]*big.Int, error) {
	if size != SingleSize && size != BatchSize {
		return nil, fmt.Errorf("unsupported circuit size %d", size)
	}
	if len(encrypted) != crypto.CipherLen(2*size) {
		return nil, fmt.Errorf("encrypted values: want %d elements, got %d", crypto.CipherLen(2*size), len(encrypted))
	}
	if len(nullifiers) != size || len(enabled) != size || len(outputs) != size {
		return nil, fmt.Errorf("nullifiers/enabled/outputs must each have %d entries", size)
	}
	if root == nil || identitiesRoot == nil || nonce == nil {
		return nil, fmt.Errorf("root, identitiesRoot and nonce are required")
	}

	vec := make([]*big.Int, 0, VectorWidth(size))
	vec = append(vec, encrypted...)
	vec = append(vec, nullifiers...)
	vec = append(vec, root)
	for _, e := range enabled {
		if e {
			vec = append(vec, big.NewInt(1))
		} else {
			vec = append(vec, big.NewInt(0))
		}
	}
	vec = append(vec, identitiesRoot)
	vec = append(vec, outputs...)
	vec = append(vec, nonce)
	return vec, nil
}

// DepositPublicInputs is the narrow deposit statement's vector: the cleartext
// amount and the commitment hiding salt and owner.
func DepositPublicInputs(amount *uint256.Int, output types.Commitment) []*big.Int {
	return []*big.Int{amount.ToBig(), new(big.Int).SetBytes(output)}
}

// WithdrawPublicInputs is the withdraw statement's vector:
//
//	[amount, nullifiers..., root, inputEnableFlags..., outputCommitment]
//
// Withdraw always uses the single circuit size.
func WithdrawPublicInputs(amount *uint256.Int, nullifiers []*big.Int, root *big.Int, enabled []bool, output types.Commitment) ([]*big.Int, error) {
	if len(nullifiers) != SingleSize || len(enabled) != SingleSize {
		return nil, fmt.Errorf("withdraw uses exactly %d padded inputs", SingleSize)
	}
	if root == nil {
		return nil, fmt.Errorf("root is required")
	}
	vec := make([]*big.Int, 0, 2*SingleSize+3)
	vec = append(vec, amount.ToBig())
	vec = append(vec, nullifiers...)
	vec = append(vec, root)
	for _, e := range enabled {
		if e {
			vec = append(vec, big.NewInt(1))
		} else {
			vec = append(vec, big.NewInt(0))
		}
	}
	vec = append(vec, new(big.Int).SetBytes(output))
	return vec, nil
}
