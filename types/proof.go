package types

import "math/big"

// Proof carries a Groth16 proof in the calldata shape the verification oracle
// consumes: two G1 points and one G2 point as big integer limbs. The pB limbs
// follow the EVM convention [X.A1, X.A0], [Y.A1, Y.A0]. A proof is
// constructed off-chain, consumed exactly once, and never persisted.
type Proof struct {
	A [2]*big.Int
	B [2][2]*big.Int
	C [2]*big.Int
}
