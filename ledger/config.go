package ledger

import (
	"math/big"

	"github.com/consensys/gnark-crypto/signature"
	"github.com/rs/zerolog"
	"github.com/zetolabs/zeto/smt"
	"github.com/zetolabs/zeto/types"
)

// ProofVerifier is the verification oracle for one circuit. The ledger never
// inspects proofs; it rebuilds the public-input vector and asks the oracle.
type ProofVerifier interface {
	Verify(proof *types.Proof, publicInputs []*big.Int) bool
}

// IdentityRegistry exposes the KYC accumulator root the transfer statement
// binds. A nil registry disables the gate and binds a zero root.
type IdentityRegistry interface {
	IdentitiesRoot() *big.Int
}

// Verifiers carries one oracle per compiled circuit. Single and Batch encode
// different public-input layouts; dispatch is by padded transaction size and
// the keys must never be interchanged.
type Verifiers struct {
	Single   ProofVerifier
	Batch    ProofVerifier
	Deposit  ProofVerifier
	Withdraw ProofVerifier
}

// Config assembles a ledger instance.
//
// UseNullifiers selects between the two spending models: the nullifier model
// hides which UTXO is spent behind a merkle root and a nullifier set, the
// direct model names input commitments in the clear and tracks their status.
type Config struct {
	Minter        signature.PublicKey
	Verifiers     Verifiers
	Registry      IdentityRegistry
	UseNullifiers bool
	RootWindow    int
	Logger        zerolog.Logger
}

func (c Config) newTree() *smt.CommitmentTree {
	return smt.NewCommitmentTree(c.RootWindow)
}
