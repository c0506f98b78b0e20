package statement

import (
	"errors"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/constraint/solver"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/rs/zerolog"
	"github.com/zetolabs/zeto/crypto"
	"github.com/zetolabs/zeto/types"
)

var gnarkLogger = zerolog.New(os.Stdout).Level(zerolog.WarnLevel).With().Timestamp().Logger()

// Groth16System holds the compiled transfer circuit of one size together
// with its proving and verifying keys. It implements both sides of the proof
// oracle: Prove for clients and Verify for the ledger.
type Groth16System struct {
	size int
	ccs  constraint.ConstraintSystem
	pk   groth16.ProvingKey
	vk   groth16.VerifyingKey
}

// SetupTransfer compiles the transfer circuit at the given padded size and
// runs the Groth16 setup.
func SetupTransfer(size int) (*Groth16System, error) {
	if size != SingleSize && size != BatchSize {
		return nil, errors.New("transfer circuits are compiled at the single and batch sizes only")
	}
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, NewTransferCircuit(size))
	if err != nil {
		return nil, err
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, err
	}
	return &Groth16System{size: size, ccs: ccs, pk: pk, vk: vk}, nil
}

func (s *Groth16System) Size() int { return s.size }

// Prove assembles the proposal from the witness and produces a Groth16 proof
// over it.
func (s *Groth16System) Prove(w *TransferWitness) (*types.Proof, *TransferProposal, error) {
	proposal, err := Assemble(w)
	if err != nil {
		return nil, nil, err
	}
	if proposal.Size != s.size {
		return nil, nil, errors.New("witness does not fit this circuit size")
	}

	assignment, err := circuitAssignment(w, proposal)
	if err != nil {
		return nil, nil, err
	}
	wtn, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, nil, err
	}

	gproof, err := groth16.Prove(
		s.ccs,
		s.pk,
		wtn,
		backend.WithSolverOptions(solver.WithLogger(gnarkLogger)),
	)
	if err != nil {
		return nil, nil, err
	}

	proof, err := proofToLimbs(gproof)
	if err != nil {
		return nil, nil, err
	}
	return proof, proposal, nil
}

// Verify implements the verification oracle: it rebuilds a public-only
// witness from the ordered vector and checks the proof against it. Any
// reordering of the vector makes a legitimate proof fail here.
func (s *Groth16System) Verify(proof *types.Proof, publicInputs []*big.Int) bool {
	if len(publicInputs) != VectorWidth(s.size) {
		return false
	}
	gproof, err := limbsToProof(proof)
	if err != nil {
		return false
	}

	pubW, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return false
	}
	vals := make(chan any, len(publicInputs))
	for _, v := range publicInputs {
		vals <- v
	}
	close(vals)
	if err := pubW.Fill(len(publicInputs), 0, vals); err != nil {
		return false
	}

	return groth16.Verify(gproof, s.vk, pubW) == nil
}

// circuitAssignment fills the full witness from the statement witness and
// its assembled proposal.
func circuitAssignment(w *TransferWitness, proposal *TransferProposal) (*TransferCircuit, error) {
	size := proposal.Size
	cc := NewTransferCircuit(size)

	for i, v := range proposal.EncryptedValues {
		cc.EncryptedValues[i] = v
	}
	for i := 0; i < size; i++ {
		cc.Nullifiers[i] = []byte(proposal.Nullifiers[i])
		cc.OutputCommitments[i] = []byte(proposal.OutputCommitments[i])
		if i < len(w.Inputs) {
			cc.Enabled[i] = 1
			cc.InputValues[i] = w.Inputs[i].Value.ToBig()
			cc.InputSalts[i] = w.Inputs[i].Salt
		} else {
			cc.Enabled[i] = 0
			cc.InputValues[i] = 0
			cc.InputSalts[i] = 0
		}
		if i < len(w.Outputs) {
			owner, err := crypto.PubKeyPoint(w.Outputs[i].PubKey)
			if err != nil {
				return nil, err
			}
			ox := owner.X.Bytes()
			oy := owner.Y.Bytes()
			cc.OutputValues[i] = w.Outputs[i].Value.ToBig()
			cc.OutputSalts[i] = w.Outputs[i].Salt
			cc.OutputOwnerX[i] = ox[:]
			cc.OutputOwnerY[i] = oy[:]
		} else {
			cc.OutputValues[i] = 0
			cc.OutputSalts[i] = 0
			cc.OutputOwnerX[i] = 0
			cc.OutputOwnerY[i] = 0
		}
	}
	cc.Root = w.Root
	cc.IdentitiesRoot = w.IdentitiesRoot
	cc.EncryptionNonce = w.Nonce
	cc.SkHi = w.SkHi
	cc.SkLo = w.SkLo

	ephScalar := w.EphemeralKey.Bytes()
	cc.EphemeralSk = ephScalar[32:64]
	return cc, nil
}

// proofToLimbs flattens a gnark Groth16 proof into the calldata shape the
// oracle interface carries. pB limbs follow the EVM [A1, A0] convention.
func proofToLimbs(p groth16.Proof) (*types.Proof, error) {
	bp, ok := p.(*groth16_bn254.Proof)
	if !ok {
		return nil, errors.New("proof is not a BN254 Groth16 proof")
	}
	var out types.Proof
	out.A[0] = bp.Ar.X.BigInt(new(big.Int))
	out.A[1] = bp.Ar.Y.BigInt(new(big.Int))
	out.B[0][0] = bp.Bs.X.A1.BigInt(new(big.Int))
	out.B[0][1] = bp.Bs.X.A0.BigInt(new(big.Int))
	out.B[1][0] = bp.Bs.Y.A1.BigInt(new(big.Int))
	out.B[1][1] = bp.Bs.Y.A0.BigInt(new(big.Int))
	out.C[0] = bp.Krs.X.BigInt(new(big.Int))
	out.C[1] = bp.Krs.Y.BigInt(new(big.Int))
	return &out, nil
}

func limbsToProof(p *types.Proof) (groth16.Proof, error) {
	for _, limb := range []*big.Int{p.A[0], p.A[1], p.B[0][0], p.B[0][1], p.B[1][0], p.B[1][1], p.C[0], p.C[1]} {
		if limb == nil {
			return nil, errors.New("proof limb is nil")
		}
	}
	var bp groth16_bn254.Proof
	bp.Ar.X.SetBigInt(p.A[0])
	bp.Ar.Y.SetBigInt(p.A[1])
	bp.Bs.X.A1.SetBigInt(p.B[0][0])
	bp.Bs.X.A0.SetBigInt(p.B[0][1])
	bp.Bs.Y.A1.SetBigInt(p.B[1][0])
	bp.Bs.Y.A0.SetBigInt(p.B[1][1])
	bp.Krs.X.SetBigInt(p.C[0])
	bp.Krs.Y.SetBigInt(p.C[1])
	return &bp, nil
}
