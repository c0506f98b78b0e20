package ledger

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/signature"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/zetolabs/zeto/crypto"
	"github.com/zetolabs/zeto/statement"
	"github.com/zetolabs/zeto/types"
	"github.com/zetolabs/zeto/utils"
)

// fakeOracle stands in for a compiled circuit: the "proof" is a MiMC digest
// of the exact public-input vector, so verification fails on any vector the
// prover did not attest to, which is the property the ledger relies on.
type fakeOracle struct{ width int }

func (f *fakeOracle) Verify(proof *types.Proof, publicInputs []*big.Int) bool {
	if proof == nil || proof.A[0] == nil || len(publicInputs) != f.width {
		return false
	}
	return proof.A[0].Cmp(utils.MiMCHashFields(publicInputs...)) == 0
}

func fakeProof(publicInputs []*big.Int) *types.Proof {
	var p types.Proof
	zero := big.NewInt(0)
	p.A = [2]*big.Int{utils.MiMCHashFields(publicInputs...), zero}
	p.B = [2][2]*big.Int{{zero, zero}, {zero, zero}}
	p.C = [2]*big.Int{zero, zero}
	return &p
}

func testVerifiers() Verifiers {
	return Verifiers{
		Single:   &fakeOracle{width: statement.VectorWidth(statement.SingleSize)},
		Batch:    &fakeOracle{width: statement.VectorWidth(statement.BatchSize)},
		Deposit:  &fakeOracle{width: 2},
		Withdraw: &fakeOracle{width: 7},
	}
}

func newTestLedger(t *testing.T, useNullifiers bool) (*Ledger, signature.Signer) {
	t.Helper()
	minter, err := crypto.NewKey()
	require.NoError(t, err)
	l := New(Config{
		Minter:        minter.Public(),
		Verifiers:     testVerifiers(),
		UseNullifiers: useNullifiers,
		RootWindow:    4,
		Logger:        zerolog.Nop(),
	})
	return l, minter
}

func mustKey(t *testing.T) signature.Signer {
	t.Helper()
	k, err := crypto.NewKey()
	require.NoError(t, err)
	return k
}

// proveTransfer assembles a transfer witness, checks the statement natively
// and emits the fake proof over its vector.
func proveTransfer(t *testing.T, w *statement.TransferWitness) (*statement.TransferProposal, *types.Proof) {
	t.Helper()
	proposal, err := statement.Assemble(w)
	require.NoError(t, err)
	require.NoError(t, statement.Satisfied(w, proposal.PublicInputs))
	return proposal, fakeProof(proposal.PublicInputs)
}

func newWitness(t *testing.T, sender signature.Signer, inputs []*types.Note, outputs []*types.Note, root *big.Int) *statement.TransferWitness {
	t.Helper()
	hi, lo := crypto.SplitScalar(sender)
	return &statement.TransferWitness{
		SkHi:           hi,
		SkLo:           lo,
		Inputs:         inputs,
		Outputs:        outputs,
		Root:           root,
		IdentitiesRoot: new(big.Int),
		EphemeralKey:   mustKey(t),
		Nonce:          new(big.Int).SetBytes(utils.RandFieldElement()),
	}
}

func transferTxOf(proposal *statement.TransferProposal, proof *types.Proof) *TransferTx {
	return &TransferTx{
		Nullifiers:        proposal.Nullifiers,
		OutputCommitments: proposal.OutputCommitments,
		EncryptedValues:   proposal.EncryptedValues,
		EphemeralPubKey:   proposal.EphemeralPubKey,
		Nonce:             proposal.Nonce,
		Root:              proposal.Root,
		Proof:             proof,
	}
}

func TestMintAuthorization(t *testing.T) {
	l, minter := newTestLedger(t, true)
	stranger := mustKey(t)

	owner := mustKey(t)
	c := types.NewNote(owner.Public(), uint256.NewInt(100)).Commitment()

	require.ErrorIs(t, l.Mint(stranger.Public(), []types.Commitment{c}, nil), ErrNotAuthorized)
	require.NoError(t, l.Mint(minter.Public(), []types.Commitment{c}, nil))
	require.ErrorIs(t, l.Mint(minter.Public(), []types.Commitment{c}, nil), ErrAlreadyMinted)

	require.ErrorIs(t, l.Mint(minter.Public(), nil, nil), ErrStructural)
	require.ErrorIs(t, l.Mint(minter.Public(), []types.Commitment{types.ZeroCommitment()}, nil), ErrStructural)
}

func TestTransferNullifierModel(t *testing.T) {
	l, minter := newTestLedger(t, true)
	sender := mustKey(t)
	receiver := mustKey(t)

	in1 := types.NewNote(sender.Public(), uint256.NewInt(60))
	in2 := types.NewNote(sender.Public(), uint256.NewInt(40))
	require.NoError(t, l.Mint(minter.Public(), []types.Commitment{in1.Commitment(), in2.Commitment()}, nil))

	out := types.NewNote(receiver.Public(), uint256.NewInt(100))
	w := newWitness(t, sender, []*types.Note{in1, in2}, []*types.Note{out}, l.Root())

	proposal, proof := proveTransfer(t, w)
	tx := transferTxOf(proposal, proof)

	require.NoError(t, l.Transfer(tx))
	require.True(t, l.IsSpent(proposal.Nullifiers[0]))

	// replay is a double spend
	require.ErrorIs(t, l.Transfer(tx), ErrAlreadySpent)
}

func TestTransferRejectsTamperedCiphertext(t *testing.T) {
	l, minter := newTestLedger(t, true)
	sender := mustKey(t)
	receiver := mustKey(t)

	in := types.NewNote(sender.Public(), uint256.NewInt(10))
	require.NoError(t, l.Mint(minter.Public(), []types.Commitment{in.Commitment()}, nil))

	out := types.NewNote(receiver.Public(), uint256.NewInt(10))
	w := newWitness(t, sender, []*types.Note{in}, []*types.Note{out}, l.Root())
	proposal, proof := proveTransfer(t, w)
	tx := transferTxOf(proposal, proof)

	tx.EncryptedValues = append([]*big.Int{}, tx.EncryptedValues...)
	tx.EncryptedValues[0] = new(big.Int).Add(tx.EncryptedValues[0], big.NewInt(1))
	require.ErrorIs(t, l.Transfer(tx), ErrProofInvalid)
}

func TestTransferRejectsUnknownRoot(t *testing.T) {
	l, minter := newTestLedger(t, true)
	sender := mustKey(t)
	receiver := mustKey(t)

	in := types.NewNote(sender.Public(), uint256.NewInt(10))
	require.NoError(t, l.Mint(minter.Public(), []types.Commitment{in.Commitment()}, nil))

	out := types.NewNote(receiver.Public(), uint256.NewInt(10))
	w := newWitness(t, sender, []*types.Note{in}, []*types.Note{out}, big.NewInt(424242))
	proposal, proof := proveTransfer(t, w)

	require.ErrorIs(t, l.Transfer(transferTxOf(proposal, proof)), ErrUnrecognizedRoot)
}

func TestTransferRootWindowAbsorbsStaleness(t *testing.T) {
	l, minter := newTestLedger(t, true)
	sender := mustKey(t)
	receiver := mustKey(t)

	in := types.NewNote(sender.Public(), uint256.NewInt(10))
	require.NoError(t, l.Mint(minter.Public(), []types.Commitment{in.Commitment()}, nil))
	staleRoot := l.Root()

	// two more mints keep the stale root inside the window of 4
	other := types.NewNote(sender.Public(), uint256.NewInt(1))
	other2 := types.NewNote(sender.Public(), uint256.NewInt(2))
	require.NoError(t, l.Mint(minter.Public(), []types.Commitment{other.Commitment(), other2.Commitment()}, nil))

	out := types.NewNote(receiver.Public(), uint256.NewInt(10))
	w := newWitness(t, sender, []*types.Note{in}, []*types.Note{out}, staleRoot)
	proposal, proof := proveTransfer(t, w)
	require.NoError(t, l.Transfer(transferTxOf(proposal, proof)))
}

func TestTransferStructuralChecks(t *testing.T) {
	l, minter := newTestLedger(t, true)
	sender := mustKey(t)
	receiver := mustKey(t)

	in := types.NewNote(sender.Public(), uint256.NewInt(10))
	require.NoError(t, l.Mint(minter.Public(), []types.Commitment{in.Commitment()}, nil))

	out := types.NewNote(receiver.Public(), uint256.NewInt(10))
	w := newWitness(t, sender, []*types.Note{in}, []*types.Note{out}, l.Root())
	proposal, proof := proveTransfer(t, w)

	tx := transferTxOf(proposal, proof)
	tx.EncryptedValues = tx.EncryptedValues[:len(tx.EncryptedValues)-1]
	require.ErrorIs(t, l.Transfer(tx), ErrStructural)

	// more entries than the largest circuit carries
	tx = transferTxOf(proposal, proof)
	over := make([]types.Nullifier, statement.BatchSize+1)
	for i := range over {
		over[i] = types.Nullifier(utils.RandFieldElement())
	}
	tx.Nullifiers = over
	require.ErrorIs(t, l.Transfer(tx), ErrStructural)

	tx = transferTxOf(proposal, proof)
	tx.Nullifiers = nil
	require.ErrorIs(t, l.Transfer(tx), ErrStructural)

	tx = transferTxOf(proposal, proof)
	tx.Nonce = nil
	require.ErrorIs(t, l.Transfer(tx), ErrStructural)

	// a duplicated non-zero nullifier is structural, caught before the proof
	tx = transferTxOf(proposal, proof)
	tx.Nullifiers = []types.Nullifier{proposal.Nullifiers[0], proposal.Nullifiers[0]}
	require.ErrorIs(t, l.Transfer(tx), ErrStructural)
}

// Clients may submit only the real entries; the ledger pads nullifier and
// output arrays with zero sentinels to the circuit size before validating.
func TestTransferPadsUnpaddedArrays(t *testing.T) {
	l, minter := newTestLedger(t, true)
	sender := mustKey(t)
	receiver := mustKey(t)

	in := types.NewNote(sender.Public(), uint256.NewInt(10))
	require.NoError(t, l.Mint(minter.Public(), []types.Commitment{in.Commitment()}, nil))

	out := types.NewNote(receiver.Public(), uint256.NewInt(10))
	w := newWitness(t, sender, []*types.Note{in}, []*types.Note{out}, l.Root())
	proposal, proof := proveTransfer(t, w)

	tx := transferTxOf(proposal, proof)
	tx.Nullifiers = tx.Nullifiers[:1]
	tx.OutputCommitments = tx.OutputCommitments[:1]
	require.NoError(t, l.Transfer(tx))
	require.True(t, l.IsSpent(proposal.Nullifiers[0]))
}

func TestTransferPadsUnpaddedBatch(t *testing.T) {
	l, minter := newTestLedger(t, true)
	sender := mustKey(t)
	receiver := mustKey(t)

	inputs := make([]*types.Note, 3)
	cs := make([]types.Commitment, 3)
	for i := range inputs {
		inputs[i] = types.NewNote(sender.Public(), uint256.NewInt(uint64(10*(i+1))))
		cs[i] = inputs[i].Commitment()
	}
	require.NoError(t, l.Mint(minter.Public(), cs, nil))

	out := types.NewNote(receiver.Public(), uint256.NewInt(60))
	w := newWitness(t, sender, inputs, []*types.Note{out}, l.Root())
	proposal, proof := proveTransfer(t, w)
	require.Equal(t, statement.BatchSize, proposal.Size)

	// three real nullifiers and one real output select the batch circuit
	tx := transferTxOf(proposal, proof)
	tx.Nullifiers = tx.Nullifiers[:3]
	tx.OutputCommitments = tx.OutputCommitments[:1]
	require.NoError(t, l.Transfer(tx))
	require.True(t, l.IsSpent(proposal.Nullifiers[2]))
}

// Each verifier only answers for its own layout: a vector of the wrong width
// must not verify, whatever proof accompanies it.
func TestVerifierDispatchRejectsMismatchedLayout(t *testing.T) {
	vs := testVerifiers()

	single := make([]*big.Int, statement.VectorWidth(statement.SingleSize))
	for i := range single {
		single[i] = big.NewInt(int64(i + 1))
	}
	batch := make([]*big.Int, statement.VectorWidth(statement.BatchSize))
	for i := range batch {
		batch[i] = big.NewInt(int64(i + 1))
	}

	require.True(t, vs.Single.Verify(fakeProof(single), single))
	require.True(t, vs.Batch.Verify(fakeProof(batch), batch))

	require.False(t, vs.Batch.Verify(fakeProof(single), single))
	require.False(t, vs.Single.Verify(fakeProof(batch), batch))
}

func TestTransferBatch(t *testing.T) {
	l, minter := newTestLedger(t, true)
	sender := mustKey(t)
	receiver := mustKey(t)

	inputs := make([]*types.Note, 3)
	cs := make([]types.Commitment, 3)
	for i := range inputs {
		inputs[i] = types.NewNote(sender.Public(), uint256.NewInt(uint64(10*(i+1))))
		cs[i] = inputs[i].Commitment()
	}
	require.NoError(t, l.Mint(minter.Public(), cs, nil))

	out := types.NewNote(receiver.Public(), uint256.NewInt(60))
	w := newWitness(t, sender, inputs, []*types.Note{out}, l.Root())
	proposal, proof := proveTransfer(t, w)
	require.Equal(t, statement.BatchSize, proposal.Size)

	require.NoError(t, l.Transfer(transferTxOf(proposal, proof)))
}

func TestDepositAndWithdraw(t *testing.T) {
	l, _ := newTestLedger(t, true)
	owner := mustKey(t)

	// deposit 100
	note := types.NewNote(owner.Public(), uint256.NewInt(100))
	dw := &statement.DepositWitness{Output: note, Amount: uint256.NewInt(100)}
	pub, err := statement.AssembleDeposit(dw)
	require.NoError(t, err)
	require.NoError(t, l.Deposit(&DepositTx{
		Amount: dw.Amount,
		Output: note.Commitment(),
		Proof:  fakeProof(pub),
	}))
	require.Equal(t, uint256.NewInt(100), l.Reserve())

	// duplicate output
	require.ErrorIs(t, l.Deposit(&DepositTx{
		Amount: dw.Amount,
		Output: note.Commitment(),
		Proof:  fakeProof(pub),
	}), ErrAlreadyMinted)

	// withdraw 70 with change 30
	hi, lo := crypto.SplitScalar(owner)
	change := types.NewNote(owner.Public(), uint256.NewInt(30))
	ww := &statement.WithdrawWitness{
		SkHi:   hi,
		SkLo:   lo,
		Inputs: []*types.Note{note},
		Amount: uint256.NewInt(70),
		Output: change,
		Root:   l.Root(),
	}
	proposal, err := statement.AssembleWithdraw(ww)
	require.NoError(t, err)
	require.NoError(t, statement.SatisfiedWithdraw(ww, proposal.PublicInputs))

	wtx := &WithdrawTx{
		Amount:     ww.Amount,
		Nullifiers: proposal.Nullifiers,
		Root:       ww.Root,
		Output:     proposal.OutputCommitment,
		Proof:      fakeProof(proposal.PublicInputs),
	}
	require.NoError(t, l.Withdraw(wtx))
	require.Equal(t, uint256.NewInt(30), l.Reserve())

	// replay
	require.ErrorIs(t, l.Withdraw(wtx), ErrAlreadySpent)
}

func TestWithdrawReserveBound(t *testing.T) {
	l, _ := newTestLedger(t, true)
	owner := mustKey(t)

	note := types.NewNote(owner.Public(), uint256.NewInt(10))
	dw := &statement.DepositWitness{Output: note, Amount: uint256.NewInt(10)}
	pub, err := statement.AssembleDeposit(dw)
	require.NoError(t, err)
	require.NoError(t, l.Deposit(&DepositTx{Amount: dw.Amount, Output: note.Commitment(), Proof: fakeProof(pub)}))

	hi, lo := crypto.SplitScalar(owner)
	ww := &statement.WithdrawWitness{
		SkHi:   hi,
		SkLo:   lo,
		Inputs: []*types.Note{note},
		Amount: uint256.NewInt(10),
		Output: types.NewNote(owner.Public(), uint256.NewInt(0)),
		Root:   l.Root(),
	}
	proposal, err := statement.AssembleWithdraw(ww)
	require.NoError(t, err)

	over := &WithdrawTx{
		Amount:     uint256.NewInt(11),
		Nullifiers: proposal.Nullifiers,
		Root:       ww.Root,
		Output:     proposal.OutputCommitment,
		Proof:      fakeProof(proposal.PublicInputs),
	}
	require.ErrorIs(t, l.Withdraw(over), ErrInsufficientReserve)
}

func TestDirectModelTransferAndLock(t *testing.T) {
	l, minter := newTestLedger(t, false)
	sender := mustKey(t)
	receiver := mustKey(t)

	in1 := types.NewNote(sender.Public(), uint256.NewInt(60))
	in2 := types.NewNote(sender.Public(), uint256.NewInt(40))
	require.NoError(t, l.Mint(minter.Public(), []types.Commitment{in1.Commitment(), in2.Commitment()}, nil))
	require.Equal(t, StatusUnspent, l.StatusOf(in1.Commitment()))

	out := types.NewNote(receiver.Public(), uint256.NewInt(100))
	inputs := []types.Commitment{in1.Commitment(), in2.Commitment()}
	outputs := []types.Commitment{out.Commitment(), types.ZeroCommitment()}

	// in the direct model the prover binds input commitments where the
	// nullifier model binds nullifiers, with a zero root
	w := newWitness(t, sender, []*types.Note{in1, in2}, []*types.Note{out}, new(big.Int))
	proposal, err := statement.Assemble(w)
	require.NoError(t, err)

	inInts := make([]*big.Int, len(inputs))
	enabled := make([]bool, len(inputs))
	for i, c := range inputs {
		inInts[i] = new(big.Int).SetBytes(c)
		enabled[i] = true
	}
	outInts := []*big.Int{new(big.Int).SetBytes(outputs[0]), new(big.Int)}
	pub, err := statement.TransferPublicInputs(
		statement.SingleSize, proposal.EncryptedValues, inInts,
		new(big.Int), enabled, new(big.Int), outInts, proposal.Nonce,
	)
	require.NoError(t, err)

	// lock in1 to a delegate; spending without the delegate fails
	delegate := []byte("settlement-agent")
	require.NoError(t, l.Lock([]types.Commitment{in1.Commitment()}, delegate))

	tx := &TransferTx{
		Inputs:            inputs,
		OutputCommitments: outputs,
		EncryptedValues:   proposal.EncryptedValues,
		Nonce:             proposal.Nonce,
		Root:              new(big.Int),
		Proof:             fakeProof(pub),
	}
	require.ErrorIs(t, l.Transfer(tx), ErrLocked)

	tx.Delegate = delegate
	require.NoError(t, l.Transfer(tx))
	require.Equal(t, StatusSpent, l.StatusOf(in1.Commitment()))
	require.Equal(t, StatusUnspent, l.StatusOf(out.Commitment()))

	// spent inputs cannot move again
	require.ErrorIs(t, l.Transfer(tx), ErrAlreadySpent)
}

func TestDirectModelRejectsUnknownInput(t *testing.T) {
	l, _ := newTestLedger(t, false)
	sender := mustKey(t)
	receiver := mustKey(t)

	in := types.NewNote(sender.Public(), uint256.NewInt(10))
	out := types.NewNote(receiver.Public(), uint256.NewInt(10))

	w := newWitness(t, sender, []*types.Note{in}, []*types.Note{out}, new(big.Int))
	proposal, err := statement.Assemble(w)
	require.NoError(t, err)

	inputs := []types.Commitment{in.Commitment(), types.ZeroCommitment()}
	inInts, enabled := []*big.Int{new(big.Int).SetBytes(inputs[0]), new(big.Int)}, []bool{true, false}
	outInts := []*big.Int{new(big.Int).SetBytes(out.Commitment()), new(big.Int)}
	pub, err := statement.TransferPublicInputs(
		statement.SingleSize, proposal.EncryptedValues, inInts,
		new(big.Int), enabled, new(big.Int), outInts, proposal.Nonce,
	)
	require.NoError(t, err)

	tx := &TransferTx{
		Inputs:            inputs,
		OutputCommitments: []types.Commitment{out.Commitment(), types.ZeroCommitment()},
		EncryptedValues:   proposal.EncryptedValues,
		Nonce:             proposal.Nonce,
		Root:              new(big.Int),
		Proof:             fakeProof(pub),
	}
	require.ErrorIs(t, l.Transfer(tx), ErrUnknownInput)
}

func TestLockRequiresUnspent(t *testing.T) {
	l, minter := newTestLedger(t, false)
	owner := mustKey(t)

	note := types.NewNote(owner.Public(), uint256.NewInt(5))
	require.ErrorIs(t, l.Lock([]types.Commitment{note.Commitment()}, []byte("d")), ErrUnknownInput)

	require.NoError(t, l.Mint(minter.Public(), []types.Commitment{note.Commitment()}, nil))
	require.NoError(t, l.Lock([]types.Commitment{note.Commitment()}, []byte("d")))

	// a different delegate cannot take over the lock
	require.ErrorIs(t, l.Lock([]types.Commitment{note.Commitment()}, []byte("e")), ErrLocked)
	// relocking to the same delegate is a no-op
	require.NoError(t, l.Lock([]types.Commitment{note.Commitment()}, []byte("d")))
}

func TestLockRejectedInNullifierModel(t *testing.T) {
	l, _ := newTestLedger(t, true)
	require.ErrorIs(t, l.Lock([]types.Commitment{types.ZeroCommitment()}, []byte("d")), ErrStructural)
}
