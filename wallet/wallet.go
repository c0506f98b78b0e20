// Package wallet is the client side of the protocol: it keeps the off-chain
// note openings, selects notes to spend, drives the provers and recovers
// incoming notes from transfer ciphertexts.
package wallet

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/signature"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/zetolabs/zeto/crypto"
	"github.com/zetolabs/zeto/ledger"
	"github.com/zetolabs/zeto/statement"
	"github.com/zetolabs/zeto/types"
	"github.com/zetolabs/zeto/utils"
)

var (
	ErrInsufficientFunds     = errors.New("unspent notes do not cover the amount")
	ErrReceiverNotRegistered = errors.New("receiver identity is not registered")
)

// Registry is the KYC membership view the wallet consults before paying an
// address. A transfer to an unregistered receiver would bind a root the
// ledger's registry does not carry, so it is rejected at assembly instead.
type Registry interface {
	IsRegistered(pub signature.PublicKey) bool
}

// TransferProver produces a proof for an assembled transfer statement.
type TransferProver interface {
	Prove(w *statement.TransferWitness) (*types.Proof, *statement.TransferProposal, error)
}

// DepositProver and WithdrawProver cover the boundary statements.
type DepositProver interface {
	ProveDeposit(w *statement.DepositWitness) (*types.Proof, []*big.Int, error)
}

type WithdrawProver interface {
	ProveWithdraw(w *statement.WithdrawWitness) (*types.Proof, *statement.WithdrawProposal, error)
}

// Provers bundles one prover per statement the wallet can drive.
type Provers struct {
	Transfer TransferProver
	Deposit  DepositProver
	Withdraw WithdrawProver
}

// Delivery is the off-chain envelope for a transferred note: the AEAD
// ciphertext of the opening plus the ephemeral public key needed to derive
// the decryption secret.
type Delivery struct {
	EncSecretNote []byte
	EphPubKey     []byte
}

type Wallet struct {
	Address string
	Signer  signature.Signer

	mtx      sync.Mutex
	notes    []*types.Note
	provers  Provers
	registry Registry
	logger   zerolog.Logger
}

func New(provers Provers, logger zerolog.Logger) (*Wallet, error) {
	signer, err := crypto.NewKey()
	if err != nil {
		return nil, err
	}
	w := &Wallet{
		Address: types.Pub2Addr(signer.Public()),
		Signer:  signer,
		provers: provers,
	}
	w.logger = logger.With().Str("module", "wallet").Str("addr", w.Address).Logger()
	return w, nil
}

func (w *Wallet) PubKey() signature.PublicKey {
	return w.Signer.Public()
}

// RequireRegistry makes BuildTransfer refuse receivers missing from the KYC
// registry.
func (w *Wallet) RequireRegistry(r Registry) {
	w.registry = r
}

// AddNote records an unspent opening the wallet may later spend.
func (w *Wallet) AddNote(note *types.Note) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.notes = append(w.notes, note)
}

func (w *Wallet) Balance() *uint256.Int {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	total := uint256.NewInt(0)
	for _, n := range w.notes {
		total.Add(total, n.Value)
	}
	return total
}

func (w *Wallet) NoteCount() int {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return len(w.notes)
}

// selectNotes greedily picks unspent notes until they cover the amount, up to
// the full batch size. Outputs never compete for those slots: a transfer emits
// at most the payment and one change note.
func (w *Wallet) selectNotes(amount *uint256.Int) ([]*types.Note, *uint256.Int, error) {
	selected := make([]*types.Note, 0, statement.BatchSize)
	sum := uint256.NewInt(0)
	for _, n := range w.notes {
		if len(selected) == statement.BatchSize {
			break
		}
		selected = append(selected, n)
		sum.Add(sum, n.Value)
		if !sum.Lt(amount) {
			change := new(uint256.Int).Sub(sum, amount)
			return selected, change, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, sum.Dec(), amount.Dec())
}

// Pending records the note-state delta of a built transaction: the openings
// it spends and the change it books. Callers hold it until the ledger accepts
// the submission and pass it to Rollback when the ledger does not, so a
// rejection never strands value.
type Pending struct {
	spent []*types.Note
	added []*types.Note
}

// Rollback undoes the wallet-state changes of a transaction the ledger
// rejected: the spent openings come back and the change note is discarded.
func (w *Wallet) Rollback(p *Pending) {
	if p == nil {
		return
	}
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.dropNotes(p.added)
	w.notes = append(w.notes, p.spent...)
	w.logger.Info().Int("restored", len(p.spent)).Msg("rolled back rejected transaction")
}

// BuildTransfer assembles, proves and packages a confidential transfer of
// amount to the receiver address. The selected inputs are removed and the
// change note (if any) is kept; the returned Delivery carries the receiver's
// note opening off-chain, and the returned Pending can undo the spend if the
// ledger rejects the transaction.
func (w *Wallet) BuildTransfer(toAddr string, amount *uint256.Int, root, identitiesRoot *big.Int) (*ledger.TransferTx, *Delivery, *Pending, error) {
	toPub, err := types.Addr2Pub(toAddr)
	if err != nil {
		return nil, nil, nil, err
	}
	if w.registry != nil && !w.registry.IsRegistered(toPub) {
		return nil, nil, nil, ErrReceiverNotRegistered
	}

	w.mtx.Lock()
	defer w.mtx.Unlock()

	inputs, change, err := w.selectNotes(amount)
	if err != nil {
		return nil, nil, nil, err
	}

	payment := types.NewNote(toPub, amount)
	outputs := []*types.Note{payment}
	if !change.IsZero() {
		outputs = append(outputs, types.NewNote(w.Signer.Public(), change))
	}

	eph, err := crypto.NewKey()
	if err != nil {
		return nil, nil, nil, err
	}
	hi, lo := crypto.SplitScalar(w.Signer)
	wtn := &statement.TransferWitness{
		SkHi:           hi,
		SkLo:           lo,
		Inputs:         inputs,
		Outputs:        outputs,
		Root:           root,
		IdentitiesRoot: identitiesRoot,
		EphemeralKey:   eph,
		Nonce:          new(big.Int).SetBytes(utils.RandFieldElement()),
	}

	proof, proposal, err := w.provers.Transfer.Prove(wtn)
	if err != nil {
		return nil, nil, nil, err
	}

	encNote, ephPub, err := types.EncryptSecretNote(payment.ToSecretNote(), toPub)
	if err != nil {
		return nil, nil, nil, err
	}

	pending := &Pending{spent: inputs}
	w.dropNotes(inputs)
	if len(outputs) > 1 {
		w.notes = append(w.notes, outputs[1])
		pending.added = outputs[1:]
	}

	w.logger.Info().
		Str("to", toAddr).
		Str("amount", amount.Dec()).
		Int("inputs", len(inputs)).
		Msg("transfer built")

	return &ledger.TransferTx{
			Nullifiers:        proposal.Nullifiers,
			OutputCommitments: proposal.OutputCommitments,
			EncryptedValues:   proposal.EncryptedValues,
			EphemeralPubKey:   proposal.EphemeralPubKey,
			Nonce:             proposal.Nonce,
			Root:              proposal.Root,
			Proof:             proof,
		}, &Delivery{
			EncSecretNote: encNote,
			EphPubKey:     ephPub,
		}, pending, nil
}

// BuildDeposit creates a deposit of amount into a fresh note owned by the
// wallet. The note is kept immediately; deposits carry no inputs to lose.
func (w *Wallet) BuildDeposit(amount *uint256.Int) (*ledger.DepositTx, error) {
	note := types.NewNote(w.Signer.Public(), amount)
	proof, _, err := w.provers.Deposit.ProveDeposit(&statement.DepositWitness{
		Output: note,
		Amount: amount,
	})
	if err != nil {
		return nil, err
	}

	w.mtx.Lock()
	w.notes = append(w.notes, note)
	w.mtx.Unlock()

	w.logger.Info().Str("amount", amount.Dec()).Msg("deposit built")
	return &ledger.DepositTx{
		Amount: amount.Clone(),
		Output: note.Commitment(),
		Proof:  proof,
	}, nil
}

// BuildWithdraw spends notes covering amount and keeps the hidden change. The
// returned Pending can undo the spend if the ledger rejects the transaction.
func (w *Wallet) BuildWithdraw(amount *uint256.Int, root *big.Int) (*ledger.WithdrawTx, *Pending, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	inputs, change, err := w.selectNotes(amount)
	if err != nil {
		return nil, nil, err
	}
	if len(inputs) > statement.SingleSize {
		return nil, nil, fmt.Errorf("withdraw spends at most %d notes; consolidate first", statement.SingleSize)
	}

	changeNote := types.NewNote(w.Signer.Public(), change)
	hi, lo := crypto.SplitScalar(w.Signer)
	proof, proposal, err := w.provers.Withdraw.ProveWithdraw(&statement.WithdrawWitness{
		SkHi:   hi,
		SkLo:   lo,
		Inputs: inputs,
		Amount: amount,
		Output: changeNote,
		Root:   root,
	})
	if err != nil {
		return nil, nil, err
	}

	pending := &Pending{spent: inputs, added: []*types.Note{changeNote}}
	w.dropNotes(inputs)
	w.notes = append(w.notes, changeNote)

	w.logger.Info().Str("amount", amount.Dec()).Msg("withdraw built")
	return &ledger.WithdrawTx{
		Amount:     amount.Clone(),
		Nullifiers: proposal.Nullifiers,
		Root:       root,
		Output:     proposal.OutputCommitment,
		Proof:      proof,
	}, pending, nil
}

// ScanTransfer tries to recover notes addressed to this wallet from a
// transfer's in-proof ciphertext. Openings that do not reproduce one of the
// transaction's output commitments are discarded.
func (w *Wallet) ScanTransfer(tx *ledger.TransferTx) []*types.Note {
	if len(tx.EphemeralPubKey) == 0 {
		return nil
	}
	ephPub := crypto.NewPub()
	if _, err := ephPub.SetBytes(tx.EphemeralPubKey); err != nil {
		return nil
	}
	shared, err := crypto.ECDHSharedPoint(w.Signer, ephPub)
	if err != nil {
		return nil
	}

	size := len(tx.OutputCommitments)
	opened, err := crypto.DecryptFields(shared, tx.Nonce, tx.EncryptedValues, 2*size)
	if err != nil {
		// not addressed to us
		return nil
	}

	var recovered []*types.Note
	for i := 0; i < size; i++ {
		if tx.OutputCommitments[i].IsZero() {
			continue
		}
		value, overflow := uint256.FromBig(opened[2*i])
		if overflow {
			continue
		}
		note := &types.Note{
			PubKey: w.Signer.Public(),
			Value:  value,
			Salt:   opened[2*i+1].FillBytes(make([]byte, 32)),
		}
		if !note.Commitment().Equal(tx.OutputCommitments[i]) {
			continue
		}
		recovered = append(recovered, note)
	}

	if len(recovered) > 0 {
		w.mtx.Lock()
		w.notes = append(w.notes, recovered...)
		w.mtx.Unlock()
		w.logger.Info().Int("notes", len(recovered)).Msg("recovered incoming notes")
	}
	return recovered
}

// ReceiveDelivery decrypts an off-chain note envelope addressed to this
// wallet and keeps the note.
func (w *Wallet) ReceiveDelivery(d *Delivery) (*types.Note, error) {
	sn, err := types.DecryptSecretNote(d.EncSecretNote, d.EphPubKey, w.Signer)
	if err != nil {
		return nil, err
	}
	note := sn.ToNoteOf(w.Signer.Public())

	w.mtx.Lock()
	w.notes = append(w.notes, note)
	w.mtx.Unlock()
	return note, nil
}

func (w *Wallet) dropNotes(spent []*types.Note) {
	kept := w.notes[:0]
	for _, n := range w.notes {
		used := false
		for _, s := range spent {
			if bytes.Equal(n.Salt, s.Salt) {
				used = true
				break
			}
		}
		if !used {
			kept = append(kept, n)
		}
	}
	w.notes = kept
}
