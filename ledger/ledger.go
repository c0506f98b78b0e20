// Package ledger is the on-chain half of the protocol: an append-only record
// of UTXO commitments plus the spent set, advanced only by transactions whose
// proofs verify against the exact public-input vector the ledger rebuilds.
package ledger

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/signature"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/zetolabs/zeto/crypto"
	"github.com/zetolabs/zeto/smt"
	"github.com/zetolabs/zeto/statement"
	"github.com/zetolabs/zeto/types"
)

// Status tracks a commitment's lifecycle in the direct spending model.
type Status int

const (
	StatusUnknown Status = iota
	StatusUnspent
	StatusSpent
)

func (s Status) String() string {
	switch s {
	case StatusUnspent:
		return "UNSPENT"
	case StatusSpent:
		return "SPENT"
	default:
		return "UNKNOWN"
	}
}

// TransferTx is a confidential transfer as submitted to the ledger. In the
// nullifier model the spent UTXOs are identified only by Nullifiers and Root;
// in the direct model they are named in Inputs. Zero entries are padding.
type TransferTx struct {
	Inputs            []types.Commitment
	Nullifiers        []types.Nullifier
	OutputCommitments []types.Commitment
	EncryptedValues   []*big.Int
	EphemeralPubKey   []byte
	Nonce             *big.Int
	Root              *big.Int

	// Delegate authorizes spending locked inputs in the direct model.
	Delegate []byte

	Proof *types.Proof
}

// DepositTx converts a transparent amount into one hidden UTXO. Data is an
// opaque payload recorded with the event.
type DepositTx struct {
	Amount *uint256.Int
	Output types.Commitment
	Proof  *types.Proof
	Data   []byte
}

// WithdrawTx releases a transparent amount by spending hidden UTXOs, leaving
// one hidden change output.
type WithdrawTx struct {
	Amount     *uint256.Int
	Nullifiers []types.Nullifier
	Root       *big.Int
	Output     types.Commitment
	Proof      *types.Proof
}

// Ledger is the token state machine. All mutating operations are atomic:
// every check runs before the first write, and a rejection leaves state
// untouched.
type Ledger struct {
	mtx sync.Mutex

	cfg    Config
	logger zerolog.Logger

	tree    *smt.CommitmentTree
	minted  map[string]bool
	spent   map[string]bool
	status  map[string]Status
	locks   map[string][]byte
	reserve *uint256.Int
}

func New(cfg Config) *Ledger {
	return &Ledger{
		cfg:     cfg,
		logger:  cfg.Logger.With().Str("module", "ledger").Logger(),
		tree:    cfg.newTree(),
		minted:  map[string]bool{},
		spent:   map[string]bool{},
		status:  map[string]Status{},
		locks:   map[string][]byte{},
		reserve: uint256.NewInt(0),
	}
}

// Root returns the current commitment accumulator root.
func (l *Ledger) Root() *big.Int {
	return l.tree.Root()
}

// IdentitiesRoot returns the KYC accumulator root the ledger binds into
// transfer vectors; zero when no registry is attached.
func (l *Ledger) IdentitiesRoot() *big.Int {
	return l.identitiesRoot()
}

// IsSpent reports whether a nullifier has been recorded.
func (l *Ledger) IsSpent(n types.Nullifier) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.spent[string(n)]
}

// StatusOf reports a commitment's lifecycle state in the direct model.
func (l *Ledger) StatusOf(c types.Commitment) Status {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.status[string(c)]
}

// Reserve returns the transparent balance backing deposited UTXOs.
func (l *Ledger) Reserve() *uint256.Int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.reserve.Clone()
}

// Mint appends new UTXO commitments without proof. Only the configured
// minter may call it; mint carries no value statement, so issuance policy
// lives entirely in who holds the minter key. data is an opaque payload
// recorded with the event, typically the encrypted openings for the owners.
func (l *Ledger) Mint(caller signature.PublicKey, outputs []types.Commitment, data []byte) error {
	if l.cfg.Minter == nil || !bytes.Equal(caller.Bytes(), l.cfg.Minter.Bytes()) {
		return ErrNotAuthorized
	}
	if len(outputs) == 0 {
		return ErrStructural
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	for _, c := range outputs {
		if c.IsZero() {
			return ErrStructural
		}
		if l.minted[string(c)] {
			return ErrAlreadyMinted
		}
	}
	for _, c := range outputs {
		l.addCommitment(c)
	}
	l.logger.Info().Int("outputs", len(outputs)).Int("data", len(data)).Msg("minted")
	return nil
}

// Transfer validates and applies one confidential transfer.
//
// The check order is structural shape, root recognition, proof verification
// against the rebuilt vector, then conflict detection. Everything before the
// final loop is read-only.
func (l *Ledger) Transfer(tx *TransferTx) error {
	size, nulls, inputs, outputs, err := l.transferShape(tx)
	if err != nil {
		return err
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	var inputInts []*big.Int
	var enabled []bool
	if l.cfg.UseNullifiers {
		if !l.tree.HasRoot(tx.Root) {
			return ErrUnrecognizedRoot
		}
		inputInts, enabled = nullifierVector(nulls)
	} else {
		inputInts, enabled = commitmentVector(inputs)
	}

	pub, err := statement.TransferPublicInputs(
		size,
		tx.EncryptedValues,
		inputInts,
		tx.Root,
		enabled,
		l.identitiesRoot(),
		commitmentInts(outputs),
		tx.Nonce,
	)
	if err != nil {
		return ErrStructural
	}
	if !l.verifierFor(size).Verify(tx.Proof, pub) {
		return ErrProofInvalid
	}

	if l.cfg.UseNullifiers {
		if err := l.checkNullifiersFresh(nulls); err != nil {
			return err
		}
	} else {
		if err := l.checkInputsSpendable(inputs, tx.Delegate); err != nil {
			return err
		}
	}
	if err := l.checkOutputsFresh(outputs); err != nil {
		return err
	}

	// all checks passed, mutate
	if l.cfg.UseNullifiers {
		for _, n := range nulls {
			if !n.IsZero() {
				l.spent[string(n)] = true
			}
		}
	} else {
		for _, c := range inputs {
			if !c.IsZero() {
				l.status[string(c)] = StatusSpent
				delete(l.locks, string(c))
			}
		}
	}
	for _, c := range outputs {
		if !c.IsZero() {
			l.addCommitment(c)
		}
	}

	l.logger.Info().
		Int("size", size).
		Str("root", l.tree.Root().Text(16)).
		Msg("transfer applied")
	return nil
}

// Deposit mints one UTXO backed by a transparent amount. The proof attests
// that the commitment hides exactly that amount.
func (l *Ledger) Deposit(tx *DepositTx) error {
	if tx.Amount == nil || tx.Output == nil || tx.Output.IsZero() || tx.Proof == nil {
		return ErrStructural
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	pub := statement.DepositPublicInputs(tx.Amount, tx.Output)
	if l.cfg.Verifiers.Deposit == nil || !l.cfg.Verifiers.Deposit.Verify(tx.Proof, pub) {
		return ErrProofInvalid
	}
	if l.minted[string(tx.Output)] {
		return ErrAlreadyMinted
	}

	l.addCommitment(tx.Output)
	l.reserve.Add(l.reserve, tx.Amount)
	l.logger.Info().Str("amount", tx.Amount.Dec()).Msg("deposit applied")
	return nil
}

// Withdraw spends hidden UTXOs and releases their amount from the reserve.
// Withdraw runs in the nullifier model only.
func (l *Ledger) Withdraw(tx *WithdrawTx) error {
	if !l.cfg.UseNullifiers {
		return ErrStructural
	}
	if tx.Amount == nil || tx.Root == nil || tx.Proof == nil ||
		len(tx.Nullifiers) != statement.SingleSize ||
		tx.Output == nil || tx.Output.IsZero() {
		return ErrStructural
	}
	if keys := nullifierKeys(tx.Nullifiers); len(keys) == 0 || hasDuplicates(keys) {
		return ErrStructural
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	if !l.tree.HasRoot(tx.Root) {
		return ErrUnrecognizedRoot
	}
	if tx.Amount.Gt(l.reserve) {
		return ErrInsufficientReserve
	}

	nInts, enabled := nullifierVector(tx.Nullifiers)
	pub, err := statement.WithdrawPublicInputs(tx.Amount, nInts, tx.Root, enabled, tx.Output)
	if err != nil {
		return ErrStructural
	}
	if l.cfg.Verifiers.Withdraw == nil || !l.cfg.Verifiers.Withdraw.Verify(tx.Proof, pub) {
		return ErrProofInvalid
	}
	if err := l.checkNullifiersFresh(tx.Nullifiers); err != nil {
		return err
	}
	if l.minted[string(tx.Output)] {
		return ErrAlreadyMinted
	}

	for _, n := range tx.Nullifiers {
		if !n.IsZero() {
			l.spent[string(n)] = true
		}
	}
	l.addCommitment(tx.Output)
	l.reserve.Sub(l.reserve, tx.Amount)
	l.logger.Info().Str("amount", tx.Amount.Dec()).Msg("withdraw applied")
	return nil
}

// Lock reserves unspent UTXOs for a delegate in the direct model. A locked
// UTXO can only be spent by a transfer naming that delegate.
func (l *Ledger) Lock(inputs []types.Commitment, delegate []byte) error {
	if l.cfg.UseNullifiers {
		return ErrStructural
	}
	if len(inputs) == 0 || len(delegate) == 0 {
		return ErrStructural
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	for _, c := range inputs {
		if l.status[string(c)] != StatusUnspent {
			return ErrUnknownInput
		}
		if held, ok := l.locks[string(c)]; ok && !bytes.Equal(held, delegate) {
			return ErrLocked
		}
	}
	for _, c := range inputs {
		l.locks[string(c)] = delegate
	}
	l.logger.Info().Int("inputs", len(inputs)).Msg("locked")
	return nil
}

func (l *Ledger) addCommitment(c types.Commitment) {
	l.minted[string(c)] = true
	l.status[string(c)] = StatusUnspent
	l.tree.Add(c)
}

func (l *Ledger) identitiesRoot() *big.Int {
	if l.cfg.Registry == nil {
		return new(big.Int)
	}
	return l.cfg.Registry.IdentitiesRoot()
}

func (l *Ledger) verifierFor(size int) ProofVerifier {
	if size == statement.BatchSize {
		return l.cfg.Verifiers.Batch
	}
	return l.cfg.Verifiers.Single
}

// transferShape normalizes a transfer before touching any state: the spent
// and output arrays are padded with zero sentinels to the circuit size that
// carries them, then the padded geometry is validated. The caller's slices
// are never mutated.
func (l *Ledger) transferShape(tx *TransferTx) (int, []types.Nullifier, []types.Commitment, []types.Commitment, error) {
	if tx == nil || tx.Proof == nil || tx.Nonce == nil || tx.Root == nil {
		return 0, nil, nil, nil, ErrStructural
	}

	var spent int
	if l.cfg.UseNullifiers {
		spent = len(tx.Nullifiers)
	} else {
		spent = len(tx.Inputs)
	}
	size, err := statement.PadSize(max(spent, len(tx.OutputCommitments)))
	if err != nil {
		return 0, nil, nil, nil, fmt.Errorf("%w: %v", ErrStructural, err)
	}
	nulls := padNullifiers(tx.Nullifiers, size)
	inputs := padCommitments(tx.Inputs, size)
	outputs := padCommitments(tx.OutputCommitments, size)

	if len(tx.EncryptedValues) != crypto.CipherLen(2*size) {
		return 0, nil, nil, nil, ErrStructural
	}
	if l.verifierFor(size) == nil {
		return 0, nil, nil, nil, ErrStructural
	}
	if allZeroCommitments(outputs) {
		return 0, nil, nil, nil, ErrStructural
	}

	// duplicate non-zero entries are rejected before any cryptographic work
	var inputKeys []string
	if l.cfg.UseNullifiers {
		inputKeys = nullifierKeys(nulls)
	} else {
		inputKeys = commitmentKeys(inputs)
	}
	if len(inputKeys) == 0 || hasDuplicates(inputKeys) {
		return 0, nil, nil, nil, ErrStructural
	}
	if hasDuplicates(commitmentKeys(outputs)) {
		return 0, nil, nil, nil, ErrStructural
	}
	return size, nulls, inputs, outputs, nil
}

func padNullifiers(ns []types.Nullifier, size int) []types.Nullifier {
	padded := make([]types.Nullifier, size)
	for i := range padded {
		if i < len(ns) && len(ns[i]) > 0 {
			padded[i] = ns[i]
		} else {
			padded[i] = types.ZeroNullifier()
		}
	}
	return padded
}

func padCommitments(cs []types.Commitment, size int) []types.Commitment {
	padded := make([]types.Commitment, size)
	for i := range padded {
		if i < len(cs) && len(cs[i]) > 0 {
			padded[i] = cs[i]
		} else {
			padded[i] = types.ZeroCommitment()
		}
	}
	return padded
}

// checkNullifiersFresh is the defensive double-spend check: structurally
// impossible to fail with a valid proof against consistent state, checked
// anyway.
func (l *Ledger) checkNullifiersFresh(ns []types.Nullifier) error {
	for _, n := range ns {
		if n.IsZero() {
			continue
		}
		if l.spent[string(n)] {
			return ErrAlreadySpent
		}
	}
	return nil
}

func (l *Ledger) checkInputsSpendable(inputs []types.Commitment, delegate []byte) error {
	for _, c := range inputs {
		if c.IsZero() {
			continue
		}
		switch l.status[string(c)] {
		case StatusUnspent:
		case StatusSpent:
			return ErrAlreadySpent
		default:
			return ErrUnknownInput
		}
		if held, ok := l.locks[string(c)]; ok && !bytes.Equal(held, delegate) {
			return ErrLocked
		}
	}
	return nil
}

func (l *Ledger) checkOutputsFresh(outputs []types.Commitment) error {
	for _, c := range outputs {
		if c.IsZero() {
			continue
		}
		if l.minted[string(c)] {
			return ErrAlreadyMinted
		}
	}
	return nil
}

func nullifierVector(ns []types.Nullifier) ([]*big.Int, []bool) {
	ints := make([]*big.Int, len(ns))
	enabled := make([]bool, len(ns))
	for i, n := range ns {
		ints[i] = new(big.Int).SetBytes(n)
		enabled[i] = !n.IsZero()
	}
	return ints, enabled
}

func commitmentVector(cs []types.Commitment) ([]*big.Int, []bool) {
	ints := make([]*big.Int, len(cs))
	enabled := make([]bool, len(cs))
	for i, c := range cs {
		ints[i] = new(big.Int).SetBytes(c)
		enabled[i] = !c.IsZero()
	}
	return ints, enabled
}

func commitmentInts(cs []types.Commitment) []*big.Int {
	ints := make([]*big.Int, len(cs))
	for i, c := range cs {
		ints[i] = new(big.Int).SetBytes(c)
	}
	return ints
}

func nullifierKeys(ns []types.Nullifier) []string {
	keys := make([]string, 0, len(ns))
	for _, n := range ns {
		if !n.IsZero() {
			keys = append(keys, string(n))
		}
	}
	return keys
}

func commitmentKeys(cs []types.Commitment) []string {
	keys := make([]string, 0, len(cs))
	for _, c := range cs {
		if !c.IsZero() {
			keys = append(keys, string(c))
		}
	}
	return keys
}

func hasDuplicates(keys []string) bool {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			return true
		}
		seen[k] = true
	}
	return false
}

func allZeroCommitments(cs []types.Commitment) bool {
	for _, c := range cs {
		if !c.IsZero() {
			return false
		}
	}
	return true
}
