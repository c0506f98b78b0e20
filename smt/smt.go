// Package smt maintains the append-only accumulator of UTXO commitments and
// the window of recent roots the ledger accepts proofs against.
package smt

import (
	"bytes"
	"errors"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/accumulator/merkletree"
	"github.com/zetolabs/zeto/types"
	"github.com/zetolabs/zeto/utils"
)

// DefaultRootWindow is how many historical roots remain acceptable. Clients
// assemble proofs against a root that may be a few insertions stale by the
// time the transaction lands; a window absorbs that race without accepting
// arbitrarily old state.
const DefaultRootWindow = 16

var ErrLeafNotFound = errors.New("commitment is not in the tree")

// CommitmentTree is a MiMC merkle accumulator over the ledger's commitments.
// Leaves are only ever appended; spending is recorded by nullifier, never by
// removing a leaf.
type CommitmentTree struct {
	mtx sync.RWMutex

	tree       *merkletree.Tree
	leafBytes  []byte
	leaves     []types.Commitment
	roots      [][]byte
	rootWindow int
}

func NewCommitmentTree(rootWindow int) *CommitmentTree {
	if rootWindow <= 0 {
		rootWindow = DefaultRootWindow
	}
	return &CommitmentTree{
		tree:       merkletree.New(utils.MiMCHasher()),
		rootWindow: rootWindow,
	}
}

// Add appends a commitment leaf and records the new root in the window.
func (t *CommitmentTree) Add(commitment types.Commitment) int {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	t.tree.Push(commitment)
	t.leaves = append(t.leaves, commitment)
	t.leafBytes = append(t.leafBytes, commitment...)

	t.roots = append(t.roots, t.tree.Root())
	if len(t.roots) > t.rootWindow {
		t.roots = t.roots[len(t.roots)-t.rootWindow:]
	}
	return len(t.leaves) - 1
}

// Root returns the current accumulator root.
func (t *CommitmentTree) Root() *big.Int {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	if len(t.roots) == 0 {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(t.roots[len(t.roots)-1])
}

// HasRoot reports whether root is within the acceptance window.
func (t *CommitmentTree) HasRoot(root *big.Int) bool {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	for _, r := range t.roots {
		if new(big.Int).SetBytes(r).Cmp(root) == 0 {
			return true
		}
	}
	return false
}

// IndexOf returns the leaf index of a commitment, or -1.
func (t *CommitmentTree) IndexOf(commitment types.Commitment) int {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	for i, c := range t.leaves {
		if c.Equal(commitment) {
			return i
		}
	}
	return -1
}

func (t *CommitmentTree) Size() int {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return len(t.leaves)
}

// Witness rebuilds the membership proof for a commitment against the current
// root.
func (t *CommitmentTree) Witness(commitment types.Commitment) (root []byte, proofSet [][]byte, index, numLeaves uint64, err error) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	idx := -1
	for i, c := range t.leaves {
		if c.Equal(commitment) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil, 0, 0, ErrLeafNotFound
	}

	hasher := utils.MiMCHasher()
	root, proofSet, numLeaves, err = merkletree.BuildReaderProof(
		bytes.NewBuffer(t.leafBytes),
		hasher, hasher.Size(), uint64(idx),
	)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	return root, proofSet, uint64(idx), numLeaves, nil
}

// VerifyWitness checks a membership proof produced by Witness.
func VerifyWitness(root []byte, proofSet [][]byte, index, numLeaves uint64) bool {
	return merkletree.VerifyProof(utils.MiMCHasher(), root, proofSet, index, numLeaves)
}
