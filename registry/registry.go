// Package registry is the KYC gate: an accumulator of approved owner keys.
// Transfers bind the accumulator root into their proof statement, so a
// transaction assembled against a set of approved identities cannot be
// replayed once the set has changed out from under it.
package registry

import (
	"bytes"
	"errors"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/accumulator/merkletree"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/consensys/gnark-crypto/signature"
	"github.com/rs/zerolog"
	"github.com/zetolabs/zeto/utils"
)

var (
	ErrNotRegistrar      = errors.New("caller is not the registrar")
	ErrAlreadyRegistered = errors.New("identity is already registered")
)

// Registry accumulates approved Baby Jubjub owner keys. Only the registrar
// set at construction may add identities; registration is append-only.
type Registry struct {
	mtx sync.RWMutex

	registrar signature.PublicKey
	tree      *merkletree.Tree
	members   map[string]bool
	root      []byte
	logger    zerolog.Logger
}

func New(registrar signature.PublicKey, logger zerolog.Logger) *Registry {
	return &Registry{
		registrar: registrar,
		tree:      merkletree.New(utils.MiMCHasher()),
		members:   map[string]bool{},
		logger:    logger.With().Str("module", "registry").Logger(),
	}
}

// identityLeaf digests the key's curve point the same way commitments digest
// their owner key.
func identityLeaf(pub signature.PublicKey) ([]byte, error) {
	p, ok := pub.(*eddsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not a Baby Jubjub key")
	}
	ax := p.A.X.Bytes()
	ay := p.A.Y.Bytes()
	return utils.MiMCHash(ax[:], ay[:]), nil
}

// Register adds an identity. The caller must be the registrar.
func (r *Registry) Register(caller, identity signature.PublicKey) error {
	if !bytes.Equal(caller.Bytes(), r.registrar.Bytes()) {
		return ErrNotRegistrar
	}
	leaf, err := identityLeaf(identity)
	if err != nil {
		return err
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()
	key := string(leaf)
	if r.members[key] {
		return ErrAlreadyRegistered
	}
	r.members[key] = true
	r.tree.Push(leaf)
	r.root = r.tree.Root()

	r.logger.Info().Hex("leaf", leaf).Int("size", len(r.members)).Msg("identity registered")
	return nil
}

// IsRegistered reports whether the identity has been approved.
func (r *Registry) IsRegistered(identity signature.PublicKey) bool {
	leaf, err := identityLeaf(identity)
	if err != nil {
		return false
	}
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.members[string(leaf)]
}

// IdentitiesRoot returns the accumulator root over all approved identities.
// An empty registry has a zero root.
func (r *Registry) IdentitiesRoot() *big.Int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return new(big.Int).SetBytes(r.root)
}

func (r *Registry) Size() int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return len(r.members)
}
