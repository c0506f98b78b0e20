package types

import (
	"bytes"

	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/consensys/gnark-crypto/signature"
	"github.com/holiman/uint256"
	"github.com/zetolabs/zeto/utils"
)

// Commitment is the hiding, binding digest of a note's (value, salt, owner)
// triple. The zero commitment (all zero bytes) is reserved as the padding
// sentinel and never represents a real note.
type Commitment []byte

// Nullifier marks a commitment as spent without revealing which one.
type Nullifier []byte

// IsZero reports whether c is the padding sentinel.
func (c Commitment) IsZero() bool {
	for _, b := range c {
		if b != 0 {
			return false
		}
	}
	return true
}

func (n Nullifier) IsZero() bool {
	return Commitment(n).IsZero()
}

// ZeroCommitment returns the 32-byte padding sentinel.
func ZeroCommitment() Commitment {
	return make(Commitment, 32)
}

func ZeroNullifier() Nullifier {
	return make(Nullifier, 32)
}

// Note is the off-chain opening of a UTXO commitment. Only holders of the
// full opening (and the owner's private key) can spend it.
type Note struct {
	PubKey signature.PublicKey
	Value  *uint256.Int
	Salt   []byte
}

// NewNote creates a note for the given owner with a fresh random salt.
func NewNote(owner signature.PublicKey, value *uint256.Int) *Note {
	return &Note{
		PubKey: owner,
		Value:  value,
		Salt:   utils.RandFieldElement(),
	}
}

// Commitment computes C = MiMC(value, salt, ownerPubKey.X, ownerPubKey.Y),
// each field written as one canonical BN254 scalar element.
func (n *Note) Commitment() Commitment {
	pub := n.PubKey.(*eddsa.PublicKey)
	ax := pub.A.X.Bytes()
	ay := pub.A.Y.Bytes()
	value := n.Value.Bytes32()
	return utils.MiMCHash(value[:], n.Salt, ax[:], ay[:])
}

// NullifierFor computes N = MiMC(C, skHi, skLo) where skHi, skLo are the two
// 128-bit limbs of the owner's private scalar. Producing N requires knowledge
// of the private key yet does not reveal C.
func (n *Note) NullifierFor(skHi, skLo []byte) Nullifier {
	return Nullifier(utils.MiMCHash(n.Commitment(), skHi, skLo))
}

// ToSecretNote strips the owner key, leaving the payload that is encrypted
// for the receiver.
func (n *Note) ToSecretNote() *SecretNote {
	return &SecretNote{
		Value: n.Value,
		Salt:  n.Salt,
	}
}

func (c Commitment) Equal(other Commitment) bool {
	return bytes.Equal(c, other)
}

func (n Nullifier) Equal(other Nullifier) bool {
	return bytes.Equal(n, other)
}
