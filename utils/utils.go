package utils

import (
	"hash"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	_ "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	gnark_hash "github.com/consensys/gnark-crypto/hash"
)

func MiMCHasher() hash.Hash {
	return gnark_hash.MIMC_BN254.New()
}

// MiMCHash hashes the inputs with MiMC over the BN254 scalar field.
// Every input is written as one canonical 32-byte field element, so the
// transcript matches what the in-circuit MiMC gadget produces when the same
// values are written as single variables. Inputs longer than 32 bytes are
// split into 32-byte chunks, each reduced to canonical form.
func MiMCHash(ins ...[]byte) []byte {
	hasher := MiMCHasher()

	blockSize := hasher.Size()
	for _, in := range ins {
		if len(in) <= blockSize {
			writeCanonical(hasher, in)
			continue
		}
		for i := 0; i < len(in); i += blockSize {
			end := i + blockSize
			if end > len(in) {
				end = len(in)
			}
			writeCanonical(hasher, in[i:end])
		}
	}
	return hasher.Sum(nil)
}

// MiMCHashFields is MiMCHash over big.Int inputs.
func MiMCHashFields(ins ...*big.Int) *big.Int {
	hasher := MiMCHasher()
	for _, in := range ins {
		var elem fr.Element
		elem.SetBigInt(in)
		bz := elem.Bytes()
		if _, err := hasher.Write(bz[:]); err != nil {
			panic(err)
		}
	}
	return new(big.Int).SetBytes(hasher.Sum(nil))
}

func writeCanonical(hasher hash.Hash, chunk []byte) {
	// the chunk may encode a value greater than the modulus; reduce first
	var elem fr.Element
	elem.SetBytes(chunk)
	bz := elem.Bytes()
	if _, err := hasher.Write(bz[:]); err != nil {
		panic(err)
	}
}

// RandFieldElement returns 32 random bytes encoding a canonical BN254 scalar
// field element, suitable as a commitment salt.
func RandFieldElement() []byte {
	var elem fr.Element
	if _, err := elem.SetRandom(); err != nil {
		panic(err)
	}
	bz := elem.Bytes()
	return bz[:]
}
