package crypto

import (
	crand "crypto/rand"
	"errors"
	"math/big"

	tedwards "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	jubjub "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/consensys/gnark-crypto/signature"
	"golang.org/x/crypto/blake2s"
)

//
// Owner keys live on the Baby Jubjub curve (BN254 twisted Edwards), the same
// curve the proof statement's key-derivation check runs on.

func NewKey() (signature.Signer, error) {
	return jubjub.GenerateKey(crand.Reader)
}

func NewPub() signature.PublicKey {
	return new(jubjub.PublicKey)
}

// SplitScalar returns the two 128-bit limbs (hi, lo) of the signer's private
// scalar, scalar = hi*2^128 + lo. The limbs are what the nullifier transcript
// and the in-circuit key derivation consume.
func SplitScalar(signer signature.Signer) (hi, lo []byte) {
	s := signer.Bytes()[32:64]
	return s[:16], s[16:32]
}

// DerivePublicKey computes (hi*2^128 + lo) * Base. The result must equal the
// owner key embedded in every spent commitment; that equality is the
// ownership statement.
func DerivePublicKey(hi, lo []byte) *tedwards.PointAffine {
	scalar := new(big.Int).Lsh(new(big.Int).SetBytes(hi), 128)
	scalar.Add(scalar, new(big.Int).SetBytes(lo))

	params := tedwards.GetEdwardsCurve()
	var pub tedwards.PointAffine
	pub.ScalarMultiplication(&params.Base, scalar)
	return &pub
}

// PubKeyPoint exposes the affine curve point behind an owner public key.
func PubKeyPoint(pub signature.PublicKey) (*tedwards.PointAffine, error) {
	p, ok := pub.(*jubjub.PublicKey)
	if !ok {
		return nil, errors.New("public key is not a Baby Jubjub key")
	}
	return &p.A, nil
}

// ECDHSharedPoint computes privateKey * otherPublicKey on the curve. Both
// sides of a key exchange arrive at the same point.
func ECDHSharedPoint(signer signature.Signer, otherPub signature.PublicKey) (*tedwards.PointAffine, error) {
	other, err := PubKeyPoint(otherPub)
	if err != nil {
		return nil, err
	}
	if !other.IsOnCurve() {
		return nil, errors.New("other public key is not on curve")
	}

	scalarBytes := signer.Bytes()
	scalar := new(big.Int).SetBytes(scalarBytes[32:64])

	var shared tedwards.PointAffine
	shared.ScalarMultiplication(other, scalar)
	if !shared.IsOnCurve() {
		return nil, errors.New("computed shared secret is not on curve")
	}
	return &shared, nil
}

// ECDHSharedSecret hashes the shared point's X coordinate into a 32-byte
// symmetric secret for the AEAD path.
func ECDHSharedSecret(signer signature.Signer, otherPub signature.PublicKey) ([]byte, error) {
	shared, err := ECDHSharedPoint(signer, otherPub)
	if err != nil {
		return nil, err
	}
	hasher, err := blake2s.New256(nil)
	if err != nil {
		return nil, err
	}
	ax := shared.X.Bytes()
	hasher.Write(ax[:])
	return hasher.Sum(nil), nil
}
