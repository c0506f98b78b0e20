package crypto

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	tedwards "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/zetolabs/zeto/utils"
)

// Field cipher: the confidentiality encoder whose transcript is reproduced
// inside the proof statement. The message (all output value/salt pairs of a
// transaction) is zero-padded to a multiple of 3 field elements, each element
// is masked additively with a MiMC stream derived from the ECDH shared point
// and the transaction nonce, and one trailing authentication element binds
// the whole ciphertext.

// CipherLen returns the ciphertext length for a message of n field elements.
func CipherLen(n int) int {
	return padLen(n) + 1
}

func padLen(n int) int {
	return ((n + 2) / 3) * 3
}

// EncryptFields encrypts msg under the shared point and nonce:
//
//	c[i]  = msg[i] + MiMC(X, Y, nonce, i)  (mod r)
//	c[k]  = MiMC(X, Y, nonce, c[0..k-1])
//
// The nonce must be unique per transaction; reusing it under the same shared
// point leaks the difference of the plaintexts.
func EncryptFields(shared *tedwards.PointAffine, nonce *big.Int, msg []*big.Int) []*big.Int {
	x := shared.X.BigInt(new(big.Int))
	y := shared.Y.BigInt(new(big.Int))

	k := padLen(len(msg))
	cipher := make([]*big.Int, 0, k+1)
	for i := 0; i < k; i++ {
		m := big.NewInt(0)
		if i < len(msg) {
			m = msg[i]
		}
		mask := utils.MiMCHashFields(x, y, nonce, big.NewInt(int64(i)))

		var c, me, maskE fr.Element
		me.SetBigInt(m)
		maskE.SetBigInt(mask)
		c.Add(&me, &maskE)
		cipher = append(cipher, c.BigInt(new(big.Int)))
	}
	cipher = append(cipher, authElement(x, y, nonce, cipher))
	return cipher
}

// DecryptFields reverses EncryptFields, returning the first n message
// elements. It fails if the authentication element does not match, which
// means a wrong shared secret, a wrong nonce, or a tampered ciphertext.
func DecryptFields(shared *tedwards.PointAffine, nonce *big.Int, cipher []*big.Int, n int) ([]*big.Int, error) {
	if len(cipher) < 2 || (len(cipher)-1)%3 != 0 {
		return nil, errors.New("malformed ciphertext length")
	}
	k := len(cipher) - 1
	if n > k {
		return nil, errors.New("message length exceeds ciphertext capacity")
	}

	x := shared.X.BigInt(new(big.Int))
	y := shared.Y.BigInt(new(big.Int))

	if authElement(x, y, nonce, cipher[:k]).Cmp(cipher[k]) != 0 {
		return nil, errors.New("ciphertext authentication failed")
	}

	msg := make([]*big.Int, 0, n)
	for i := 0; i < n; i++ {
		mask := utils.MiMCHashFields(x, y, nonce, big.NewInt(int64(i)))

		var m, ce, maskE fr.Element
		ce.SetBigInt(cipher[i])
		maskE.SetBigInt(mask)
		m.Sub(&ce, &maskE)
		msg = append(msg, m.BigInt(new(big.Int)))
	}
	return msg, nil
}

func authElement(x, y, nonce *big.Int, cipher []*big.Int) *big.Int {
	ins := make([]*big.Int, 0, len(cipher)+3)
	ins = append(ins, x, y, nonce)
	ins = append(ins, cipher...)
	return utils.MiMCHashFields(ins...)
}
