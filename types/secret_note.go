package types

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/signature"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/zetolabs/zeto/crypto"
)

// SecretNote is the plaintext opening of a note that is encrypted and sent to
// the recipient off-chain. The recipient recombines it with their own public
// key to reconstruct the Note and its commitment.
type SecretNote struct {
	Value *uint256.Int
	Salt  []byte
	Memo  []byte
}

// Bytes returns the RLP encoding of the SecretNote. It panics on encoding
// failure, which would indicate an internal error rather than bad input.
func (sn *SecretNote) Bytes() []byte {
	b, err := rlp.EncodeToBytes(sn)
	if err != nil {
		panic(fmt.Sprintf("failed to RLP encode SecretNote: %v", err))
	}
	return b
}

// EncodeRLP implements the rlp.Encoder interface.
func (sn *SecretNote) EncodeRLP(w *bytes.Buffer) error {
	// rlp has built-in support for *big.Int but not *uint256.Int
	return rlp.Encode(w, []interface{}{
		sn.Value.ToBig(),
		sn.Salt,
		sn.Memo,
	})
}

// DecodeRLP implements the rlp.Decoder interface.
func (sn *SecretNote) DecodeRLP(s *rlp.Stream) error {
	var temp struct {
		Value *big.Int
		Salt  []byte
		Memo  []byte
	}
	if err := s.Decode(&temp); err != nil {
		return err
	}
	value, overflow := uint256.FromBig(temp.Value)
	if overflow {
		return fmt.Errorf("note value overflows uint256")
	}
	sn.Value = value
	sn.Salt = temp.Salt
	sn.Memo = temp.Memo
	return nil
}

// ToNoteOf rebuilds the full Note for the given owner key.
func (sn *SecretNote) ToNoteOf(owner signature.PublicKey) *Note {
	return &Note{
		PubKey: owner,
		Value:  sn.Value,
		Salt:   sn.Salt,
	}
}

// EncryptSecretNote seals the SecretNote for the receiver. A fresh ephemeral
// key pair is generated; the returned ephemeral public key bytes must travel
// with the ciphertext so the receiver can derive the same AEAD key.
func EncryptSecretNote(sn *SecretNote, toPub signature.PublicKey) (enc []byte, ephPubKey []byte, err error) {
	ephKey, err := crypto.NewKey()
	if err != nil {
		return nil, nil, err
	}
	ephPubKey = ephKey.Public().Bytes()

	shared, err := crypto.ECDHSharedSecret(ephKey, toPub)
	if err != nil {
		return nil, nil, err
	}
	keyStream, err := crypto.ExpandKDF(shared, 44)
	if err != nil {
		return nil, nil, err
	}

	// [0:32] AEAD key, [32:44] nonce; the ephemeral public key is the
	// associated data, binding the ciphertext to this key exchange
	enc, err = crypto.EncryptNote(keyStream[:32], keyStream[32:44], sn.Bytes(), ephPubKey)
	if err != nil {
		return nil, nil, err
	}
	return enc, ephPubKey, nil
}

// DecryptSecretNote opens a ciphertext produced by EncryptSecretNote using
// the receiver's private key and the sender's ephemeral public key.
func DecryptSecretNote(enc []byte, ephPubKey []byte, receiver signature.Signer) (*SecretNote, error) {
	ephPub := crypto.NewPub()
	if _, err := ephPub.SetBytes(ephPubKey); err != nil {
		return nil, err
	}
	shared, err := crypto.ECDHSharedSecret(receiver, ephPub)
	if err != nil {
		return nil, err
	}
	keyStream, err := crypto.ExpandKDF(shared, 44)
	if err != nil {
		return nil, err
	}
	plain, err := crypto.DecryptNote(keyStream[:32], keyStream[32:44], enc, ephPubKey)
	if err != nil {
		return nil, err
	}
	var sn SecretNote
	if err := rlp.DecodeBytes(plain, &sn); err != nil {
		return nil, err
	}
	return &sn, nil
}
