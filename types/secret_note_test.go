package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/zetolabs/zeto/crypto"
	"github.com/zetolabs/zeto/utils"
)

func TestSecretNoteRLP(t *testing.T) {
	sn := &SecretNote{
		Value: uint256.NewInt(1234),
		Salt:  utils.RandFieldElement(),
		Memo:  []byte("invoice 42"),
	}

	var got SecretNote
	require.NoError(t, rlp.DecodeBytes(sn.Bytes(), &got))
	require.Equal(t, sn.Value, got.Value)
	require.Equal(t, sn.Salt, got.Salt)
	require.Equal(t, sn.Memo, got.Memo)
}

func TestSecretNoteEnvelope(t *testing.T) {
	receiver, err := crypto.NewKey()
	require.NoError(t, err)

	sn := &SecretNote{
		Value: uint256.NewInt(77),
		Salt:  utils.RandFieldElement(),
	}

	enc, ephPub, err := EncryptSecretNote(sn, receiver.Public())
	require.NoError(t, err)

	got, err := DecryptSecretNote(enc, ephPub, receiver)
	require.NoError(t, err)
	require.Equal(t, sn.Value, got.Value)
	require.Equal(t, sn.Salt, got.Salt)

	// the rebuilt note commits to the same UTXO
	note := got.ToNoteOf(receiver.Public())
	want := (&Note{PubKey: receiver.Public(), Value: sn.Value, Salt: sn.Salt}).Commitment()
	require.True(t, note.Commitment().Equal(want))

	// wrong receiver cannot open the envelope
	stranger, err := crypto.NewKey()
	require.NoError(t, err)
	_, err = DecryptSecretNote(enc, ephPub, stranger)
	require.Error(t, err)
}
