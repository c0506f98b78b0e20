package types

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/consensys/gnark-crypto/signature"
	"github.com/zetolabs/zeto/crypto"
)

const addrVer = 0x01

// EncodeAddress encodes a compressed owner public key as a base58check
// address with the "zt" prefix.
func EncodeAddress(payload []byte) string {
	return "zt" + base58.CheckEncode(payload, addrVer)
}

func DecodeAddress(addr string) ([]byte, error) {
	if !strings.HasPrefix(addr, "zt") {
		return nil, fmt.Errorf("wrong prefix: got(%s)", addr[:2])
	}
	bz, ver, err := base58.CheckDecode(addr[2:])
	if err != nil {
		return nil, err
	}
	if ver != addrVer {
		return nil, fmt.Errorf("wrong version: expected(%d), got(%d)", addrVer, ver)
	}
	return bz, nil
}

func Pub2Addr(pubKey signature.PublicKey) string {
	return EncodeAddress(pubKey.Bytes())
}

func Addr2Pub(addr string) (signature.PublicKey, error) {
	pubKeyBytes, err := DecodeAddress(addr)
	if err != nil {
		return nil, err
	}
	pubKey := crypto.NewPub()
	if _, err := pubKey.SetBytes(pubKeyBytes); err != nil {
		return nil, err
	}
	return pubKey, nil
}
