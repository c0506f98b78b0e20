package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2s"
)

// kdfPersonalization keys the BLAKE2s expand step so the stream cannot
// collide with other uses of the shared secret.
var kdfPersonalization = []byte("Zeto_ExpandSeed")

// ExpandKDF derives a key stream of outputLen bytes from a 32-byte shared
// secret, following the PRF^expand construction (counter-mode BLAKE2s,
// counter starting at 1).
func ExpandKDF(sharedSecret []byte, outputLen int) ([]byte, error) {
	if len(sharedSecret) != 32 {
		return nil, fmt.Errorf("sharedSecret must be 32 bytes")
	}

	var keyStream []byte
	var counter byte = 1
	for len(keyStream) < outputLen {
		h, err := blake2s.New256(kdfPersonalization)
		if err != nil {
			return nil, fmt.Errorf("failed to create blake2s hash: %w", err)
		}
		h.Write(sharedSecret)
		h.Write([]byte{counter})
		keyStream = append(keyStream, h.Sum(nil)...)

		counter++
		if counter == 0 {
			return nil, errors.New("KDF counter overflow")
		}
	}
	return keyStream[:outputLen], nil
}
