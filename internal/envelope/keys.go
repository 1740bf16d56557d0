package envelope

import (
	"crypto/sha256"
	"io"
	"sort"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey derives a per-peer-pair HMAC key from a shared root key. Sorting
// the pair before deriving means both the sender and the recipient compute
// the same key deterministically from their own point of view, without a
// lookup round-trip, directly from HKDF's info parameter.
func DeriveKey(rootKey []byte, peerA, peerB string) ([]byte, error) {
	a, b := peerA, peerB
	if a > b {
		a, b = b, a
	}
	info := []byte(a + "|" + b)

	reader := hkdf.New(sha256.New, rootKey, nil, info)
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
