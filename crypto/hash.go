// Package crypto wraps the ed25519 and SHA-256 primitives the chain uses for
// transaction signing, block sealing and deterministic id derivation.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the SHA-256 hash of data as a lowercase hex string.
func Hash(data []byte) string {
	return hex.EncodeToString(HashBytes(data))
}

// HashBytes returns the raw SHA-256 bytes of data.
func HashBytes(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}
