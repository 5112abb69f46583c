package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// Signatures are plain ed25519 over the canonical byte encoding of whatever
// is being signed, hex encoded so they travel inside JSON payloads.

// Sign produces a hex-encoded signature over data.
func Sign(priv PrivateKey, data []byte) string {
	return hex.EncodeToString(ed25519.Sign(ed25519.PrivateKey(priv), data))
}

// Verify reports whether sigHex is pub's valid signature over data.
func Verify(pub PublicKey, data []byte, sigHex string) error {
	raw, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("signature hex: %w", err)
	}
	if len(raw) != ed25519.SignatureSize {
		return fmt.Errorf("signature is %d bytes, want %d", len(raw), ed25519.SignatureSize)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), data, raw) {
		return errors.New("signature verification failed")
	}
	return nil
}
