// Package signing produces and checks custodian attestation signatures over
// hex digests. Signatures travel as standard base64.
package signing

import (
	"encoding/base64"
	"fmt"
)

// KeyPair is the slice of key material the signer needs.
type KeyPair interface {
	Sign(msg []byte) ([]byte, error)
	Verify(msg, sig []byte) bool
}

type Signer struct {
	keys KeyPair
}

func New(keys KeyPair) *Signer {
	return &Signer{keys: keys}
}

// Sign signs the digest string's bytes.
func (s *Signer) Sign(digestHex string) (string, error) {
	sig, err := s.keys.Sign([]byte(digestHex))
	if err != nil {
		return "", fmt.Errorf("sign digest: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify reports whether signature is valid for digestHex. Malformed base64
// and wrong-length signatures yield false.
func (s *Signer) Verify(digestHex, signature string) bool {
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(raw) == 0 {
		return false
	}
	return s.keys.Verify([]byte(digestHex), raw)
}
