// Package envelope encrypts document bytes at rest with AES-256-CBC and
// PKCS#7 padding. Every Seal draws a fresh random IV; there is no API that
// accepts a caller-supplied IV for encryption.
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	dErrors "custody/pkg/domain-errors"
)

// IVSize is the CBC initialization vector length in bytes.
const IVSize = aes.BlockSize

// Cipher is safe for concurrent use.
type Cipher struct {
	block  cipher.Block
	random io.Reader
}

type Option func(*Cipher)

// WithRandom overrides the IV entropy source.
func WithRandom(r io.Reader) Option {
	return func(c *Cipher) { c.random = r }
}

// New builds a cipher around a 32-byte key.
func New(key []byte, opts ...Option) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("envelope key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	c := &Cipher{block: block, random: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encrypt returns the ciphertext and the lowercase hex IV used to produce it.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, string, error) {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(c.random, iv); err != nil {
		return nil, "", fmt.Errorf("generate iv: %w", err)
	}

	padded := pad(plaintext)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out, padded)
	return out, hex.EncodeToString(iv), nil
}

// Decrypt reverses Encrypt. Malformed IVs, lengths that are not a multiple of
// the block size and bad padding all fail with CodeIntegrity.
func (c *Cipher) Decrypt(ciphertext []byte, ivHex string) ([]byte, error) {
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != IVSize {
		return nil, dErrors.New(dErrors.CodeIntegrity, "invalid initialization vector")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, dErrors.New(dErrors.CodeIntegrity, "ciphertext is not a whole number of blocks")
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, ciphertext)
	plaintext, ok := unpad(out)
	if !ok {
		return nil, dErrors.New(dErrors.CodeIntegrity, "invalid padding")
	}
	return plaintext, nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, bool) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, false
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
