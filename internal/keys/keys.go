// Package keys owns the process-wide key material: one symmetric key for
// envelope encryption and one RSA keypair for attestation signatures.
//
// A *Material is built once at startup by Load and injected into every
// component that needs it. It is immutable after construction and safe for
// unlimited concurrent readers; there is no package-level key state.
package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"custody/pkg/platform/sentinel"
)

const (
	// SymmetricKeySize is the AES-256 key length in bytes.
	SymmetricKeySize = 32
	// SigningKeyBits is the RSA modulus size.
	SigningKeyBits = 2048
)

// Material is the read-only key handle.
type Material struct {
	symmetric []byte
	signing   *rsa.PrivateKey
}

// New validates and wraps existing key material.
func New(symmetric []byte, signing *rsa.PrivateKey) (*Material, error) {
	if len(symmetric) != SymmetricKeySize {
		return nil, fmt.Errorf("symmetric key must be %d bytes, got %d: %w", SymmetricKeySize, len(symmetric), ErrCorrupt)
	}
	if signing == nil {
		return nil, fmt.Errorf("signing key missing: %w", ErrCorrupt)
	}
	if signing.N.BitLen() < SigningKeyBits {
		return nil, fmt.Errorf("signing key is %d bits, need %d: %w", signing.N.BitLen(), SigningKeyBits, ErrCorrupt)
	}
	if err := signing.Validate(); err != nil {
		return nil, fmt.Errorf("signing key invalid: %v: %w", err, ErrCorrupt)
	}
	signing.Precompute()
	return &Material{
		symmetric: append([]byte(nil), symmetric...),
		signing:   signing,
	}, nil
}

type loadConfig struct {
	random io.Reader
	logger *slog.Logger
}

type Option func(*loadConfig)

// WithRandom overrides the entropy source for key generation.
func WithRandom(r io.Reader) Option {
	return func(c *loadConfig) { c.random = r }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *loadConfig) { c.logger = logger }
}

// Load returns the key material held by store, creating and persisting any
// half that does not exist yet. Material that exists but cannot be parsed is
// an error; it is never silently regenerated because that would invalidate
// every earlier signature and ciphertext.
func Load(store KeyStore, opts ...Option) (*Material, error) {
	cfg := loadConfig{random: rand.Reader, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}

	symmetric, err := store.LoadSymmetricKey()
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		symmetric, err = DeriveSymmetricKey(cfg.random)
		if err != nil {
			return nil, fmt.Errorf("derive symmetric key: %w", err)
		}
		if err := store.SaveSymmetricKey(symmetric); err != nil {
			return nil, fmt.Errorf("persist symmetric key: %w", err)
		}
		cfg.logger.Info("derived symmetric key via group14 key agreement")
	case err != nil:
		return nil, fmt.Errorf("load symmetric key: %w", err)
	case len(symmetric) != SymmetricKeySize:
		return nil, fmt.Errorf("stored symmetric key is %d bytes: %w", len(symmetric), ErrCorrupt)
	}

	signing, err := store.LoadSigningKey()
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		signing, err = rsa.GenerateKey(cfg.random, SigningKeyBits)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		if err := store.SaveSigningKey(signing); err != nil {
			return nil, fmt.Errorf("persist signing key: %w", err)
		}
		cfg.logger.Info("generated signing keypair", "bits", SigningKeyBits)
	case err != nil:
		return nil, fmt.Errorf("load signing key: %w", err)
	default:
		cfg.logger.Info("loaded signing keypair")
	}

	return New(symmetric, signing)
}

// SymmetricKey returns a copy of the 32-byte envelope key.
func (m *Material) SymmetricKey() []byte {
	return append([]byte(nil), m.symmetric...)
}

// PublicKey returns the verification half of the signing keypair.
func (m *Material) PublicKey() *rsa.PublicKey {
	return &m.signing.PublicKey
}

// pssOptions fixes the salt to the hash length on both sides.
var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}

// Sign produces a randomized RSASSA-PSS SHA-256 signature over msg, so two
// signatures over the same message differ.
func (m *Material) Sign(msg []byte) ([]byte, error) {
	sum := sha256.Sum256(msg)
	sig, err := rsa.SignPSS(rand.Reader, m.signing, crypto.SHA256, sum[:], pssOptions)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

// Verify reports whether sig is a valid signature over msg. It never errors.
func (m *Material) Verify(msg, sig []byte) bool {
	return VerifyWith(&m.signing.PublicKey, msg, sig)
}

// VerifyWith checks a signature against an arbitrary public key, as an offline
// verifier holding only the exported PEM would.
func VerifyWith(pub *rsa.PublicKey, msg, sig []byte) bool {
	if pub == nil || len(sig) == 0 {
		return false
	}
	sum := sha256.Sum256(msg)
	return rsa.VerifyPSS(pub, crypto.SHA256, sum[:], sig, pssOptions) == nil
}

// PublicKeyPEM encodes the public key as a PKIX "PUBLIC KEY" PEM block.
func (m *Material) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&m.signing.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePublicKeyPEM is the inverse of PublicKeyPEM.
func ParsePublicKeyPEM(raw []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, errors.New("no PUBLIC KEY PEM block")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return pub, nil
}
