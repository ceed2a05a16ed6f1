package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"custody/pkg/platform/sentinel"
)

// ErrCorrupt marks persisted key material that exists but cannot be used.
var ErrCorrupt = errors.New("key material corrupt")

// KeyStore persists the signing keypair and derived symmetric key across
// restarts. Load methods return sentinel.ErrNotFound when nothing is stored.
type KeyStore interface {
	LoadSigningKey() (*rsa.PrivateKey, error)
	SaveSigningKey(key *rsa.PrivateKey) error
	LoadSymmetricKey() ([]byte, error)
	SaveSymmetricKey(key []byte) error
}

const (
	signingKeyFile   = "signing.pem"
	symmetricKeyFile = "symmetric.key"
)

// FileKeyStore keeps PEM and hex files under one directory with 0600 permissions.
type FileKeyStore struct {
	dir string
}

func NewFileKeyStore(dir string) *FileKeyStore {
	return &FileKeyStore{dir: dir}
}

func (s *FileKeyStore) LoadSigningKey() (*rsa.PrivateKey, error) {
	raw, err := s.read(signingKeyFile)
	if err != nil {
		return nil, err
	}
	return parsePrivateKeyPEM(raw)
}

func (s *FileKeyStore) SaveSigningKey(key *rsa.PrivateKey) error {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal signing key: %w", err)
	}
	return s.write(signingKeyFile, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func (s *FileKeyStore) LoadSymmetricKey() ([]byte, error) {
	raw, err := s.read(symmetricKeyFile)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symmetricKeyFile, ErrCorrupt)
	}
	return key, nil
}

func (s *FileKeyStore) SaveSymmetricKey(key []byte) error {
	return s.write(symmetricKeyFile, []byte(hex.EncodeToString(key)+"\n"))
}

func (s *FileKeyStore) read(name string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return raw, nil
}

// write creates the file exclusively so two processes starting together
// never overwrite each other's key.
func (s *FileKeyStore) write(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s: %w", name, sentinel.ErrConflict)
		}
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}

func parsePrivateKeyPEM(raw []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("signing key: no PEM block: %w", ErrCorrupt)
	}
	var parsed any
	var err error
	switch block.Type {
	case "PRIVATE KEY":
		parsed, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		parsed, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("signing key: unexpected PEM type %q: %w", block.Type, ErrCorrupt)
	}
	if err != nil {
		return nil, fmt.Errorf("signing key: %v: %w", err, ErrCorrupt)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key: not an RSA key: %w", ErrCorrupt)
	}
	return key, nil
}

// MemoryKeyStore keeps key material in memory. Used by tests and by
// processes that run with in-memory document storage.
type MemoryKeyStore struct {
	mu        sync.Mutex
	signing   *rsa.PrivateKey
	symmetric []byte
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{}
}

func (s *MemoryKeyStore) LoadSigningKey() (*rsa.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signing == nil {
		return nil, fmt.Errorf("signing key: %w", sentinel.ErrNotFound)
	}
	return s.signing, nil
}

func (s *MemoryKeyStore) SaveSigningKey(key *rsa.PrivateKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signing != nil {
		return fmt.Errorf("signing key: %w", sentinel.ErrConflict)
	}
	s.signing = key
	return nil
}

func (s *MemoryKeyStore) LoadSymmetricKey() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.symmetric == nil {
		return nil, fmt.Errorf("symmetric key: %w", sentinel.ErrNotFound)
	}
	return append([]byte(nil), s.symmetric...), nil
}

func (s *MemoryKeyStore) SaveSymmetricKey(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.symmetric != nil {
		return fmt.Errorf("symmetric key: %w", sentinel.ErrConflict)
	}
	s.symmetric = append([]byte(nil), key...)
	return nil
}
