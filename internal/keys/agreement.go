package keys

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// RFC 3526 group 14: 2048-bit MODP prime, generator 2.
const group14PrimeHex = "" +
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AACAA68FFFFFFFFFFFFFFFF"

const groupByteLen = 256

var (
	groupPrime     = mustHexInt(group14PrimeHex)
	groupGenerator = big.NewInt(2)
	one            = big.NewInt(1)
	two            = big.NewInt(2)
)

var errInvalidPeerKey = errors.New("peer public value out of range")

func mustHexInt(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("keys: invalid group prime")
	}
	return n
}

// party is one side of an ephemeral finite-field Diffie-Hellman exchange.
type party struct {
	private *big.Int
	public  *big.Int
}

func newParty(random io.Reader) (*party, error) {
	// private in [2, p-2]
	upper := new(big.Int).Sub(groupPrime, big.NewInt(3))
	x, err := rand.Int(random, upper)
	if err != nil {
		return nil, fmt.Errorf("generate private value: %w", err)
	}
	x.Add(x, two)
	return &party{
		private: x,
		public:  new(big.Int).Exp(groupGenerator, x, groupPrime),
	}, nil
}

func (p *party) sharedSecret(peer *big.Int) ([]byte, error) {
	pMinusOne := new(big.Int).Sub(groupPrime, one)
	if peer.Cmp(one) <= 0 || peer.Cmp(pMinusOne) >= 0 {
		return nil, errInvalidPeerKey
	}
	s := new(big.Int).Exp(peer, p.private, groupPrime)
	return s.FillBytes(make([]byte, groupByteLen)), nil
}

// DeriveSymmetricKey runs a two-party group 14 exchange and hashes the shared
// secret with SHA-256 into a 32-byte key.
func DeriveSymmetricKey(random io.Reader) ([]byte, error) {
	if random == nil {
		random = rand.Reader
	}
	alice, err := newParty(random)
	if err != nil {
		return nil, err
	}
	bob, err := newParty(random)
	if err != nil {
		return nil, err
	}

	aliceSecret, err := alice.sharedSecret(bob.public)
	if err != nil {
		return nil, err
	}
	bobSecret, err := bob.sharedSecret(alice.public)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(aliceSecret, bobSecret) {
		return nil, errors.New("key agreement produced mismatched secrets")
	}

	sum := sha256.Sum256(aliceSecret)
	return sum[:], nil
}
