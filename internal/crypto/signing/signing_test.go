package signing

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/suite"

	"custody/internal/crypto/digest"
	"custody/internal/keys"
)

type SignerSuite struct {
	suite.Suite
	signer *Signer
}

func TestSignerSuite(t *testing.T) {
	suite.Run(t, new(SignerSuite))
}

func (s *SignerSuite) SetupSuite() {
	material, err := keys.Load(keys.NewMemoryKeyStore())
	s.Require().NoError(err)
	s.signer = New(material)
}

func (s *SignerSuite) TestRoundTrip() {
	for _, content := range []string{"hello", "", "offer letter", "\x00\xff"} {
		d := digest.Hex([]byte(content))
		sig, err := s.signer.Sign(d)
		s.Require().NoError(err)

		_, decodeErr := base64.StdEncoding.DecodeString(sig)
		s.Require().NoError(decodeErr, "signature must be standard base64")
		s.True(s.signer.Verify(d, sig))
	}
}

func (s *SignerSuite) TestSignaturesAreRandomized() {
	d := digest.Hex([]byte("offer letter"))
	first, err := s.signer.Sign(d)
	s.Require().NoError(err)
	second, err := s.signer.Sign(d)
	s.Require().NoError(err)

	s.NotEqual(first, second)
	s.True(s.signer.Verify(d, first))
	s.True(s.signer.Verify(d, second))
}

func (s *SignerSuite) TestRejections() {
	d := digest.Hex([]byte("hello"))
	sig, err := s.signer.Sign(d)
	s.Require().NoError(err)

	s.Run("different digest", func() {
		s.False(s.signer.Verify(digest.Hex([]byte("hellp")), sig))
	})

	s.Run("corrupted signature byte", func() {
		raw, err := base64.StdEncoding.DecodeString(sig)
		s.Require().NoError(err)
		raw[len(raw)/2] ^= 0x01
		s.False(s.signer.Verify(d, base64.StdEncoding.EncodeToString(raw)))
	})

	s.Run("malformed inputs never panic", func() {
		for _, bad := range []string{"", "!!!not base64!!!", "AAAA", sig[:len(sig)-4]} {
			s.NotPanics(func() {
				s.False(s.signer.Verify(d, bad))
			})
		}
	})
}
