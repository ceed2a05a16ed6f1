package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custody/internal/acl"
	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
)

var validIV = strings.Repeat("ab", 16)

func TestNewDocumentInvariants(t *testing.T) {
	now := time.Now()
	owner := id.NewPrincipalID()

	tests := []struct {
		name       string
		title      string
		category   acl.Resource
		ciphertext []byte
		iv         string
	}{
		{"empty title", "", acl.ResourceResume, []byte{1}, validIV},
		{"principal resource is not a category", "cv", acl.ResourcePrincipals, []byte{1}, validIV},
		{"empty ciphertext", "cv", acl.ResourceResume, nil, validIV},
		{"short iv", "cv", acl.ResourceResume, []byte{1}, "abcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDocument(id.NewDocumentID(), owner, tt.title, tt.category, "cv.pdf", "application/pdf", tt.ciphertext, tt.iv, now)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}

	doc, err := NewDocument(id.NewDocumentID(), owner, "cv", acl.ResourceResume, "cv.pdf", "application/pdf", []byte{1, 2}, validIV, now)
	require.NoError(t, err)
	assert.False(t, doc.IsAttested())
	assert.Equal(t, owner, doc.Ref().OwnerID)
}

func TestNewAttestationRequiresBothHalves(t *testing.T) {
	now := time.Now()
	digestHex := strings.Repeat("0f", 32)

	_, err := NewAttestation("", "sig", id.NewPrincipalID(), now)
	assert.Error(t, err)
	_, err = NewAttestation(strings.ToUpper(digestHex), "sig", id.NewPrincipalID(), now)
	assert.Error(t, err)
	_, err = NewAttestation(digestHex, "", id.NewPrincipalID(), now)
	assert.Error(t, err)

	a, err := NewAttestation(digestHex, "sig", id.NewPrincipalID(), now)
	require.NoError(t, err)
	assert.Equal(t, digestHex, a.Digest)
}

func TestCloneIsDeep(t *testing.T) {
	doc, err := NewDocument(id.NewDocumentID(), id.NewPrincipalID(), "cv", acl.ResourceResume, "cv.pdf", "application/pdf", []byte{1, 2}, validIV, time.Now())
	require.NoError(t, err)
	doc.Attestation = &Attestation{Digest: "d", Signature: "s"}

	c := doc.Clone()
	c.Ciphertext[0] = 9
	c.Attestation.Digest = "x"

	assert.Equal(t, byte(1), doc.Ciphertext[0])
	assert.Equal(t, "d", doc.Attestation.Digest)
}

func TestCombine(t *testing.T) {
	docID := id.NewDocumentID()
	assert.Equal(t, ReasonValid, Combine(docID, true, true).Reason)
	assert.True(t, Combine(docID, true, true).Valid)
	assert.Equal(t, ReasonTampered, Combine(docID, false, true).Reason)
	assert.Equal(t, ReasonTampered, Combine(docID, false, false).Reason)
	assert.Equal(t, ReasonSignatureInvalid, Combine(docID, true, false).Reason)
	assert.False(t, Combine(docID, true, false).Valid)
	assert.False(t, Unsigned(docID).Valid)
}
