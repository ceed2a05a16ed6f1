package models

import (
	"time"

	id "custody/pkg/domain"
)

// Reason explains a verification verdict.
type Reason string

const (
	ReasonValid            Reason = "valid"
	ReasonUnsigned         Reason = "unsigned"
	ReasonTampered         Reason = "tampered"
	ReasonSignatureInvalid Reason = "signature_invalid"
)

// Verdict is the combined result of re-checking an attested document.
// Valid requires both IntegrityOK and SignatureOK; the two are kept apart
// for diagnostics.
type Verdict struct {
	DocumentID  id.DocumentID
	Valid       bool
	Reason      Reason
	IntegrityOK bool
	SignatureOK bool
	Signer      string
	Digest      string
	AttestedAt  time.Time
}

// Unsigned is the verdict for a document that was never attested.
func Unsigned(docID id.DocumentID) *Verdict {
	return &Verdict{DocumentID: docID, Reason: ReasonUnsigned}
}

// Combine derives the verdict from the two independent checks. Integrity
// failure takes precedence in the reported reason.
func Combine(docID id.DocumentID, integrityOK, signatureOK bool) *Verdict {
	v := &Verdict{DocumentID: docID, IntegrityOK: integrityOK, SignatureOK: signatureOK}
	switch {
	case !integrityOK:
		v.Reason = ReasonTampered
	case !signatureOK:
		v.Reason = ReasonSignatureInvalid
	default:
		v.Valid = true
		v.Reason = ReasonValid
	}
	return v
}
