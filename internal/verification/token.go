// Package verification packages attestation data into a portable token for
// offline checks, and renders tokens as QR codes. The token is an encoding,
// not a secrecy mechanism.
package verification

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"unicode/utf8"

	dErrors "custody/pkg/domain-errors"
)

// Payload is the attestation bundle a token carries.
type Payload struct {
	DocumentID string `json:"document_id"`
	Digest     string `json:"digest"`
	Signature  string `json:"signature"`
	Signer     string `json:"signer"`
}

// Encode renders p as standard base64 over its JSON form. The document id,
// digest and signature are required and every field must be valid UTF-8, so
// whatever Encode returns decodes back to p.
func Encode(p Payload) (string, error) {
	for _, f := range []string{p.DocumentID, p.Digest, p.Signature, p.Signer} {
		if !utf8.ValidString(f) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "verification payload is not valid UTF-8")
		}
	}
	if p.DocumentID == "" || p.Digest == "" || p.Signature == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "verification payload requires document_id, digest and signature")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode verification payload")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// wirePayload tells a missing or null field apart from an empty one.
type wirePayload struct {
	DocumentID *string `json:"document_id"`
	Digest     *string `json:"digest"`
	Signature  *string `json:"signature"`
	Signer     *string `json:"signer"`
}

// Decode is the exact inverse of Encode. Characters outside the base64
// alphabet, bad padding, or a body that is not a complete payload fail with
// CodeFormat.
func Decode(token string) (Payload, error) {
	raw, err := base64.StdEncoding.Strict().DecodeString(token)
	if err != nil {
		return Payload{}, dErrors.Wrap(err, dErrors.CodeFormat, "token is not valid base64")
	}
	if !utf8.Valid(raw) {
		return Payload{}, dErrors.New(dErrors.CodeFormat, "token payload is not valid UTF-8")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var w wirePayload
	if err := dec.Decode(&w); err != nil {
		return Payload{}, dErrors.Wrap(err, dErrors.CodeFormat, "token payload is malformed")
	}
	if dec.More() {
		return Payload{}, dErrors.New(dErrors.CodeFormat, "token payload has trailing data")
	}
	if isBlank(w.DocumentID) || isBlank(w.Digest) || isBlank(w.Signature) {
		return Payload{}, dErrors.New(dErrors.CodeFormat, "token payload is missing document_id, digest or signature")
	}
	p := Payload{DocumentID: *w.DocumentID, Digest: *w.Digest, Signature: *w.Signature}
	if w.Signer != nil {
		p.Signer = *w.Signer
	}
	return p, nil
}

func isBlank(s *string) bool {
	return s == nil || *s == ""
}
