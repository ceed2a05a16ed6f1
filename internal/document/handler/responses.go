package handler

import (
	"time"

	"custody/internal/document/models"
	"custody/internal/document/service"
)

// DocumentResponse never carries ciphertext.
type DocumentResponse struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	Title           string     `json:"title"`
	Category        string     `json:"category"`
	FileName        string     `json:"file_name"`
	ContentType     string     `json:"content_type"`
	Verified        bool       `json:"verified"`
	Digest          string     `json:"digest,omitempty"`
	AttestedAt      *time.Time `json:"attested_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	AccessStatus    string     `json:"access_status,omitempty"`
	AccessRequestID string     `json:"access_request_id,omitempty"`
}

type ListResponse struct {
	Documents []DocumentResponse `json:"documents"`
}

type VerifyResponse struct {
	DocumentID string        `json:"document_id"`
	Valid      bool          `json:"valid"`
	Reason     string        `json:"reason"`
	Message    string        `json:"message"`
	Details    VerifyDetails `json:"details"`
}

type VerifyDetails struct {
	Signer     string     `json:"signer,omitempty"`
	Digest     string     `json:"digest,omitempty"`
	AttestedAt *time.Time `json:"attested_at,omitempty"`
}

type BatchVerifyResponse struct {
	Results []VerifyResponse `json:"results"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type DecodeResponse struct {
	DocumentID     string `json:"document_id"`
	Digest         string `json:"digest"`
	Signature      string `json:"signature"`
	Signer         string `json:"signer"`
	SignatureValid bool   `json:"signature_valid"`
}

func ToDocumentResponse(doc *models.Document) DocumentResponse {
	resp := DocumentResponse{
		ID:          doc.ID.String(),
		OwnerID:     doc.OwnerID.String(),
		Title:       doc.Title,
		Category:    doc.Category.String(),
		FileName:    doc.FileName,
		ContentType: doc.ContentType,
		Verified:    doc.IsAttested(),
		CreatedAt:   doc.CreatedAt,
	}
	if doc.Attestation != nil {
		at := doc.Attestation.AttestedAt
		resp.Digest = doc.Attestation.Digest
		resp.AttestedAt = &at
	}
	return resp
}

func toListItemResponse(item service.ListItem) DocumentResponse {
	resp := ToDocumentResponse(item.Document)
	resp.AccessStatus = item.AccessStatus
	if item.AccessRequestID != nil {
		resp.AccessRequestID = item.AccessRequestID.String()
	}
	return resp
}

var verdictMessages = map[models.Reason]string{
	models.ReasonValid:            "document is authentic and unmodified",
	models.ReasonUnsigned:         "document has not been attested",
	models.ReasonTampered:         "document content does not match its attestation",
	models.ReasonSignatureInvalid: "attestation signature is not valid",
}

// ToVerifyResponse renders a verdict. Exported for the admin batch route.
func ToVerifyResponse(v *models.Verdict) VerifyResponse {
	resp := VerifyResponse{
		DocumentID: v.DocumentID.String(),
		Valid:      v.Valid,
		Reason:     string(v.Reason),
		Message:    verdictMessages[v.Reason],
		Details:    VerifyDetails{Signer: v.Signer, Digest: v.Digest},
	}
	if !v.AttestedAt.IsZero() {
		at := v.AttestedAt
		resp.Details.AttestedAt = &at
	}
	return resp
}
