package handler

import (
	"strings"

	"custody/internal/access/models"
	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
)

// CreateRequest is the body of POST /access/requests.
type CreateRequest struct {
	DocumentID string `json:"document_id"`

	parsedDocumentID id.DocumentID
}

func (r *CreateRequest) Validate() error {
	r.DocumentID = strings.TrimSpace(r.DocumentID)
	if r.DocumentID == "" {
		return dErrors.New(dErrors.CodeValidation, "document_id is required")
	}
	docID, err := id.ParseDocumentID(r.DocumentID)
	if err != nil {
		return err
	}
	r.parsedDocumentID = docID
	return nil
}

// DecisionRequest is the body of POST /access/requests/{id}/decision.
type DecisionRequest struct {
	Status string `json:"status"`

	parsedStatus models.Status
}

func (r *DecisionRequest) Validate() error {
	status, err := models.ParseDecision(strings.TrimSpace(r.Status))
	if err != nil {
		return err
	}
	r.parsedStatus = status
	return nil
}
