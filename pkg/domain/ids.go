// Package domain holds the small value types shared across modules: typed
// identifiers and the principal role enum.
package domain

import (
	"github.com/google/uuid"

	dErrors "custody/pkg/domain-errors"
)

// Typed IDs keep a document id from being passed where a principal id is
// expected. Construct them with the Parse functions at trust boundaries.
type (
	PrincipalID     uuid.UUID
	DocumentID      uuid.UUID
	AccessRequestID uuid.UUID
	SessionID       uuid.UUID
)

func NewPrincipalID() PrincipalID         { return PrincipalID(uuid.New()) }
func NewDocumentID() DocumentID           { return DocumentID(uuid.New()) }
func NewAccessRequestID() AccessRequestID { return AccessRequestID(uuid.New()) }
func NewSessionID() SessionID             { return SessionID(uuid.New()) }

func (i PrincipalID) String() string     { return uuid.UUID(i).String() }
func (i DocumentID) String() string      { return uuid.UUID(i).String() }
func (i AccessRequestID) String() string { return uuid.UUID(i).String() }
func (i SessionID) String() string       { return uuid.UUID(i).String() }

func (i PrincipalID) IsNil() bool     { return uuid.UUID(i) == uuid.Nil }
func (i DocumentID) IsNil() bool      { return uuid.UUID(i) == uuid.Nil }
func (i AccessRequestID) IsNil() bool { return uuid.UUID(i) == uuid.Nil }
func (i SessionID) IsNil() bool       { return uuid.UUID(i) == uuid.Nil }

func (i PrincipalID) MarshalText() ([]byte, error)     { return []byte(i.String()), nil }
func (i DocumentID) MarshalText() ([]byte, error)      { return []byte(i.String()), nil }
func (i AccessRequestID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i SessionID) MarshalText() ([]byte, error)       { return []byte(i.String()), nil }

func (i *PrincipalID) UnmarshalText(b []byte) error {
	return unmarshalID(b, (*uuid.UUID)(i))
}

func (i *DocumentID) UnmarshalText(b []byte) error {
	return unmarshalID(b, (*uuid.UUID)(i))
}

func (i *AccessRequestID) UnmarshalText(b []byte) error {
	return unmarshalID(b, (*uuid.UUID)(i))
}

func (i *SessionID) UnmarshalText(b []byte) error {
	return unmarshalID(b, (*uuid.UUID)(i))
}

func ParsePrincipalID(s string) (PrincipalID, error) {
	u, err := parseUUID(s, "principal")
	return PrincipalID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s, "document")
	return DocumentID(u), err
}

func ParseAccessRequestID(s string) (AccessRequestID, error) {
	u, err := parseUUID(s, "access request")
	return AccessRequestID(u), err
}

func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session")
	return SessionID(u), err
}

// parseUUID rejects empty, malformed and nil UUIDs with CodeInvalidInput.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind+" ID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID cannot be nil")
	}
	return u, nil
}

func unmarshalID(b []byte, dst *uuid.UUID) error {
	u, err := parseUUID(string(b), "resource")
	if err != nil {
		return err
	}
	*dst = u
	return nil
}
