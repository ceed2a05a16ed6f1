package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"custody/internal/acl"
	"custody/internal/document/models"
	id "custody/pkg/domain"
	"custody/pkg/platform/sentinel"
	"custody/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const documentColumns = `id, owner_id, title, category, file_name, content_type, ciphertext, iv,
	digest, signature, attested_by, attested_at, created_at`

func (s *PostgresStore) Create(ctx context.Context, doc *models.Document) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, owner_id, title, category, file_name, content_type, ciphertext, iv, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(doc.ID), uuid.UUID(doc.OwnerID), doc.Title, string(doc.Category),
		doc.FileName, doc.ContentType, doc.Ciphertext, doc.IV, doc.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("document %s: %w", doc.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, uuid.UUID(docID))
	return scanDocument(row)
}

func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents`
	var args []any
	if !filter.OwnerID.IsNil() {
		query += ` WHERE owner_id = $1`
		args = append(args, uuid.UUID(filter.OwnerID))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

// Attest holds the row lock while attest runs, so concurrent attestations
// of one document serialize.
func (s *PostgresStore) Attest(ctx context.Context, docID id.DocumentID, attest func(*models.Document) (*models.Attestation, error)) (*models.Document, error) {
	var doc *models.Document
	err := tx.Run(ctx, s.pool, func(ctx context.Context, t pgx.Tx) error {
		locked, err := scanDocument(t.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, uuid.UUID(docID)))
		if err != nil {
			return err
		}
		attestation, err := attest(locked.Clone())
		if err != nil {
			return err
		}
		if _, err := t.Exec(ctx, `
			UPDATE documents SET digest = $2, signature = $3, attested_by = $4, attested_at = $5 WHERE id = $1`,
			uuid.UUID(docID), attestation.Digest, attestation.Signature,
			uuid.UUID(attestation.AttestedBy), attestation.AttestedAt,
		); err != nil {
			return fmt.Errorf("update attestation: %w", err)
		}
		locked.Attestation = attestation
		doc = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *PostgresStore) Delete(ctx context.Context, docID id.DocumentID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, uuid.UUID(docID))
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var (
		docID, owner                  uuid.UUID
		title, category, fileName, ct string
		ciphertext                    []byte
		iv                            string
		digestHex, signature          *string
		attestedBy                    *uuid.UUID
		attestedAt                    *time.Time
		createdAt                     time.Time
	)
	err := row.Scan(&docID, &owner, &title, &category, &fileName, &ct, &ciphertext, &iv,
		&digestHex, &signature, &attestedBy, &attestedAt, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc := &models.Document{
		ID:          id.DocumentID(docID),
		OwnerID:     id.PrincipalID(owner),
		Title:       title,
		Category:    acl.Resource(category),
		FileName:    fileName,
		ContentType: ct,
		Ciphertext:  ciphertext,
		IV:          iv,
		CreatedAt:   createdAt,
	}
	if digestHex != nil && signature != nil && attestedAt != nil {
		doc.Attestation = &models.Attestation{Digest: *digestHex, Signature: *signature, AttestedAt: *attestedAt}
		if attestedBy != nil {
			doc.Attestation.AttestedBy = id.PrincipalID(*attestedBy)
		}
	}
	return doc, nil
}
