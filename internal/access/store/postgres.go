package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"custody/internal/access/models"
	id "custody/pkg/domain"
	"custody/pkg/platform/sentinel"
	"custody/pkg/platform/tx"
)

// PostgresStore relies on UNIQUE (requester_id, document_id) for
// create-if-absent and on SELECT ... FOR UPDATE for Execute.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const accessRequestColumns = `id, requester_id, document_id, owner_id, status, created_at, decided_at, decided_by`

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, req *models.AccessRequest) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO access_requests (id, requester_id, document_id, owner_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (requester_id, document_id) DO NOTHING`,
		uuid.UUID(req.ID), uuid.UUID(req.RequesterID), uuid.UUID(req.DocumentID),
		nullableUUID(uuid.UUID(req.OwnerID)), string(req.Status), req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert access request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("access request for pair: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.AccessRequestID) (*models.AccessRequest, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accessRequestColumns+` FROM access_requests WHERE id = $1`, uuid.UUID(requestID))
	return scanAccessRequest(row)
}

func (s *PostgresStore) FindByPair(ctx context.Context, requester id.PrincipalID, documentID id.DocumentID) (*models.AccessRequest, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accessRequestColumns+` FROM access_requests WHERE requester_id = $1 AND document_id = $2`,
		uuid.UUID(requester), uuid.UUID(documentID))
	return scanAccessRequest(row)
}

func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter) ([]*models.AccessRequest, error) {
	var (
		where []string
		args  []any
	)
	if !filter.RequesterID.IsNil() {
		args = append(args, uuid.UUID(filter.RequesterID))
		where = append(where, fmt.Sprintf("requester_id = $%d", len(args)))
	}
	if !filter.OwnerID.IsNil() {
		args = append(args, uuid.UUID(filter.OwnerID))
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if !filter.DocumentID.IsNil() {
		args = append(args, uuid.UUID(filter.DocumentID))
		where = append(where, fmt.Sprintf("document_id = $%d", len(args)))
	}
	query := `SELECT ` + accessRequestColumns + ` FROM access_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	defer rows.Close()

	out := make([]*models.AccessRequest, 0)
	for rows.Next() {
		req, err := scanAccessRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access requests: %w", err)
	}
	return out, nil
}

// Execute locks the row for the duration of validate and mutate.
func (s *PostgresStore) Execute(ctx context.Context, requestID id.AccessRequestID, validate func(*models.AccessRequest) error, mutate func(*models.AccessRequest)) (*models.AccessRequest, error) {
	var req *models.AccessRequest
	err := tx.Run(ctx, s.pool, func(ctx context.Context, t pgx.Tx) error {
		row := t.QueryRow(ctx, `SELECT `+accessRequestColumns+` FROM access_requests WHERE id = $1 FOR UPDATE`, uuid.UUID(requestID))
		locked, err := scanAccessRequest(row)
		if err != nil {
			return err
		}
		if err := validate(locked); err != nil {
			return err
		}
		mutate(locked)

		var decidedBy any
		if locked.DecidedBy != nil {
			decidedBy = uuid.UUID(*locked.DecidedBy)
		}
		if _, err := t.Exec(ctx, `
			UPDATE access_requests SET status = $2, decided_at = $3, decided_by = $4 WHERE id = $1`,
			uuid.UUID(locked.ID), string(locked.Status), locked.DecidedAt, decidedBy,
		); err != nil {
			return fmt.Errorf("update access request: %w", err)
		}
		req = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func scanAccessRequest(row pgx.Row) (*models.AccessRequest, error) {
	var (
		reqID, requester, document uuid.UUID
		owner, decidedBy           *uuid.UUID
		status                     string
		createdAt                  time.Time
		decidedAt                  *time.Time
	)
	if err := row.Scan(&reqID, &requester, &document, &owner, &status, &createdAt, &decidedAt, &decidedBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("access request not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan access request: %w", err)
	}
	req := &models.AccessRequest{
		ID:          id.AccessRequestID(reqID),
		RequesterID: id.PrincipalID(requester),
		DocumentID:  id.DocumentID(document),
		Status:      models.Status(status),
		CreatedAt:   createdAt,
		DecidedAt:   decidedAt,
	}
	if owner != nil {
		req.OwnerID = id.PrincipalID(*owner)
	}
	if decidedBy != nil {
		p := id.PrincipalID(*decidedBy)
		req.DecidedBy = &p
	}
	return req, nil
}

func nullableUUID(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u
}
