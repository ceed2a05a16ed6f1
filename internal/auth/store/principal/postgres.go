package principal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"custody/internal/auth/models"
	id "custody/pkg/domain"
	"custody/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists principals in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, p *models.Principal) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO principals (id, identity, display_name, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(p.ID), p.Identity, p.DisplayName, string(p.Role), p.PasswordHash, p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert principal: %w", err)
	}
	return nil
}

const principalColumns = `id, identity, display_name, role, password_hash, created_at`

func (s *PostgresStore) FindByID(ctx context.Context, principalID id.PrincipalID) (*models.Principal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, uuid.UUID(principalID))
	return scanPrincipal(row)
}

func (s *PostgresStore) FindByIdentity(ctx context.Context, identity string) (*models.Principal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE identity = $1`, identity)
	return scanPrincipal(row)
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Principal, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+principalColumns+` FROM principals ORDER BY created_at, identity`)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()

	var out []*models.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	return out, nil
}

func scanPrincipal(row pgx.Row) (*models.Principal, error) {
	var (
		p    models.Principal
		pid  uuid.UUID
		role string
	)
	if err := row.Scan(&pid, &p.Identity, &p.DisplayName, &role, &p.PasswordHash, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan principal: %w", err)
	}
	p.ID = id.PrincipalID(pid)
	p.Role = id.Role(role)
	return &p, nil
}
