package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"custody/internal/auth/models"
)

// PostgresStore persists lockout records. Policy decisions stay in the
// service; the store only counts and stamps.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const lockoutColumns = `key, failure_count, last_failure_at, locked_until`

func (s *PostgresStore) Get(ctx context.Context, key string) (*models.Lockout, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+lockoutColumns+` FROM auth_lockouts WHERE key = $1`, key)
	r, err := scanLockout(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get auth lockout: %w", err)
	}
	return r, nil
}

// RecordFailure increments in a single upsert so concurrent failures cannot
// slip under the threshold.
func (s *PostgresStore) RecordFailure(ctx context.Context, key string, now, windowStart time.Time) (*models.Lockout, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO auth_lockouts (key, failure_count, last_failure_at, locked_until)
		VALUES ($1, 1, $2, NULL)
		ON CONFLICT (key) DO UPDATE SET
			failure_count = CASE
				WHEN auth_lockouts.last_failure_at < $3 THEN 1
				ELSE auth_lockouts.failure_count + 1
			END,
			last_failure_at = $2
		RETURNING `+lockoutColumns, key, now, windowStart)
	r, err := scanLockout(row)
	if err != nil {
		return nil, fmt.Errorf("record auth failure: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Lock(ctx context.Context, key string, until time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_lockouts (key, failure_count, last_failure_at, locked_until)
		VALUES ($1, 0, $2, $2)
		ON CONFLICT (key) DO UPDATE SET locked_until = $2
	`, key, until)
	if err != nil {
		return fmt.Errorf("lock auth key: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM auth_lockouts WHERE key = $1`, key); err != nil {
		return fmt.Errorf("clear auth lockout: %w", err)
	}
	return nil
}

func scanLockout(row pgx.Row) (*models.Lockout, error) {
	var (
		r           models.Lockout
		lockedUntil *time.Time
	)
	if err := row.Scan(&r.Key, &r.FailureCount, &r.LastFailureAt, &lockedUntil); err != nil {
		return nil, err
	}
	r.LastFailureAt = r.LastFailureAt.UTC()
	if lockedUntil != nil {
		t := lockedUntil.UTC()
		r.LockedUntil = &t
	}
	return &r, nil
}
