package authlockout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"aegis/internal/ratelimit/models"
)

// PostgresStore persists lockout records. It is pure I/O; lock decisions
// belong to the service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, identifier string) (*models.AuthLockout, error) {
	const query = `
		SELECT identifier, failure_count, locked_until, last_failure_at
		FROM auth_lockouts
		WHERE identifier = $1`
	record, err := scanAuthLockout(s.db.QueryRowContext(ctx, query, identifier))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auth lockout: %w", err)
	}
	return record, nil
}

// RecordFailure increments in a single upsert so concurrent failures cannot
// slip past the threshold. A stale, unlocked record restarts at 1.
func (s *PostgresStore) RecordFailure(ctx context.Context, identifier string, window time.Duration, now time.Time) (*models.AuthLockout, error) {
	const query = `
		INSERT INTO auth_lockouts (identifier, failure_count, locked_until, last_failure_at)
		VALUES ($1, 1, NULL, $2)
		ON CONFLICT (identifier) DO UPDATE SET
			failure_count = CASE
				WHEN auth_lockouts.last_failure_at < $2 - make_interval(secs => $3)
				 AND (auth_lockouts.locked_until IS NULL OR auth_lockouts.locked_until <= $2)
				THEN 1
				ELSE auth_lockouts.failure_count + 1
			END,
			locked_until = CASE
				WHEN auth_lockouts.locked_until IS NOT NULL AND auth_lockouts.locked_until <= $2 THEN NULL
				ELSE auth_lockouts.locked_until
			END,
			last_failure_at = $2
		RETURNING identifier, failure_count, locked_until, last_failure_at`
	record, err := scanAuthLockout(s.db.QueryRowContext(ctx, query, identifier, now, window.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("record auth failure: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) Update(ctx context.Context, record *models.AuthLockout) error {
	if record == nil {
		return errors.New("auth lockout record is required")
	}
	const query = `
		INSERT INTO auth_lockouts (identifier, failure_count, locked_until, last_failure_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identifier) DO UPDATE SET
			failure_count = EXCLUDED.failure_count,
			locked_until = EXCLUDED.locked_until,
			last_failure_at = EXCLUDED.last_failure_at`
	if _, err := s.db.ExecContext(ctx, query,
		record.Identifier, record.FailureCount, record.LockedUntil, record.LastFailureAt,
	); err != nil {
		return fmt.Errorf("update auth lockout: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, identifier string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_lockouts WHERE identifier = $1`, identifier); err != nil {
		return fmt.Errorf("clear auth lockout: %w", err)
	}
	return nil
}

func scanAuthLockout(row *sql.Row) (*models.AuthLockout, error) {
	var (
		r           models.AuthLockout
		lockedUntil sql.NullTime
	)
	if err := row.Scan(&r.Identifier, &r.FailureCount, &lockedUntil, &r.LastFailureAt); err != nil {
		return nil, err
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		r.LockedUntil = &t
	}
	return &r, nil
}
