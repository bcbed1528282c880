package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"aegis/internal/subject/models"
	"aegis/pkg/platform/sentinel"
)

// PostgresStore reads the subjects table owned by the account service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Subject, error) {
	const query = `SELECT id, email, display_name, deletion_scheduled_at FROM subjects WHERE id = $1`
	var (
		subject   models.Subject
		scheduled sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&subject.ID, &subject.Email, &subject.DisplayName, &scheduled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subject %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	if scheduled.Valid {
		t := scheduled.Time.UTC()
		subject.DeletionScheduledAt = &t
	}
	return &subject, nil
}

func (s *PostgresStore) Put(ctx context.Context, subject *models.Subject) error {
	const query = `
		INSERT INTO subjects (id, email, display_name, deletion_scheduled_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			deletion_scheduled_at = EXCLUDED.deletion_scheduled_at`
	if _, err := s.db.ExecContext(ctx, query, subject.ID, subject.Email, subject.DisplayName, subject.DeletionScheduledAt); err != nil {
		return fmt.Errorf("put subject: %w", err)
	}
	return nil
}
