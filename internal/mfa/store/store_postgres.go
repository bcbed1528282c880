package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"aegis/internal/mfa/models"
	"aegis/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, subjectID string) (*models.Credential, error) {
	const query = `
		SELECT subject_id, secret, pending_secret, enabled, enabled_at, disabled_at,
		       reenrollment_required, last_used_step, version, updated_at
		FROM mfa_credentials WHERE subject_id = $1`
	var (
		c                     models.Credential
		enabledAt, disabledAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, subjectID).Scan(
		&c.SubjectID, &c.Secret, &c.PendingSecret, &c.Enabled, &enabledAt, &disabledAt,
		&c.ReenrollmentRequired, &c.LastUsedStep, &c.Version, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mfa credential %s: %w", subjectID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get mfa credential: %w", err)
	}
	c.EnabledAt = nullTime(enabledAt)
	c.DisabledAt = nullTime(disabledAt)
	return &c, nil
}

func (s *PostgresStore) Save(ctx context.Context, cred *models.Credential) error {
	if cred.Version == 0 {
		return s.insert(ctx, cred)
	}
	const query = `
		UPDATE mfa_credentials SET
			secret = $2, pending_secret = $3, enabled = $4, enabled_at = $5, disabled_at = $6,
			reenrollment_required = $7, last_used_step = $8, version = version + 1, updated_at = $9
		WHERE subject_id = $1 AND version = $10`
	res, err := s.db.ExecContext(ctx, query,
		cred.SubjectID, cred.Secret, cred.PendingSecret, cred.Enabled, cred.EnabledAt, cred.DisabledAt,
		cred.ReenrollmentRequired, cred.LastUsedStep, cred.UpdatedAt, cred.Version,
	)
	if err != nil {
		return fmt.Errorf("update mfa credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update mfa credential: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mfa credential %s version %d: %w", cred.SubjectID, cred.Version, sentinel.ErrConflict)
	}
	cred.Version++
	return nil
}

func (s *PostgresStore) insert(ctx context.Context, cred *models.Credential) error {
	const query = `
		INSERT INTO mfa_credentials (subject_id, secret, pending_secret, enabled, enabled_at, disabled_at,
			reenrollment_required, last_used_step, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9)
		ON CONFLICT (subject_id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query,
		cred.SubjectID, cred.Secret, cred.PendingSecret, cred.Enabled, cred.EnabledAt, cred.DisabledAt,
		cred.ReenrollmentRequired, cred.LastUsedStep, cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert mfa credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert mfa credential: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mfa credential %s exists: %w", cred.SubjectID, sentinel.ErrConflict)
	}
	cred.Version = 1
	return nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
