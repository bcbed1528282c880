package credential

import (
	"context"
	"database/sql"
	"fmt"

	"aegis/internal/passkey/models"
	"aegis/internal/platform/postgres"
	"aegis/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Add(ctx context.Context, cred *models.Credential) error {
	const query = `
		INSERT INTO passkey_credentials (credential_id, subject_id, credential, created_at)
		VALUES ($1, $2, $3, $4)`
	_, err := s.db.ExecContext(ctx, query, cred.CredentialID, cred.SubjectID, cred.Data, cred.CreatedAt)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("passkey credential: %w", sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("add passkey credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, cred *models.Credential) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE passkey_credentials SET credential = $2 WHERE credential_id = $1`,
		cred.CredentialID, cred.Data)
	if err != nil {
		return fmt.Errorf("update passkey credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("passkey credential: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID string) ([]*models.Credential, error) {
	const query = `
		SELECT credential_id, subject_id, credential, created_at
		FROM passkey_credentials WHERE subject_id = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list passkey credentials: %w", err)
	}
	defer rows.Close()

	var out []*models.Credential
	for rows.Next() {
		var c models.Credential
		if err := rows.Scan(&c.CredentialID, &c.SubjectID, &c.Data, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan passkey credential: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
