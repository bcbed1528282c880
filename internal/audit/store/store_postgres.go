package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aegis/internal/audit/models"
	ledgerModels "aegis/internal/ledger/models"
	"aegis/internal/platform/postgres"
	"aegis/pkg/platform/sentinel"
)

const recordColumns = `
	id, subject_id, event_type, field_changed, old_value, new_value, role,
	metadata, occurred_at, hash, ledger_verified_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, rec *models.Record) error {
	metadata, err := json.Marshal(nonNil(rec.Metadata))
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	const query = `
		INSERT INTO audit_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.SubjectID, rec.EventType, rec.Field, rec.OldValue, rec.NewValue, rec.Role,
		metadata, rec.Timestamp, rec.Hash[:], rec.LedgerVerifiedAt,
	)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("audit record %s: %w", rec.ID, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM audit_records WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get audit record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListAfter(ctx context.Context, after models.Cursor, limit int) ([]*models.Record, error) {
	if after.ID == "" {
		const first = `
			SELECT ` + recordColumns + ` FROM audit_records
			WHERE occurred_at >= $1 ORDER BY occurred_at, id LIMIT $2`
		return s.list(ctx, first, after.At, limit)
	}
	const next = `
		SELECT ` + recordColumns + ` FROM audit_records
		WHERE (occurred_at, id) > ($1, $2::uuid) ORDER BY occurred_at, id LIMIT $3`
	return s.list(ctx, next, after.At, after.ID, limit)
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID string) ([]*models.Record, error) {
	const query = `
		SELECT ` + recordColumns + ` FROM audit_records
		WHERE subject_id = $1 ORDER BY occurred_at, id`
	return s.list(ctx, query, subjectID)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()
	out := make([]*models.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkVerified(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE audit_records SET ledger_verified_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark audit record verified: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.Record, error) {
	var (
		rec        models.Record
		metadata   []byte
		hash       []byte
		verifiedAt sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.SubjectID, &rec.EventType, &rec.Field, &rec.OldValue, &rec.NewValue, &rec.Role,
		&metadata, &rec.Timestamp, &hash, &verifiedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("decode audit metadata: %w", err)
	}
	if rec.Hash, err = ledgerModels.HashFromBytes(hash); err != nil {
		return nil, err
	}
	rec.Timestamp = rec.Timestamp.UTC()
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		rec.LedgerVerifiedAt = &t
	}
	return &rec, nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
