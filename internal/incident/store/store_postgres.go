package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"aegis/internal/incident/models"
	"aegis/internal/platform/postgres"
	"aegis/pkg/platform/sentinel"
)

const incidentColumns = `
	id, message, severity, status, containment_active, verification_status,
	affected_subject_ids, ledger_refs, audit_record_ids, detected_at,
	acknowledged_at, acknowledged_by, resolved_at, resolved_by, resolution_notes, version`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, inc *models.Incident) error {
	const query = `
		INSERT INTO tamper_incidents (` + incidentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1)`
	_, err := s.db.ExecContext(ctx, query,
		inc.ID, inc.Message, inc.Severity, inc.Status, inc.ContainmentActive, inc.VerificationStatus,
		pq.Array(nonNil(inc.AffectedSubjectIDs)), pq.Array(nonNil(inc.LedgerRefs)), pq.Array(nonNil(inc.AuditRecordIDs)),
		inc.DetectedAt, inc.AcknowledgedAt, inc.AcknowledgedBy, inc.ResolvedAt, inc.ResolvedBy, inc.ResolutionNotes,
	)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("incident %s: %w", inc.ID, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	inc.Version = 1
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM tamper_incidents WHERE id = $1`, id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("incident %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return inc, nil
}

func (s *PostgresStore) Update(ctx context.Context, inc *models.Incident) error {
	const query = `
		UPDATE tamper_incidents SET
			status = $2, containment_active = $3, acknowledged_at = $4, acknowledged_by = $5,
			resolved_at = $6, resolved_by = $7, resolution_notes = $8, version = version + 1
		WHERE id = $1 AND version = $9`
	res, err := s.db.ExecContext(ctx, query,
		inc.ID, inc.Status, inc.ContainmentActive, inc.AcknowledgedAt, inc.AcknowledgedBy,
		inc.ResolvedAt, inc.ResolvedBy, inc.ResolutionNotes, inc.Version,
	)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	if n == 0 {
		if _, err := s.Get(ctx, inc.ID); err != nil {
			return err
		}
		return fmt.Errorf("incident %s version %d: %w", inc.ID, inc.Version, sentinel.ErrConflict)
	}
	inc.Version++
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter) ([]*models.Incident, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		where = append(where, fmt.Sprintf("severity = $%d", len(args)))
	}
	query := `SELECT ` + incidentColumns + ` FROM tamper_incidents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY detected_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()
	out := make([]*models.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, q models.CountQuery) (int, error) {
	query := `SELECT COUNT(*) FROM tamper_incidents WHERE ($1 = '' OR status = $1)`
	if q.ContainedOnly {
		query += ` AND containment_active`
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, string(q.Status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count incidents: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) FindOpenByRefs(ctx context.Context, ledgerRefs, auditRecordIDs []string) (*models.Incident, error) {
	const query = `
		SELECT ` + incidentColumns + ` FROM tamper_incidents
		WHERE status <> 'resolved' AND (ledger_refs && $1 OR audit_record_ids && $2)
		ORDER BY detected_at LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, pq.Array(nonNil(ledgerRefs)), pq.Array(nonNil(auditRecordIDs)))
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find incident by refs: %w", err)
	}
	return inc, nil
}

func (s *PostgresStore) IsContained(ctx context.Context, subjectID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM tamper_incidents
			WHERE status <> 'resolved' AND containment_active AND $1 = ANY(affected_subject_ids)
		)`
	var contained bool
	if err := s.db.QueryRowContext(ctx, query, subjectID).Scan(&contained); err != nil {
		return false, fmt.Errorf("check containment: %w", err)
	}
	return contained, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIncident(row scanner) (*models.Incident, error) {
	var (
		inc                  models.Incident
		acknowledgedAt       sql.NullTime
		resolvedAt           sql.NullTime
		subjects, refs, recs []string
	)
	err := row.Scan(
		&inc.ID, &inc.Message, &inc.Severity, &inc.Status, &inc.ContainmentActive, &inc.VerificationStatus,
		pq.Array(&subjects), pq.Array(&refs), pq.Array(&recs), &inc.DetectedAt,
		&acknowledgedAt, &inc.AcknowledgedBy, &resolvedAt, &inc.ResolvedBy, &inc.ResolutionNotes, &inc.Version,
	)
	if err != nil {
		return nil, err
	}
	inc.AffectedSubjectIDs = nonNil(subjects)
	inc.LedgerRefs = nonNil(refs)
	inc.AuditRecordIDs = nonNil(recs)
	inc.DetectedAt = inc.DetectedAt.UTC()
	inc.AcknowledgedAt = utcPtr(acknowledgedAt)
	inc.ResolvedAt = utcPtr(resolvedAt)
	return &inc, nil
}

func utcPtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
