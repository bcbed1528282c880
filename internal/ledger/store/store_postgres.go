package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"aegis/internal/ledger/models"
	"aegis/internal/platform/postgres"
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/platform/tx"
)

// Advisory lock keys serialize chain appends per table.
const (
	lockCriticalEvents int64 = 0x6c65646701
	lockAdminApprovals int64 = 0x6c65646702
)

// PostgresStore persists the ledger. Append-only triggers in the schema
// reject UPDATE and DELETE.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InsertHash(ctx context.Context, entry *models.HashEntry) (*models.HashEntry, error) {
	return insertHash(ctx, tx.Q(ctx, s.db), entry)
}

func insertHash(ctx context.Context, q tx.Querier, entry *models.HashEntry) (*models.HashEntry, error) {
	const query = `
		INSERT INTO ledger_hashes (hash, event_type, recorded_by, recorded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hash) DO NOTHING
		RETURNING sequence`
	out := *entry
	out.Timestamp = models.NormalizeTime(out.Timestamp)
	err := q.QueryRowContext(ctx, query, entry.Hash[:], entry.EventType, entry.RecordedBy, out.Timestamp).Scan(&out.Sequence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("hash %s: %w", entry.Hash, sentinel.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("insert ledger hash: %w", err)
	}
	return &out, nil
}

func (s *PostgresStore) GetHash(ctx context.Context, hash models.Hash) (*models.HashEntry, error) {
	const query = `
		SELECT hash, event_type, recorded_by, recorded_at, sequence
		FROM ledger_hashes WHERE hash = $1`
	var (
		raw   []byte
		entry models.HashEntry
	)
	err := s.db.QueryRowContext(ctx, query, hash[:]).Scan(&raw, &entry.EventType, &entry.RecordedBy, &entry.Timestamp, &entry.Sequence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger hash: %w", err)
	}
	if entry.Hash, err = models.HashFromBytes(raw); err != nil {
		return nil, err
	}
	entry.Timestamp = entry.Timestamp.UTC()
	return &entry, nil
}

func (s *PostgresStore) AppendCriticalEvent(ctx context.Context, event *models.CriticalEvent) (*models.CriticalEvent, error) {
	stored := copyEvent(event)
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		q := tx.Q(ctx, s.db)
		prev, err := lockAndTail(ctx, q, lockCriticalEvents,
			`SELECT digest FROM ledger_critical_events ORDER BY sequence DESC LIMIT 1`)
		if err != nil {
			return err
		}
		stored.Seal(prev)

		details, err := json.Marshal(nonNilDetails(stored.Details))
		if err != nil {
			return fmt.Errorf("encode details: %w", err)
		}
		const query = `
			INSERT INTO ledger_critical_events
				(id, event_type, subject_id, details, actor, recorded_at, prev_digest, digest)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING sequence`
		if err := q.QueryRowContext(ctx, query,
			stored.ID, stored.EventType, stored.SubjectID, details, stored.Actor,
			stored.Timestamp, prevBytes(stored.PrevDigest), stored.Digest[:],
		).Scan(&stored.Sequence); err != nil {
			if postgres.IsUniqueViolation(err) {
				return fmt.Errorf("critical event %s: %w", stored.ID, sentinel.ErrConflict)
			}
			return fmt.Errorf("insert critical event: %w", err)
		}

		_, err = insertHash(ctx, q, &models.HashEntry{
			Hash:       stored.Digest,
			EventType:  stored.EventType,
			Timestamp:  stored.Timestamp,
			RecordedBy: stored.Actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *PostgresStore) AppendAdminApproval(ctx context.Context, approval *models.AdminApproval) (*models.AdminApproval, error) {
	stored := copyApproval(approval)
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		q := tx.Q(ctx, s.db)
		prev, err := lockAndTail(ctx, q, lockAdminApprovals,
			`SELECT digest FROM ledger_admin_approvals ORDER BY sequence DESC LIMIT 1`)
		if err != nil {
			return err
		}
		stored.Seal(prev)

		details, err := json.Marshal(nonNilDetails(stored.Details))
		if err != nil {
			return fmt.Errorf("encode details: %w", err)
		}
		const query = `
			INSERT INTO ledger_admin_approvals
				(approval_id, event_type, subject_id, approver_id, approved, details, recorded_at, prev_digest, digest)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (approval_id) DO NOTHING
			RETURNING sequence`
		err = q.QueryRowContext(ctx, query,
			stored.ApprovalID, stored.EventType, stored.SubjectID, stored.ApproverID, stored.Approved,
			details, stored.Timestamp, prevBytes(stored.PrevDigest), stored.Digest[:],
		).Scan(&stored.Sequence)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("approval %s: %w", stored.ApprovalID, sentinel.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("insert admin approval: %w", err)
		}

		_, err = insertHash(ctx, q, &models.HashEntry{
			Hash:       stored.Digest,
			EventType:  stored.EventType,
			Timestamp:  stored.Timestamp,
			RecordedBy: stored.ApproverID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

const criticalEventColumns = `id, event_type, subject_id, details, actor, recorded_at, sequence, prev_digest, digest`

func (s *PostgresStore) GetCriticalEvent(ctx context.Context, id string) (*models.CriticalEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+criticalEventColumns+` FROM ledger_critical_events WHERE id::text = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get critical event: %w", err)
	}
	events, err := scanCriticalEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return events[0], nil
}

func (s *PostgresStore) CriticalEventsBySubject(ctx context.Context, subjectID string) ([]*models.CriticalEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+criticalEventColumns+`
		FROM ledger_critical_events WHERE subject_id = $1 ORDER BY sequence`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list critical events by subject: %w", err)
	}
	return scanCriticalEvents(rows)
}

func (s *PostgresStore) ListCriticalEvents(ctx context.Context, after int64, limit int) ([]*models.CriticalEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+criticalEventColumns+`
		FROM ledger_critical_events WHERE sequence > $1 ORDER BY sequence LIMIT $2`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list critical events: %w", err)
	}
	return scanCriticalEvents(rows)
}

const approvalColumns = `approval_id, event_type, subject_id, approver_id, approved, details, recorded_at, sequence, prev_digest, digest`

func (s *PostgresStore) GetAdminApproval(ctx context.Context, approvalID string) (*models.AdminApproval, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+approvalColumns+` FROM ledger_admin_approvals WHERE approval_id = $1`, approvalID)
	if err != nil {
		return nil, fmt.Errorf("get admin approval: %w", err)
	}
	approvals, err := scanApprovals(rows)
	if err != nil {
		return nil, err
	}
	if len(approvals) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return approvals[0], nil
}

func (s *PostgresStore) ApprovalsBySubject(ctx context.Context, subjectID string) ([]*models.AdminApproval, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+approvalColumns+`
		FROM ledger_admin_approvals WHERE subject_id = $1 ORDER BY sequence`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list approvals by subject: %w", err)
	}
	return scanApprovals(rows)
}

func (s *PostgresStore) ListAdminApprovals(ctx context.Context, after int64, limit int) ([]*models.AdminApproval, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+approvalColumns+`
		FROM ledger_admin_approvals WHERE sequence > $1 ORDER BY sequence LIMIT $2`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list admin approvals: %w", err)
	}
	return scanApprovals(rows)
}

func (s *PostgresStore) Counts(ctx context.Context) (models.Counts, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM ledger_hashes),
			(SELECT COUNT(*) FROM ledger_critical_events),
			(SELECT COUNT(*) FROM ledger_admin_approvals)`
	var c models.Counts
	if err := s.db.QueryRowContext(ctx, query).Scan(&c.Hashes, &c.CriticalEvents, &c.Approvals); err != nil {
		return c, fmt.Errorf("count ledger entries: %w", err)
	}
	return c, nil
}

func lockAndTail(ctx context.Context, q tx.Querier, key int64, tailQuery string) (models.Hash, error) {
	var prev models.Hash
	if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
		return prev, fmt.Errorf("acquire ledger lock: %w", err)
	}
	var raw []byte
	err := q.QueryRowContext(ctx, tailQuery).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return prev, nil
	}
	if err != nil {
		return prev, fmt.Errorf("read chain tail: %w", err)
	}
	return models.HashFromBytes(raw)
}

func scanCriticalEvents(rows *sql.Rows) ([]*models.CriticalEvent, error) {
	defer rows.Close()
	var out []*models.CriticalEvent
	for rows.Next() {
		var (
			e            models.CriticalEvent
			details      []byte
			prev, digest []byte
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.SubjectID, &details, &e.Actor, &e.Timestamp, &e.Sequence, &prev, &digest); err != nil {
			return nil, fmt.Errorf("scan critical event: %w", err)
		}
		if err := decodeEntry(details, &e.Details, prev, &e.PrevDigest, digest, &e.Digest); err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

func scanApprovals(rows *sql.Rows) ([]*models.AdminApproval, error) {
	defer rows.Close()
	var out []*models.AdminApproval
	for rows.Next() {
		var (
			a            models.AdminApproval
			details      []byte
			prev, digest []byte
		)
		if err := rows.Scan(&a.ApprovalID, &a.EventType, &a.SubjectID, &a.ApproverID, &a.Approved, &details, &a.Timestamp, &a.Sequence, &prev, &digest); err != nil {
			return nil, fmt.Errorf("scan admin approval: %w", err)
		}
		if err := decodeEntry(details, &a.Details, prev, &a.PrevDigest, digest, &a.Digest); err != nil {
			return nil, err
		}
		a.Timestamp = a.Timestamp.UTC()
		out = append(out, &a)
	}
	return out, rows.Err()
}

func decodeEntry(details []byte, dst *map[string]string, prev []byte, prevDst *models.Hash, digest []byte, digestDst *models.Hash) error {
	if err := json.Unmarshal(details, dst); err != nil {
		return fmt.Errorf("decode details: %w", err)
	}
	if len(*dst) == 0 {
		*dst = nil
	}
	if len(prev) > 0 {
		h, err := models.HashFromBytes(prev)
		if err != nil {
			return err
		}
		*prevDst = h
	}
	h, err := models.HashFromBytes(digest)
	if err != nil {
		return err
	}
	*digestDst = h
	return nil
}

func prevBytes(h models.Hash) []byte {
	if h.IsZero() {
		return nil
	}
	return h[:]
}

func nonNilDetails(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
