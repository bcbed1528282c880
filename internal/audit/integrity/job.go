// Package integrity re-checks recent audit records against the ledger and
// opens incidents for records that were altered or never anchored.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"aegis/internal/audit/metrics"
	"aegis/internal/audit/models"
	incidentModels "aegis/internal/incident/models"
	ledgerModels "aegis/internal/ledger/models"
	"aegis/pkg/requestcontext"
)

type RecordStore interface {
	ListAfter(ctx context.Context, after models.Cursor, limit int) ([]*models.Record, error)
	MarkVerified(ctx context.Context, id string, at time.Time) error
}

type HashVerifier interface {
	VerifyHash(ctx context.Context, hash ledgerModels.Hash) (*ledgerModels.HashVerification, error)
}

type IncidentRaiser interface {
	Raise(ctx context.Context, req incidentModels.RaiseRequest) (*incidentModels.Incident, error)
}

type Config struct {
	Window    time.Duration
	BatchSize int
}

func DefaultConfig() Config {
	return Config{Window: 24 * time.Hour, BatchSize: 500}
}

type Job struct {
	records   RecordStore
	ledger    HashVerifier
	incidents IncidentRaiser
	config    Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Job)

func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) { j.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(j *Job) { j.metrics = m }
}

func WithConfig(cfg Config) Option {
	return func(j *Job) {
		if cfg.Window > 0 {
			j.config.Window = cfg.Window
		}
		if cfg.BatchSize > 0 {
			j.config.BatchSize = cfg.BatchSize
		}
	}
}

func New(records RecordStore, ledger HashVerifier, incidents IncidentRaiser, opts ...Option) (*Job, error) {
	switch {
	case records == nil:
		return nil, errors.New("record store is required")
	case ledger == nil:
		return nil, errors.New("hash verifier is required")
	case incidents == nil:
		return nil, errors.New("incident raiser is required")
	}
	j := &Job{
		records:   records,
		ledger:    ledger,
		incidents: incidents,
		config:    DefaultConfig(),
		logger:    slog.Default(),
		tracer:    otel.Tracer("aegis/audit"),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Run checks on every tick until ctx is done.
func (j *Job) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				j.logger.ErrorContext(ctx, "audit integrity run failed", "error", err)
			}
		}
	}
}

// RunOnce classifies every record inside the window, reading it in pages of
// BatchSize:
//   - tamper_detected: the stored content no longer matches its hash
//   - not_logged: the hash is missing from the ledger
//   - verified: otherwise
func (j *Job) RunOnce(ctx context.Context) (*models.IntegrityReport, error) {
	ctx, span := j.tracer.Start(ctx, "audit.IntegrityRun")
	defer span.End()
	start := time.Now()
	now := requestcontext.Now(ctx)

	report := &models.IntegrityReport{RanAt: now, Results: []models.Result{}}
	cursor := models.Cursor{At: now.Add(-j.config.Window)}
	pages := 0
	for {
		recs, err := j.records.ListAfter(ctx, cursor, j.config.BatchSize)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "list records")
			return nil, fmt.Errorf("list audit records: %w", err)
		}
		pages++
		for _, rec := range recs {
			res, err := j.check(ctx, rec, now)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "check record")
				return nil, err
			}
			report.Add(res)
			if j.metrics != nil {
				j.metrics.IncrementResult(string(res.Outcome))
			}
		}
		if len(recs) < j.config.BatchSize {
			break
		}
		cursor = models.CursorAt(recs[len(recs)-1])
	}

	span.SetAttributes(
		attribute.Int("audit.pages", pages),
		attribute.Int("audit.checked", report.Checked),
		attribute.Int("audit.tampered", report.Tampered),
		attribute.Int("audit.not_logged", report.NotLogged),
	)
	if j.metrics != nil {
		j.metrics.ObserveRun(time.Since(start).Seconds())
	}
	level := slog.LevelInfo
	if report.Tampered > 0 || report.NotLogged > 0 {
		level = slog.LevelWarn
	}
	j.logger.Log(ctx, level, "audit integrity run complete",
		"checked", report.Checked,
		"verified", report.Verified,
		"tampered", report.Tampered,
		"not_logged", report.NotLogged,
	)
	return report, nil
}

func (j *Job) check(ctx context.Context, rec *models.Record, now time.Time) (models.Result, error) {
	res := models.Result{RecordID: rec.ID}
	if rec.ComputeHash() != rec.Hash {
		res.Outcome = models.OutcomeTamperDetected
		return j.raise(ctx, res, rec, "audit record content does not match its anchored hash")
	}

	verification, err := j.ledger.VerifyHash(ctx, rec.Hash)
	if err != nil {
		return res, fmt.Errorf("verify hash for record %s: %w", rec.ID, err)
	}
	if !verification.Exists {
		res.Outcome = models.OutcomeNotLogged
		return j.raise(ctx, res, rec, "audit record hash is missing from the ledger")
	}

	res.Outcome = models.OutcomeVerified
	if rec.LedgerVerifiedAt == nil {
		if err := j.records.MarkVerified(ctx, rec.ID, now); err != nil {
			return res, fmt.Errorf("mark record %s verified: %w", rec.ID, err)
		}
	}
	return res, nil
}

func (j *Job) raise(ctx context.Context, res models.Result, rec *models.Record, msg string) (models.Result, error) {
	inc, err := j.incidents.Raise(ctx, incidentModels.RaiseRequest{
		Message:            msg,
		VerificationStatus: string(res.Outcome),
		AffectedSubjectIDs: []string{rec.SubjectID},
		LedgerRefs:         []string{rec.Hash.String()},
		AuditRecordIDs:     []string{rec.ID},
	})
	if err != nil {
		return res, fmt.Errorf("raise incident for record %s: %w", rec.ID, err)
	}
	res.IncidentID = inc.ID
	j.logger.WarnContext(ctx, "audit integrity violation",
		"record_id", rec.ID,
		"outcome", res.Outcome,
		"incident_id", inc.ID,
	)
	return res, nil
}
