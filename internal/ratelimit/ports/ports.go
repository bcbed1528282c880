// Package ports defines the interfaces shared by ratelimit services.
package ports

import (
	"context"
	"log/slog"
	"time"

	"aegis/internal/ratelimit/models"
	"aegis/pkg/requestcontext"
)

// BucketStore manages sliding window counters. Allow must be atomic per key.
type BucketStore interface {
	// Allow admits one request at now if fewer than limit were admitted in
	// the trailing window.
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (*models.RateLimitResult, error)

	// Reset clears the counter for a key.
	Reset(ctx context.Context, key string) error

	// GetCurrentCount returns the admitted count inside the window ending at now.
	GetCurrentCount(ctx context.Context, key string, window time.Duration, now time.Time) (int, error)
}

// AuthLockoutStore persists lockout records.
type AuthLockoutStore interface {
	Get(ctx context.Context, identifier string) (*models.AuthLockout, error)
	// RecordFailure atomically increments the failure count, restarting it
	// when the previous failure is older than window.
	RecordFailure(ctx context.Context, identifier string, window time.Duration, now time.Time) (*models.AuthLockout, error)
	Update(ctx context.Context, record *models.AuthLockout) error
	Clear(ctx context.Context, identifier string) error
}

// ViolationRecorder receives the security-monitor flag raised on denial.
type ViolationRecorder interface {
	RecordViolation(ctx context.Context, identity string, policy models.Policy, at time.Time) error
}

// LogAudit writes an audit-typed structured log line with the request id.
func LogAudit(ctx context.Context, logger *slog.Logger, event string, attrs ...any) {
	if logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	attrs = append(attrs, "event", event, "log_type", "audit")
	logger.InfoContext(ctx, event, attrs...)
}
