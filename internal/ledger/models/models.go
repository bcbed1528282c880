// Package models defines the append-only ledger entries and their digests.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	dErrors "aegis/pkg/domain-errors"
)

// Hash is a SHA-256 fingerprint.
type Hash [32]byte

// ParseHash decodes a 64-character hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(raw) != len(h) {
		return h, dErrors.New(dErrors.CodeValidation, "hash must be 64 hex characters")
	}
	copy(h[:], raw)
	return h, nil
}

// HashFromBytes copies a 32-byte slice into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != len(h) {
		return h, fmt.Errorf("hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Sum hashes arbitrary content.
func Sum(b []byte) Hash {
	return sha256.Sum256(b)
}

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(b []byte) error {
	parsed, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HashEntry is an anchored fingerprint.
type HashEntry struct {
	Hash       Hash      `json:"hash"`
	EventType  string    `json:"event_type"`
	Timestamp  time.Time `json:"timestamp"`
	RecordedBy string    `json:"recorded_by"`
	Sequence   int64     `json:"sequence"`
}

// CriticalEvent is a security event bound to a subject.
type CriticalEvent struct {
	ID         string            `json:"id"`
	EventType  string            `json:"event_type"`
	SubjectID  string            `json:"subject_id"`
	Details    map[string]string `json:"details,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Actor      string            `json:"actor"`
	Sequence   int64             `json:"sequence"`
	PrevDigest Hash              `json:"prev_digest"`
	Digest     Hash              `json:"digest"`
}

// AdminApproval records an administrator's decision.
type AdminApproval struct {
	ApprovalID string            `json:"approval_id"`
	EventType  string            `json:"event_type"`
	SubjectID  string            `json:"subject_id"`
	ApproverID string            `json:"approver_id"`
	Approved   bool              `json:"approved"`
	Details    map[string]string `json:"details,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Sequence   int64             `json:"sequence"`
	PrevDigest Hash              `json:"prev_digest"`
	Digest     Hash              `json:"digest"`
}

// NormalizeTime truncates to the precision every store can round-trip.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// criticalEventContent is the canonical digest input. Field order is fixed
// and encoding/json sorts map keys.
type criticalEventContent struct {
	Kind       string            `json:"kind"`
	ID         string            `json:"id"`
	EventType  string            `json:"event_type"`
	SubjectID  string            `json:"subject_id"`
	Details    map[string]string `json:"details"`
	Timestamp  string            `json:"timestamp"`
	Actor      string            `json:"actor"`
	PrevDigest string            `json:"prev_digest"`
}

type adminApprovalContent struct {
	Kind       string            `json:"kind"`
	ApprovalID string            `json:"approval_id"`
	EventType  string            `json:"event_type"`
	SubjectID  string            `json:"subject_id"`
	ApproverID string            `json:"approver_id"`
	Approved   bool              `json:"approved"`
	Details    map[string]string `json:"details"`
	Timestamp  string            `json:"timestamp"`
	PrevDigest string            `json:"prev_digest"`
}

// ComputeDigest hashes the event content chained to PrevDigest.
func (e *CriticalEvent) ComputeDigest() Hash {
	return digestOf(criticalEventContent{
		Kind:       KindCriticalEvent,
		ID:         e.ID,
		EventType:  e.EventType,
		SubjectID:  e.SubjectID,
		Details:    nonNil(e.Details),
		Timestamp:  NormalizeTime(e.Timestamp).Format(time.RFC3339Nano),
		Actor:      e.Actor,
		PrevDigest: e.PrevDigest.String(),
	})
}

// Seal links the event after prev and sets its digest.
func (e *CriticalEvent) Seal(prev Hash) {
	e.Timestamp = NormalizeTime(e.Timestamp)
	e.PrevDigest = prev
	e.Digest = e.ComputeDigest()
}

func (a *AdminApproval) ComputeDigest() Hash {
	return digestOf(adminApprovalContent{
		Kind:       KindAdminApproval,
		ApprovalID: a.ApprovalID,
		EventType:  a.EventType,
		SubjectID:  a.SubjectID,
		ApproverID: a.ApproverID,
		Approved:   a.Approved,
		Details:    nonNil(a.Details),
		Timestamp:  NormalizeTime(a.Timestamp).Format(time.RFC3339Nano),
		PrevDigest: a.PrevDigest.String(),
	})
}

func (a *AdminApproval) Seal(prev Hash) {
	a.Timestamp = NormalizeTime(a.Timestamp)
	a.PrevDigest = prev
	a.Digest = a.ComputeDigest()
}

func digestOf(v any) Hash {
	b, err := json.Marshal(v)
	if err != nil {
		// Only string maps and scalars are encoded.
		panic(fmt.Sprintf("ledger: canonical encoding failed: %v", err))
	}
	return Sum(b)
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// Entry kinds, used for anchors and chain reports.
const (
	KindHash          = "hash"
	KindCriticalEvent = "critical_event"
	KindAdminApproval = "admin_approval"
)

// Counts are monotonic entry totals.
type Counts struct {
	Hashes         int64 `json:"hashes"`
	CriticalEvents int64 `json:"critical_events"`
	Approvals      int64 `json:"approvals"`
}

// HashVerification is the result of a lookup. Timestamp is zero when absent.
type HashVerification struct {
	Exists    bool
	Timestamp time.Time
}

// ChainReport describes a chain walk. BrokenKind and BrokenSequence are set
// on the first break.
type ChainReport struct {
	Valid          bool   `json:"valid"`
	Checked        int64  `json:"checked"`
	BrokenKind     string `json:"broken_kind,omitempty"`
	BrokenSequence int64  `json:"broken_sequence,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// AnchorEvent is emitted after each committed write.
type AnchorEvent struct {
	Kind      string    `json:"kind"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Key       string    `json:"key"`
	Digest    string    `json:"digest,omitempty"`
	EventType string    `json:"event_type"`
}
