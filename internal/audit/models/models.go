// Package models defines off-ledger audit records. Each record's content
// hash is anchored to the ledger so later edits are detectable.
package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	ledgerModels "aegis/internal/ledger/models"
)

type Record struct {
	ID               string            `json:"id"`
	SubjectID        string            `json:"subject_id"`
	EventType        string            `json:"event_type"`
	Field            string            `json:"field,omitempty"`
	OldValue         string            `json:"old_value,omitempty"`
	NewValue         string            `json:"new_value,omitempty"`
	Role             string            `json:"role,omitempty"`
	Metadata         map[string]string `json:"metadata"`
	Timestamp        time.Time         `json:"timestamp"`
	Hash             ledgerModels.Hash `json:"hash"`
	LedgerVerifiedAt *time.Time        `json:"ledger_verified_at,omitempty"`
}

type recordContent struct {
	ID        string            `json:"id"`
	SubjectID string            `json:"subject_id"`
	EventType string            `json:"event_type"`
	Field     string            `json:"field"`
	OldValue  string            `json:"old_value"`
	NewValue  string            `json:"new_value"`
	Role      string            `json:"role"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp string            `json:"timestamp"`
}

// ComputeHash is the SHA-256 of the record's canonical content. Hash and
// LedgerVerifiedAt are excluded.
func (r *Record) ComputeHash() ledgerModels.Hash {
	metadata := r.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	b, err := json.Marshal(recordContent{
		ID:        r.ID,
		SubjectID: r.SubjectID,
		EventType: r.EventType,
		Field:     r.Field,
		OldValue:  r.OldValue,
		NewValue:  r.NewValue,
		Role:      r.Role,
		Metadata:  metadata,
		Timestamp: ledgerModels.NormalizeTime(r.Timestamp).Format(time.RFC3339Nano),
	})
	if err != nil {
		panic(fmt.Sprintf("audit: canonical encoding failed: %v", err))
	}
	return ledgerModels.Sum(b)
}

func (r *Record) Clone() *Record {
	cp := *r
	cp.Metadata = maps.Clone(r.Metadata)
	if r.LedgerVerifiedAt != nil {
		t := *r.LedgerVerifiedAt
		cp.LedgerVerifiedAt = &t
	}
	return &cp
}

// Cursor is a keyset position over records ordered by (Timestamp, ID). The
// zero ID admits every record at At.
type Cursor struct {
	At time.Time
	ID string
}

// CursorAt returns the position of r, so the next page starts after it.
func CursorAt(r *Record) Cursor {
	return Cursor{At: r.Timestamp, ID: r.ID}
}

// Admits reports whether r sorts after c.
func (c Cursor) Admits(r *Record) bool {
	if cmp := r.Timestamp.Compare(c.At); cmp != 0 {
		return cmp > 0
	}
	return r.ID > c.ID
}

// CompareRecords orders records by (Timestamp, ID).
func CompareRecords(a, b *Record) int {
	if cmp := a.Timestamp.Compare(b.Timestamp); cmp != 0 {
		return cmp
	}
	return strings.Compare(a.ID, b.ID)
}

// RecordInput is what callers supply. ID, role, timestamp and hash are
// assigned on write.
type RecordInput struct {
	SubjectID string            `json:"subjectId"`
	EventType string            `json:"eventType"`
	Field     string            `json:"field"`
	OldValue  string            `json:"oldValue"`
	NewValue  string            `json:"newValue"`
	Metadata  map[string]string `json:"metadata"`
}

type Outcome string

const (
	OutcomeVerified       Outcome = "verified"
	OutcomeTamperDetected Outcome = "tamper_detected"
	OutcomeNotLogged      Outcome = "not_logged"
)

type Result struct {
	RecordID   string  `json:"record_id"`
	Outcome    Outcome `json:"outcome"`
	IncidentID string  `json:"incident_id,omitempty"`
}

type IntegrityReport struct {
	Checked   int       `json:"checked"`
	Verified  int       `json:"verified"`
	Tampered  int       `json:"tampered"`
	NotLogged int       `json:"not_logged"`
	Results   []Result  `json:"results"`
	RanAt     time.Time `json:"ran_at"`
}

func (r *IntegrityReport) Add(res Result) {
	r.Checked++
	switch res.Outcome {
	case OutcomeVerified:
		r.Verified++
	case OutcomeTamperDetected:
		r.Tampered++
	case OutcomeNotLogged:
		r.NotLogged++
	}
	r.Results = append(r.Results, res)
}
