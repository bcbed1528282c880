// Package models defines tamper incidents and their lifecycle.
package models

import (
	"slices"
	"time"
)

type Status string

const (
	StatusNew          Status = "new"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusAcknowledged, StatusResolved:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Verification outcomes that raise incidents.
const (
	VerificationTamperDetected = "tamper_detected"
	VerificationNotLogged      = "not_logged"
	VerificationDuplicateHash  = "duplicate_hash"
	VerificationSuspicious     = "suspicious_activity"
)

// DefaultSeverity is used when a raise request does not name one.
func DefaultSeverity(verificationStatus string) Severity {
	switch verificationStatus {
	case VerificationTamperDetected, VerificationDuplicateHash:
		return SeverityHigh
	}
	return SeverityMedium
}

// DefaultContainment reports whether an incident starts contained.
func DefaultContainment(verificationStatus string) bool {
	return verificationStatus == VerificationTamperDetected
}

type Incident struct {
	ID                 string     `json:"id"`
	Message            string     `json:"message"`
	Severity           Severity   `json:"severity"`
	Status             Status     `json:"status"`
	ContainmentActive  bool       `json:"containment_active"`
	VerificationStatus string     `json:"verification_status"`
	AffectedSubjectIDs []string   `json:"affected_subject_ids"`
	LedgerRefs         []string   `json:"ledger_refs"`
	AuditRecordIDs     []string   `json:"audit_record_ids"`
	DetectedAt         time.Time  `json:"detected_at"`
	AcknowledgedAt     *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy     string     `json:"acknowledged_by,omitempty"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy         string     `json:"resolved_by,omitempty"`
	ResolutionNotes    string     `json:"resolution_notes,omitempty"`
	Version            int        `json:"version"`
}

func (i *Incident) IsOpen() bool {
	return i.Status != StatusResolved
}

// Affects reports whether subjectID is referenced by the incident.
func (i *Incident) Affects(subjectID string) bool {
	return slices.Contains(i.AffectedSubjectIDs, subjectID)
}

// Clone returns a deep copy safe to mutate.
func (i *Incident) Clone() *Incident {
	cp := *i
	cp.AffectedSubjectIDs = slices.Clone(i.AffectedSubjectIDs)
	cp.LedgerRefs = slices.Clone(i.LedgerRefs)
	cp.AuditRecordIDs = slices.Clone(i.AuditRecordIDs)
	if i.AcknowledgedAt != nil {
		t := *i.AcknowledgedAt
		cp.AcknowledgedAt = &t
	}
	if i.ResolvedAt != nil {
		t := *i.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}

// RaiseRequest opens an incident. Zero Severity and nil Containment take the
// defaults for VerificationStatus.
type RaiseRequest struct {
	Message            string
	Severity           Severity
	VerificationStatus string
	Containment        *bool
	AffectedSubjectIDs []string
	LedgerRefs         []string
	AuditRecordIDs     []string
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type ListFilter struct {
	Status   Status
	Severity Severity
	Limit    int
}

// CountQuery narrows Count. Zero values match everything.
type CountQuery struct {
	Status        Status
	ContainedOnly bool
}

type Stats struct {
	Total             int `json:"total"`
	New               int `json:"new"`
	Acknowledged      int `json:"acknowledged"`
	Resolved          int `json:"resolved"`
	ContainmentActive int `json:"containment_active"`
}
