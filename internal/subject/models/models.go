// Package models defines the read-only subject directory entry.
package models

import "time"

// Subject is an account holder as seen by the security core.
type Subject struct {
	ID                  string
	Email               string
	DisplayName         string
	DeletionScheduledAt *time.Time
}

// DeletionScheduled reports whether the account is pending deletion.
func (s *Subject) DeletionScheduled() bool {
	return s.DeletionScheduledAt != nil
}
