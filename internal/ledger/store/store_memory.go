// Package store persists ledger entries. Implementations never update or
// delete an entry once written.
package store

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"aegis/internal/ledger/models"
	"aegis/pkg/platform/sentinel"
)

// InMemoryStore keeps all ledger tables under one mutex so a critical event
// and its digest anchor are written together.
type InMemoryStore struct {
	mu        sync.RWMutex
	hashes    map[models.Hash]*models.HashEntry
	hashCount int64
	events    []*models.CriticalEvent
	eventByID map[string]int
	approvals []*models.AdminApproval
	approvalX map[string]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		hashes:    make(map[models.Hash]*models.HashEntry),
		eventByID: make(map[string]int),
		approvalX: make(map[string]int),
	}
}

func (s *InMemoryStore) InsertHash(_ context.Context, entry *models.HashEntry) (*models.HashEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertHashLocked(entry)
}

func (s *InMemoryStore) insertHashLocked(entry *models.HashEntry) (*models.HashEntry, error) {
	if _, exists := s.hashes[entry.Hash]; exists {
		return nil, fmt.Errorf("hash %s: %w", entry.Hash, sentinel.ErrConflict)
	}
	s.hashCount++
	stored := *entry
	stored.Timestamp = models.NormalizeTime(stored.Timestamp)
	stored.Sequence = s.hashCount
	s.hashes[entry.Hash] = &stored
	out := stored
	return &out, nil
}

func (s *InMemoryStore) GetHash(_ context.Context, hash models.Hash) (*models.HashEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.hashes[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *entry
	return &out, nil
}

func (s *InMemoryStore) AppendCriticalEvent(_ context.Context, event *models.CriticalEvent) (*models.CriticalEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.eventByID[event.ID]; exists {
		return nil, fmt.Errorf("critical event %s: %w", event.ID, sentinel.ErrConflict)
	}
	stored := copyEvent(event)
	var prev models.Hash
	if n := len(s.events); n > 0 {
		prev = s.events[n-1].Digest
	}
	stored.Seal(prev)
	stored.Sequence = int64(len(s.events) + 1)

	if _, err := s.insertHashLocked(&models.HashEntry{
		Hash:       stored.Digest,
		EventType:  stored.EventType,
		Timestamp:  stored.Timestamp,
		RecordedBy: stored.Actor,
	}); err != nil {
		return nil, err
	}
	s.events = append(s.events, stored)
	s.eventByID[stored.ID] = len(s.events) - 1
	return copyEvent(stored), nil
}

func (s *InMemoryStore) AppendAdminApproval(_ context.Context, approval *models.AdminApproval) (*models.AdminApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.approvalX[approval.ApprovalID]; exists {
		return nil, fmt.Errorf("approval %s: %w", approval.ApprovalID, sentinel.ErrConflict)
	}
	stored := copyApproval(approval)
	var prev models.Hash
	if n := len(s.approvals); n > 0 {
		prev = s.approvals[n-1].Digest
	}
	stored.Seal(prev)
	stored.Sequence = int64(len(s.approvals) + 1)

	if _, err := s.insertHashLocked(&models.HashEntry{
		Hash:       stored.Digest,
		EventType:  stored.EventType,
		Timestamp:  stored.Timestamp,
		RecordedBy: stored.ApproverID,
	}); err != nil {
		return nil, err
	}
	s.approvals = append(s.approvals, stored)
	s.approvalX[stored.ApprovalID] = len(s.approvals) - 1
	return copyApproval(stored), nil
}

func (s *InMemoryStore) GetCriticalEvent(_ context.Context, id string) (*models.CriticalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.eventByID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyEvent(s.events[idx]), nil
}

func (s *InMemoryStore) CriticalEventsBySubject(_ context.Context, subjectID string) ([]*models.CriticalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.CriticalEvent
	for _, e := range s.events {
		if e.SubjectID == subjectID {
			out = append(out, copyEvent(e))
		}
	}
	return out, nil
}

func (s *InMemoryStore) GetAdminApproval(_ context.Context, approvalID string) (*models.AdminApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.approvalX[approvalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyApproval(s.approvals[idx]), nil
}

func (s *InMemoryStore) ApprovalsBySubject(_ context.Context, subjectID string) ([]*models.AdminApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AdminApproval
	for _, a := range s.approvals {
		if a.SubjectID == subjectID {
			out = append(out, copyApproval(a))
		}
	}
	return out, nil
}

// ListCriticalEvents returns up to limit events with sequence > after.
func (s *InMemoryStore) ListCriticalEvents(_ context.Context, after int64, limit int) ([]*models.CriticalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.CriticalEvent
	for i := int(after); i < len(s.events) && len(out) < limit; i++ {
		out = append(out, copyEvent(s.events[i]))
	}
	return out, nil
}

func (s *InMemoryStore) ListAdminApprovals(_ context.Context, after int64, limit int) ([]*models.AdminApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AdminApproval
	for i := int(after); i < len(s.approvals) && len(out) < limit; i++ {
		out = append(out, copyApproval(s.approvals[i]))
	}
	return out, nil
}

func (s *InMemoryStore) Counts(_ context.Context) (models.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.Counts{
		Hashes:         s.hashCount,
		CriticalEvents: int64(len(s.events)),
		Approvals:      int64(len(s.approvals)),
	}, nil
}

func copyEvent(e *models.CriticalEvent) *models.CriticalEvent {
	out := *e
	out.Details = maps.Clone(e.Details)
	return &out
}

func copyApproval(a *models.AdminApproval) *models.AdminApproval {
	out := *a
	out.Details = maps.Clone(a.Details)
	return &out
}
