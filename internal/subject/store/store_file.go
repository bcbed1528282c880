package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"aegis/internal/subject/models"
)

// seedFile is the TOML layout of a subject seed file:
//
//	[[subject]]
//	id = "user-1"
//	email = "jane@example.com"
//	display_name = "Jane"
//	deletion_scheduled_at = 2024-06-01T00:00:00Z
type seedFile struct {
	Subject []seedEntry `toml:"subject"`
}

type seedEntry struct {
	ID                  string     `toml:"id"`
	Email               string     `toml:"email"`
	DisplayName         string     `toml:"display_name"`
	DeletionScheduledAt *time.Time `toml:"deletion_scheduled_at"`
}

// LoadFile puts every subject listed in the TOML file at path and returns how
// many were loaded. Nothing is stored when the file fails to validate.
func (s *InMemoryStore) LoadFile(ctx context.Context, path string) (int, error) {
	var f seedFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return 0, fmt.Errorf("decode subjects file %s: %w", path, err)
	}

	subjects := make([]*models.Subject, 0, len(f.Subject))
	seen := make(map[string]struct{}, len(f.Subject))
	var errs []error
	for i, e := range f.Subject {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("subject %d: id is required", i))
			continue
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("subject %q: listed twice", id))
			continue
		}
		seen[id] = struct{}{}
		subjects = append(subjects, &models.Subject{
			ID:                  id,
			Email:               strings.TrimSpace(e.Email),
			DisplayName:         strings.TrimSpace(e.DisplayName),
			DeletionScheduledAt: e.DeletionScheduledAt,
		})
	}
	if err := errors.Join(errs...); err != nil {
		return 0, fmt.Errorf("subjects file %s: %w", path, err)
	}

	for _, subject := range subjects {
		if err := s.Put(ctx, subject); err != nil {
			return 0, err
		}
	}
	return len(subjects), nil
}
