// Package models holds office-hours schedules and activity assessments.
package models

import (
	"fmt"
	"maps"
	"time"
)

// Window is a working range within one day as offsets from midnight,
// half-open [Start, End).
type Window struct {
	Working bool
	Start   time.Duration
	End     time.Duration
}

// Contains reports whether offset falls inside a working window.
func (w Window) Contains(offset time.Duration) bool {
	return w.Working && offset >= w.Start && offset < w.End
}

// NewWindow parses "HH:MM" bounds.
func NewWindow(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, err
	}
	if e <= s {
		return Window{}, fmt.Errorf("window end %s must be after start %s", end, start)
	}
	return Window{Working: true, Start: s, End: e}, nil
}

// ParseClock parses a 24h "HH:MM" time of day. "24:00" is accepted as an
// end-of-day bound.
func ParseClock(v string) (time.Duration, error) {
	if v == "24:00" {
		return 24 * time.Hour, nil
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", v)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

const dateLayout = "2006-01-02"

// Schedule is an office's declared working time. It is immutable once built.
type Schedule struct {
	office     string
	location   *time.Location
	weekly     [7]Window
	exceptions map[string]Window
}

// NewSchedule copies its inputs. Exception keys are "YYYY-MM-DD" dates in
// the schedule's location.
func NewSchedule(office string, loc *time.Location, weekly [7]Window, exceptions map[string]Window) *Schedule {
	if loc == nil {
		loc = time.UTC
	}
	return &Schedule{
		office:     office,
		location:   loc,
		weekly:     weekly,
		exceptions: maps.Clone(exceptions),
	}
}

// DefaultSchedule is Monday to Friday, 08:00 to 17:00.
func DefaultSchedule(office string, loc *time.Location) *Schedule {
	var weekly [7]Window
	for d := time.Monday; d <= time.Friday; d++ {
		weekly[d] = Window{Working: true, Start: 8 * time.Hour, End: 17 * time.Hour}
	}
	return NewSchedule(office, loc, weekly, nil)
}

func (s *Schedule) Office() string                { return s.office }
func (s *Schedule) Location() *time.Location      { return s.location }
func (s *Schedule) Weekday(d time.Weekday) Window { return s.weekly[d] }

// WindowFor returns the window that applies on t's local date. A date
// exception replaces the weekday window.
func (s *Schedule) WindowFor(t time.Time) Window {
	local := t.In(s.location)
	if w, ok := s.exceptions[local.Format(dateLayout)]; ok {
		return w
	}
	return s.weekly[local.Weekday()]
}

// IsWorkingTime reports whether t falls inside declared working hours.
func (s *Schedule) IsWorkingTime(t time.Time) bool {
	local := t.In(s.location)
	clock := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second
	return s.WindowFor(t).Contains(clock)
}

// History is the recent activity of one subject.
type History struct {
	Failures   []time.Time
	Violations []time.Time
}

const (
	ReasonRapidAttempts      = "rapid_attempts"
	ReasonRepeatedViolations = "repeated_rate_limit_violations"
	ReasonOutsideHours       = "outside_office_hours_activity"
	ReasonSuspiciousAgent    = "suspicious_user_agent"
)

type Assessment struct {
	OutsideOfficeHours bool     `json:"outside_office_hours"`
	Suspicious         bool     `json:"suspicious"`
	Reasons            []string `json:"reasons"`
	IncidentID         string   `json:"incident_id,omitempty"`
}

type AssessRequest struct {
	SubjectID string
	Office    string
	At        time.Time
	UserAgent string
}
