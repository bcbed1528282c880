package models

import "time"

const (
	FailureWindow    = 10 * time.Minute
	FailureThreshold = 3

	ViolationWindow    = time.Hour
	ViolationThreshold = 3
)

// Evaluate classifies activity at at. A nil schedule means the default
// office hours in UTC.
func Evaluate(schedule *Schedule, at time.Time, history History) Assessment {
	if schedule == nil {
		schedule = DefaultSchedule("", time.UTC)
	}
	a := Assessment{
		OutsideOfficeHours: !schedule.IsWorkingTime(at),
		Reasons:            []string{},
	}

	failures := countSince(history.Failures, at, FailureWindow)
	if failures >= FailureThreshold {
		a.Reasons = append(a.Reasons, ReasonRapidAttempts)
	}
	if countSince(history.Violations, at, ViolationWindow) >= ViolationThreshold {
		a.Reasons = append(a.Reasons, ReasonRepeatedViolations)
	}
	if a.OutsideOfficeHours && failures > 0 {
		a.Reasons = append(a.Reasons, ReasonOutsideHours)
	}
	a.Suspicious = len(a.Reasons) > 0
	return a
}

// countSince counts events in (at-window, at].
func countSince(events []time.Time, at time.Time, window time.Duration) int {
	from := at.Add(-window)
	n := 0
	for _, t := range events {
		if t.After(from) && !t.After(at) {
			n++
		}
	}
	return n
}
