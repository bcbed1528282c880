// Package models holds cross-device pairing sessions and registered
// passkey credentials.
package models

import (
	"slices"
	"time"
)

type State string

const (
	StatePending        State = "pending"
	StateAuthenticating State = "authenticating"
	StateApproved       State = "approved"
	StateDenied         State = "denied"
	StateExpired        State = "expired"
)

// IsTerminal reports whether no further transition is allowed.
func (s State) IsTerminal() bool {
	return s == StateApproved || s == StateDenied || s == StateExpired
}

// CanTransition encodes the one-way pairing graph.
func (s State) CanTransition(to State) bool {
	allowed := map[State][]State{
		StatePending:        {StateAuthenticating, StateDenied, StateExpired},
		StateAuthenticating: {StateApproved, StateDenied, StateExpired},
	}
	return slices.Contains(allowed[s], to)
}

// Session correlates Device A (waiting) with Device B (holding the passkey).
// Ceremony is the serialized WebAuthn session data and Options the assertion
// options handed to Device B. An approval is only visible to Device A once
// Anchored is set.
type Session struct {
	ID               string    `json:"id"`
	State            State     `json:"state"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	DeviceAInitiated bool      `json:"device_a_initiated"`
	ResultUserID     string    `json:"result_user_id,omitempty"`
	Ceremony         []byte    `json:"ceremony,omitempty"`
	Options          []byte    `json:"options,omitempty"`
	Anchored         bool      `json:"anchored,omitempty"`
}

func (s *Session) IsExpired(now time.Time) bool {
	return !s.State.IsTerminal() && now.After(s.ExpiresAt)
}

type Status struct {
	State        State     `json:"state"`
	ExpiresAt    time.Time `json:"expires_at"`
	ResultUserID string    `json:"result_user_id,omitempty"`
}

func (s *Session) Status() *Status {
	st := &Status{State: s.State, ExpiresAt: s.ExpiresAt}
	if s.State != StateApproved {
		return st
	}
	if !s.Anchored {
		st.State = StateAuthenticating
		return st
	}
	st.ResultUserID = s.ResultUserID
	return st
}

// Credential is a registered passkey. Data is the JSON-encoded WebAuthn
// credential including its sign counter.
type Credential struct {
	SubjectID    string
	CredentialID []byte
	Data         []byte
	CreatedAt    time.Time
}
