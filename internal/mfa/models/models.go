// Package models holds the MFA credential and its derived state.
package models

import "time"

type State string

const (
	StateDisabled     State = "disabled"
	StatePendingSetup State = "pending_setup"
	StateEnabled      State = "enabled"
)

// Credential is the one TOTP credential a subject may hold. Secrets are
// sealed; Version drives compare-and-set updates and is 0 before the first
// write.
type Credential struct {
	SubjectID            string
	Secret               []byte
	PendingSecret        []byte
	Enabled              bool
	EnabledAt            *time.Time
	DisabledAt           *time.Time
	ReenrollmentRequired bool
	LastUsedStep         int64
	Version              int
	UpdatedAt            time.Time
}

// State derives the lifecycle position. A pending secret on an enabled
// credential is a re-enrollment and does not change the state.
func (c *Credential) State() State {
	switch {
	case c == nil:
		return StateDisabled
	case c.Enabled:
		return StateEnabled
	case len(c.PendingSecret) > 0:
		return StatePendingSetup
	default:
		return StateDisabled
	}
}

type SetupResult struct {
	Secret string `json:"secret"`
	URI    string `json:"otpauth_uri"`
}

type VerifyResult struct {
	State    State `json:"state"`
	Promoted bool  `json:"promoted"`
}

// DisableRequest carries exactly one proof of possession.
type DisableRequest struct {
	TOTPCode  string
	EmailCode string
}

type ChallengeMethod string

const (
	ChallengeTOTP     ChallengeMethod = "totp"
	ChallengeEmailOTP ChallengeMethod = "email_otp"
)

type Challenge struct {
	Method    ChallengeMethod `json:"method"`
	ExpiresAt time.Time       `json:"expires_at,omitzero"`
}

type CredentialChange string

const (
	ChangeEmail    CredentialChange = "email"
	ChangePassword CredentialChange = "password"
)

func (c CredentialChange) IsValid() bool {
	return c == ChangeEmail || c == ChangePassword
}

type Status struct {
	State                State      `json:"state"`
	Enabled              bool       `json:"enabled"`
	ReenrollmentRequired bool       `json:"reenrollment_required"`
	EnabledAt            *time.Time `json:"enabled_at,omitempty"`
	DisabledAt           *time.Time `json:"disabled_at,omitempty"`
}

func (c *Credential) Status() *Status {
	if c == nil {
		return &Status{State: StateDisabled}
	}
	return &Status{
		State:                c.State(),
		Enabled:              c.Enabled,
		ReenrollmentRequired: c.ReenrollmentRequired,
		EnabledAt:            c.EnabledAt,
		DisabledAt:           c.DisabledAt,
	}
}
