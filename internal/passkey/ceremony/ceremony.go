// Package ceremony adapts go-webauthn to the pairing and registration flows.
// Options and session data cross the service boundary as opaque JSON so the
// stores stay independent of the WebAuthn types.
package ceremony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"aegis/internal/passkey/models"
	"aegis/pkg/requestcontext"
)

var ErrInvalidAssertion = errors.New("invalid webauthn assertion")

type CredentialStore interface {
	Add(ctx context.Context, cred *models.Credential) error
	Update(ctx context.Context, cred *models.Credential) error
	ListBySubject(ctx context.Context, subjectID string) ([]*models.Credential, error)
}

type Config struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
}

type Adapter struct {
	wa    *webauthn.WebAuthn
	creds CredentialStore
}

func New(cfg Config, creds CredentialStore) (*Adapter, error) {
	if creds == nil {
		return nil, errors.New("credential store is required")
	}
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn config: %w", err)
	}
	return &Adapter{wa: wa, creds: creds}, nil
}

// BeginAssertion starts a discoverable login; the authenticator supplies the
// user handle.
func (a *Adapter) BeginAssertion(_ context.Context) (options, session []byte, err error) {
	assertion, data, err := a.wa.BeginDiscoverableLogin(webauthn.WithUserVerification(protocol.VerificationRequired))
	if err != nil {
		return nil, nil, fmt.Errorf("begin assertion: %w", err)
	}
	if options, err = json.Marshal(assertion); err != nil {
		return nil, nil, fmt.Errorf("encode assertion options: %w", err)
	}
	if session, err = json.Marshal(data); err != nil {
		return nil, nil, fmt.Errorf("encode assertion session: %w", err)
	}
	return options, session, nil
}

// VerifyAssertion validates the response against session and returns the
// owning subject. The stored sign counter is advanced.
func (a *Adapter) VerifyAssertion(ctx context.Context, session, assertion []byte) (string, error) {
	var data webauthn.SessionData
	if err := json.Unmarshal(session, &data); err != nil {
		return "", fmt.Errorf("decode assertion session: %w", err)
	}
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(assertion))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}

	var owner *user
	cred, err := a.wa.ValidateDiscoverableLogin(func(_, userHandle []byte) (webauthn.User, error) {
		u, err := a.loadUser(ctx, string(userHandle), "")
		if err != nil {
			return nil, err
		}
		if len(u.creds) == 0 {
			return nil, errors.New("no passkeys registered")
		}
		owner = u
		return u, nil
	}, data, parsed)
	if err != nil || owner == nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}
	if cred.Authenticator.CloneWarning {
		return "", fmt.Errorf("%w: authenticator clone warning", ErrInvalidAssertion)
	}

	raw, err := json.Marshal(cred)
	if err != nil {
		return "", fmt.Errorf("encode credential: %w", err)
	}
	if err := a.creds.Update(ctx, &models.Credential{SubjectID: owner.id, CredentialID: cred.ID, Data: raw}); err != nil {
		return "", fmt.Errorf("update sign count: %w", err)
	}
	return owner.id, nil
}

// BeginRegistration requires a resident key so the passkey can later
// answer discoverable logins. Existing credentials are excluded.
func (a *Adapter) BeginRegistration(ctx context.Context, subjectID, name string) (options, session []byte, err error) {
	u, err := a.loadUser(ctx, subjectID, name)
	if err != nil {
		return nil, nil, err
	}
	exclusions := make([]protocol.CredentialDescriptor, 0, len(u.creds))
	for _, c := range u.creds {
		exclusions = append(exclusions, c.Descriptor())
	}
	creation, data, err := a.wa.BeginRegistration(u,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithExclusions(exclusions),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("begin registration: %w", err)
	}
	if options, err = json.Marshal(creation); err != nil {
		return nil, nil, fmt.Errorf("encode registration options: %w", err)
	}
	if session, err = json.Marshal(data); err != nil {
		return nil, nil, fmt.Errorf("encode registration session: %w", err)
	}
	return options, session, nil
}

func (a *Adapter) FinishRegistration(ctx context.Context, subjectID string, session, response []byte) (*models.Credential, error) {
	var data webauthn.SessionData
	if err := json.Unmarshal(session, &data); err != nil {
		return nil, fmt.Errorf("decode registration session: %w", err)
	}
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}
	u, err := a.loadUser(ctx, subjectID, "")
	if err != nil {
		return nil, err
	}
	cred, err := a.wa.CreateCredential(u, data, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}
	raw, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("encode credential: %w", err)
	}
	out := &models.Credential{
		SubjectID:    subjectID,
		CredentialID: cred.ID,
		Data:         raw,
		CreatedAt:    requestcontext.Now(ctx).Truncate(time.Microsecond),
	}
	if err := a.creds.Add(ctx, out); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}
	return out, nil
}

func (a *Adapter) loadUser(ctx context.Context, subjectID, name string) (*user, error) {
	if subjectID == "" {
		return nil, errors.New("empty user handle")
	}
	stored, err := a.creds.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	u := &user{id: subjectID, name: name}
	if u.name == "" {
		u.name = subjectID
	}
	for _, s := range stored {
		var c webauthn.Credential
		if err := json.Unmarshal(s.Data, &c); err != nil {
			return nil, fmt.Errorf("decode credential: %w", err)
		}
		u.creds = append(u.creds, c)
	}
	return u, nil
}

// user satisfies webauthn.User. The user handle is the subject id.
type user struct {
	id    string
	name  string
	creds []webauthn.Credential
}

func (u *user) WebAuthnID() []byte                         { return []byte(u.id) }
func (u *user) WebAuthnName() string                       { return u.name }
func (u *user) WebAuthnDisplayName() string                { return u.name }
func (u *user) WebAuthnCredentials() []webauthn.Credential { return u.creds }
