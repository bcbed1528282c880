package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Verifier,Ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	ledgerModels "aegis/internal/ledger/models"
	"aegis/internal/mfa/models"
	"aegis/internal/mfa/secrets"
	"aegis/internal/mfa/service/mocks"
	"aegis/internal/mfa/store"
	"aegis/internal/ratelimit/service/requestlimit"
	"aegis/internal/ratelimit/store/bucket"
	subjectModels "aegis/internal/subject/models"
	subjectStore "aegis/internal/subject/store"
	vModels "aegis/internal/verification/models"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/testutil"
)

type MFAServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	verifier *mocks.MockVerifier
	ledger   *mocks.MockLedger
	subjects *subjectStore.InMemoryStore
	store    *store.InMemoryStore
	clock    *testutil.Clock
	service  *Service
}

func TestMFAServiceSuite(t *testing.T) {
	suite.Run(t, new(MFAServiceSuite))
}

func (s *MFAServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.verifier = mocks.NewMockVerifier(s.ctrl)
	s.ledger = mocks.NewMockLedger(s.ctrl)
	s.subjects = subjectStore.NewInMemoryStore()
	s.store = store.NewInMemoryStore()
	s.clock = testutil.NewClock(time.Date(2024, 5, 6, 9, 0, 10, 0, time.UTC))

	s.Require().NoError(s.subjects.Put(context.Background(), &subjectModels.Subject{ID: "subj-1", Email: "jane@example.com"}))

	sealer, err := secrets.New("test-master-key-0123456789")
	s.Require().NoError(err)
	limiter, err := requestlimit.New(bucket.NewInMemoryBucketStore())
	s.Require().NoError(err)

	svc, err := New(s.store, sealer, s.verifier, s.subjects, s.ledger, WithRateLimiter(limiter))
	s.Require().NoError(err)
	s.service = svc
}

func (s *MFAServiceSuite) ctx() context.Context {
	return s.clock.Ctx(context.Background())
}

func (s *MFAServiceSuite) codeAt(secret string, at time.Time) string {
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{Period: 30, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1})
	s.Require().NoError(err)
	return code
}

func (s *MFAServiceSuite) expectLedger(event string) {
	s.ledger.EXPECT().RecordCriticalEvent(gomock.Any(), event, "subj-1", gomock.Any()).Return(&ledgerModels.CriticalEvent{}, nil)
}

// enable runs setup and confirmation, returning the plaintext secret.
func (s *MFAServiceSuite) enable() string {
	setup, err := s.service.Setup(s.ctx(), "subj-1")
	s.Require().NoError(err)
	s.expectLedger(EventMFAEnabled)
	res, err := s.service.Verify(s.ctx(), "subj-1", s.codeAt(setup.Secret, s.clock.Now()))
	s.Require().NoError(err)
	s.Require().True(res.Promoted)
	return setup.Secret
}

func (s *MFAServiceSuite) TestSetupAndEnable() {
	setup, err := s.service.Setup(s.ctx(), "subj-1")
	s.Require().NoError(err)
	s.Contains(setup.URI, "otpauth://totp/")
	s.Contains(setup.URI, "issuer=Aegis")
	s.Len(setup.Secret, 32, "20 random bytes in base32")

	stored, err := s.store.Get(s.ctx(), "subj-1")
	s.Require().NoError(err)
	s.NotContains(string(stored.PendingSecret), setup.Secret, "pending secret is sealed")

	status, err := s.service.Status(s.ctx(), "subj-1")
	s.Require().NoError(err)
	s.Equal(models.StatePendingSetup, status.State)

	s.Run("wrong code keeps pending", func() {
		_, err := s.service.Verify(s.ctx(), "subj-1", "000000")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCode))
	})

	s.Run("valid code promotes", func() {
		s.expectLedger(EventMFAEnabled)
		res, err := s.service.Verify(s.ctx(), "subj-1", s.codeAt(setup.Secret, s.clock.Now()))
		s.Require().NoError(err)
		s.True(res.Promoted)

		status, err := s.service.Status(s.ctx(), "subj-1")
		s.Require().NoError(err)
		s.Equal(models.StateEnabled, status.State)
		s.True(status.Enabled)
		s.NotNil(status.EnabledAt)
	})

	s.Run("setup again is rejected", func() {
		_, err := s.service.Setup(s.ctx(), "subj-1")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *MFAServiceSuite) TestReplayIsRejected() {
	secret := s.enable()

	s.Run("same step", func() {
		_, err := s.service.Verify(s.ctx(), "subj-1", s.codeAt(secret, s.clock.Now()))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCode))
	})

	s.Run("earlier step within skew", func() {
		_, err := s.service.Verify(s.ctx(), "subj-1", s.codeAt(secret, s.clock.Now().Add(-30*time.Second)))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCode))
	})

	s.Run("next step", func() {
		s.clock.Advance(30 * time.Second)
		_, err := s.service.Verify(s.ctx(), "subj-1", s.codeAt(secret, s.clock.Now()))
		s.NoError(err)
	})
}

func (s *MFAServiceSuite) TestSkewWindow() {
	secret := s.enable()
	now := s.clock.Now()

	s.clock.Advance(2 * time.Minute)
	_, err := s.service.Verify(s.ctx(), "subj-1", s.codeAt(secret, s.clock.Now().Add(30*time.Second)))
	s.NoError(err, "one step ahead is accepted")

	s.clock.Advance(2 * time.Minute)
	_, err = s.service.Verify(s.ctx(), "subj-1", s.codeAt(secret, now))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidCode), "stale code outside the window")
}

func (s *MFAServiceSuite) TestDisable() {
	s.Run("requires a proof", func() {
		err := s.service.Disable(s.ctx(), "subj-1", models.DisableRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("not enabled", func() {
		err := s.service.Disable(s.ctx(), "subj-1", models.DisableRequest{TOTPCode: "123456"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	secret := s.enable()

	s.Run("wrong totp", func() {
		err := s.service.Disable(s.ctx(), "subj-1", models.DisableRequest{TOTPCode: "000000"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCode))
	})

	s.Run("valid totp", func() {
		s.clock.Advance(30 * time.Second)
		s.expectLedger(EventMFADisabled)
		err := s.service.Disable(s.ctx(), "subj-1", models.DisableRequest{TOTPCode: s.codeAt(secret, s.clock.Now())})
		s.Require().NoError(err)

		status, _ := s.service.Status(s.ctx(), "subj-1")
		s.Equal(models.StateDisabled, status.State)
		s.NotNil(status.DisabledAt)
	})
}

func (s *MFAServiceSuite) TestDisableWithEmailCode() {
	s.enable()

	s.Run("engine rejection propagates", func() {
		s.verifier.EXPECT().Verify(gomock.Any(), "subj-1", vModels.PurposeMFADisable, "111111").
			Return(dErrors.New(dErrors.CodeInvalidCode, "invalid code"))
		err := s.service.Disable(s.ctx(), "subj-1", models.DisableRequest{EmailCode: "111111"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCode))
	})

	s.Run("consumed email code disables", func() {
		s.verifier.EXPECT().Verify(gomock.Any(), "subj-1", vModels.PurposeMFADisable, "222222").Return(nil)
		s.ledger.EXPECT().
			RecordCriticalEvent(gomock.Any(), EventMFADisabled, "subj-1", map[string]string{"method": "email"}).
			Return(&ledgerModels.CriticalEvent{}, nil)
		s.Require().NoError(s.service.Disable(s.ctx(), "subj-1", models.DisableRequest{EmailCode: "222222"}))
	})
}

func (s *MFAServiceSuite) TestChallenge() {
	secret := s.enable()

	s.Run("normal account uses totp", func() {
		ch, err := s.service.Challenge(s.ctx(), "subj-1")
		s.Require().NoError(err)
		s.Equal(models.ChallengeTOTP, ch.Method)

		s.clock.Advance(30 * time.Second)
		method, err := s.service.VerifyChallenge(s.ctx(), "subj-1", s.codeAt(secret, s.clock.Now()))
		s.Require().NoError(err)
		s.Equal(models.ChallengeTOTP, method)
	})

	s.Run("deletion scheduled uses email otp", func() {
		at := s.clock.Now()
		s.Require().NoError(s.subjects.Put(context.Background(), &subjectModels.Subject{
			ID: "subj-1", Email: "jane@example.com", DeletionScheduledAt: &at,
		}))
		expires := at.Add(3 * time.Minute)
		s.verifier.EXPECT().Issue(gomock.Any(), "subj-1", vModels.PurposeLogin).
			Return(&vModels.IssueResult{Code: "482913", ExpiresAt: expires}, nil)
		ch, err := s.service.Challenge(s.ctx(), "subj-1")
		s.Require().NoError(err)
		s.Equal(models.ChallengeEmailOTP, ch.Method)
		s.Equal(expires, ch.ExpiresAt)

		s.verifier.EXPECT().Verify(gomock.Any(), "subj-1", vModels.PurposeLogin, "482913").Return(nil)
		method, err := s.service.VerifyChallenge(s.ctx(), "subj-1", "482913")
		s.Require().NoError(err)
		s.Equal(models.ChallengeEmailOTP, method)
	})
}

func (s *MFAServiceSuite) TestReenrollmentAfterPasswordChange() {
	s.enable()

	s.expectLedger(EventMFAReenrollment)
	status, err := s.service.CredentialChanged(s.ctx(), "subj-1", models.ChangePassword)
	s.Require().NoError(err)
	s.True(status.Enabled, "mfa stays enabled")
	s.True(status.ReenrollmentRequired)

	setup, err := s.service.Setup(s.ctx(), "subj-1")
	s.Require().NoError(err)

	s.clock.Advance(30 * time.Second)
	s.expectLedger(EventMFAEnabled)
	res, err := s.service.Verify(s.ctx(), "subj-1", s.codeAt(setup.Secret, s.clock.Now()))
	s.Require().NoError(err)
	s.True(res.Promoted)

	status, err = s.service.Status(s.ctx(), "subj-1")
	s.Require().NoError(err)
	s.False(status.ReenrollmentRequired)
	s.Equal(models.StateEnabled, status.State)
}

func (s *MFAServiceSuite) TestCredentialChangedIsRateLimited() {
	for range 3 {
		_, err := s.service.CredentialChanged(s.ctx(), "subj-1", models.ChangePassword)
		s.Require().NoError(err)
	}
	_, err := s.service.CredentialChanged(s.ctx(), "subj-1", models.ChangePassword)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))

	_, err = s.service.CredentialChanged(s.ctx(), "subj-1", models.CredentialChange("phone"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *MFAServiceSuite) TestLedgerFailureFailsEnablement() {
	setup, err := s.service.Setup(s.ctx(), "subj-1")
	s.Require().NoError(err)
	s.ledger.EXPECT().RecordCriticalEvent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("ledger down"))

	code := s.codeAt(setup.Secret, s.clock.Now())
	_, err = s.service.Verify(s.ctx(), "subj-1", code)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	status, err := s.service.Status(s.ctx(), "subj-1")
	s.Require().NoError(err)
	s.Equal(models.StatePendingSetup, status.State, "unanchored enablement is reverted")
	s.False(status.Enabled)

	s.expectLedger(EventMFAEnabled)
	res, err := s.service.Verify(s.ctx(), "subj-1", code)
	s.Require().NoError(err)
	s.True(res.Promoted)
}

func (s *MFAServiceSuite) TestLedgerFailureKeepsMFAEnabled() {
	secret := s.enable()
	s.clock.Advance(30 * time.Second)
	s.ledger.EXPECT().RecordCriticalEvent(gomock.Any(), EventMFADisabled, "subj-1", gomock.Any()).Return(nil, errors.New("ledger down"))

	err := s.service.Disable(s.ctx(), "subj-1", models.DisableRequest{TOTPCode: s.codeAt(secret, s.clock.Now())})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	status, err := s.service.Status(s.ctx(), "subj-1")
	s.Require().NoError(err)
	s.Equal(models.StateEnabled, status.State)
	s.Nil(status.DisabledAt)

	stored, err := s.store.Get(s.ctx(), "subj-1")
	s.Require().NoError(err)
	s.NotEmpty(stored.Secret)
}

func (s *MFAServiceSuite) TestReenrollmentInSameStepAsLogin() {
	secret := s.enable()
	s.clock.Advance(30 * time.Second)
	_, err := s.service.VerifyChallenge(s.ctx(), "subj-1", s.codeAt(secret, s.clock.Now()))
	s.Require().NoError(err)

	s.expectLedger(EventMFAReenrollment)
	_, err = s.service.CredentialChanged(s.ctx(), "subj-1", models.ChangeEmail)
	s.Require().NoError(err)

	setup, err := s.service.Setup(s.ctx(), "subj-1")
	s.Require().NoError(err)
	s.expectLedger(EventMFAEnabled)
	res, err := s.service.Verify(s.ctx(), "subj-1", s.codeAt(setup.Secret, s.clock.Now()))
	s.Require().NoError(err)
	s.True(res.Promoted, "the new secret has no used steps yet")
}

func (s *MFAServiceSuite) TestStatusForUnknownSubject() {
	status, err := s.service.Status(s.ctx(), "nobody")
	s.Require().NoError(err)
	s.Equal(models.StateDisabled, status.State)
	s.False(status.Enabled)
}
