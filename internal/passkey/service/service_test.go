package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks AssertionVerifier,Registrar,Ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	ledgerModels "aegis/internal/ledger/models"
	"aegis/internal/passkey/ceremony"
	"aegis/internal/passkey/models"
	"aegis/internal/passkey/service/mocks"
	"aegis/internal/passkey/store/pairing"
	"aegis/internal/ratelimit/service/requestlimit"
	"aegis/internal/ratelimit/store/bucket"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/requestcontext"
	"aegis/pkg/testutil"
)

type PairingServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	verifier  *mocks.MockAssertionVerifier
	registrar *mocks.MockRegistrar
	ledger    *mocks.MockLedger
	store     *pairing.InMemoryStore
	clock     *testutil.Clock
	service   *Service
}

func TestPairingServiceSuite(t *testing.T) {
	suite.Run(t, new(PairingServiceSuite))
}

func (s *PairingServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.verifier = mocks.NewMockAssertionVerifier(s.ctrl)
	s.registrar = mocks.NewMockRegistrar(s.ctrl)
	s.ledger = mocks.NewMockLedger(s.ctrl)
	s.store = pairing.NewInMemoryStore()
	s.clock = testutil.NewClock(time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC))

	limiter, err := requestlimit.New(bucket.NewInMemoryBucketStore())
	s.Require().NoError(err)
	svc, err := New(s.store, s.verifier, s.ledger, WithRateLimiter(limiter), WithRegistrar(s.registrar))
	s.Require().NoError(err)
	s.service = svc
}

func (s *PairingServiceSuite) ctx() context.Context {
	ctx := requestcontext.WithClientMetadata(context.Background(), "203.0.113.9", "test")
	return s.clock.Ctx(ctx)
}

func (s *PairingServiceSuite) authenticating() *models.Session {
	sess, err := s.service.CreateSession(s.ctx())
	s.Require().NoError(err)
	s.verifier.EXPECT().BeginAssertion(gomock.Any()).Return([]byte(`{"publicKey":{}}`), []byte(`{"challenge":"c"}`), nil)
	_, err = s.service.BeginAuthentication(s.ctx(), sess.ID)
	s.Require().NoError(err)
	return sess
}

func (s *PairingServiceSuite) TestCreateSession() {
	sess, err := s.service.CreateSession(s.ctx())
	s.Require().NoError(err)
	s.Len(sess.ID, 43, "32 bytes base64url")
	s.Equal(models.StatePending, sess.State)
	s.Equal(s.clock.Now().Add(2*time.Minute), sess.ExpiresAt)

	status, err := s.service.Status(s.ctx(), sess.ID)
	s.Require().NoError(err)
	s.Equal(models.StatePending, status.State)
}

func (s *PairingServiceSuite) TestCreateSessionIsRateLimitedPerIP() {
	for range 10 {
		_, err := s.service.CreateSession(s.ctx())
		s.Require().NoError(err)
	}
	_, err := s.service.CreateSession(s.ctx())
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))

	other := s.clock.Ctx(requestcontext.WithClientMetadata(context.Background(), "198.51.100.1", "test"))
	_, err = s.service.CreateSession(other)
	s.NoError(err)
}

func (s *PairingServiceSuite) TestBeginAuthenticationIsIdempotent() {
	sess := s.authenticating()

	opts, err := s.service.BeginAuthentication(s.ctx(), sess.ID)
	s.Require().NoError(err)
	s.JSONEq(`{"publicKey":{}}`, string(opts))

	status, _ := s.service.Status(s.ctx(), sess.ID)
	s.Equal(models.StateAuthenticating, status.State)
}

func (s *PairingServiceSuite) TestApprove() {
	sess := s.authenticating()
	s.verifier.EXPECT().VerifyAssertion(gomock.Any(), []byte(`{"challenge":"c"}`), []byte(`{"id":"a"}`)).Return("user-7", nil)
	s.ledger.EXPECT().
		RecordCriticalEvent(gomock.Any(), EventPairingApproved, "user-7", map[string]string{"session_id": sess.ID}).
		Return(&ledgerModels.CriticalEvent{}, nil)

	userID, err := s.service.Approve(s.ctx(), sess.ID, []byte(`{"id":"a"}`))
	s.Require().NoError(err)
	s.Equal("user-7", userID)

	status, err := s.service.Status(s.ctx(), sess.ID)
	s.Require().NoError(err)
	s.Equal(models.StateApproved, status.State)
	s.Equal("user-7", status.ResultUserID)

	s.Run("later terminal attempts are finalized", func() {
		err := s.service.Deny(s.ctx(), sess.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyFinalized))
		_, err = s.service.Approve(s.ctx(), sess.ID, []byte(`{"id":"a"}`))
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyFinalized))
		_, err = s.service.BeginAuthentication(s.ctx(), sess.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *PairingServiceSuite) TestApproveLedgerFailureKeepsSessionOpen() {
	sess := s.authenticating()
	s.verifier.EXPECT().VerifyAssertion(gomock.Any(), []byte(`{"challenge":"c"}`), gomock.Any()).Return("user-7", nil).Times(2)
	s.ledger.EXPECT().RecordCriticalEvent(gomock.Any(), EventPairingApproved, "user-7", gomock.Any()).
		Return(nil, errors.New("ledger down"))

	_, err := s.service.Approve(s.ctx(), sess.ID, []byte(`{"id":"a"}`))
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	status, err := s.service.Status(s.ctx(), sess.ID)
	s.Require().NoError(err)
	s.Equal(models.StateAuthenticating, status.State)
	s.Empty(status.ResultUserID, "device A never sees an unanchored approval")

	stored, err := s.store.Get(s.ctx(), sess.ID)
	s.Require().NoError(err)
	s.Equal(models.StateAuthenticating, stored.State)
	s.NotEmpty(stored.Ceremony)

	s.ledger.EXPECT().RecordCriticalEvent(gomock.Any(), EventPairingApproved, "user-7", gomock.Any()).
		Return(&ledgerModels.CriticalEvent{}, nil)
	userID, err := s.service.Approve(s.ctx(), sess.ID, []byte(`{"id":"a"}`))
	s.Require().NoError(err)
	s.Equal("user-7", userID)

	status, err = s.service.Status(s.ctx(), sess.ID)
	s.Require().NoError(err)
	s.Equal(models.StateApproved, status.State)
	s.Equal("user-7", status.ResultUserID)
}

func (s *PairingServiceSuite) TestUnanchoredApprovalIsHidden() {
	sess := s.authenticating()
	stored, err := s.store.Get(s.ctx(), sess.ID)
	s.Require().NoError(err)
	claimed := *stored
	claimed.State = models.StateApproved
	claimed.ResultUserID = "user-7"
	s.Require().NoError(s.store.Transition(s.ctx(), sess.ID, models.StateAuthenticating, &claimed))

	status, err := s.service.Status(s.ctx(), sess.ID)
	s.Require().NoError(err)
	s.Equal(models.StateAuthenticating, status.State)
	s.Empty(status.ResultUserID)

	s.True(dErrors.HasCode(s.service.Deny(s.ctx(), sess.ID), dErrors.CodeAlreadyFinalized))

	s.clock.Advance(2*time.Minute + time.Second)
	_, err = s.service.Status(s.ctx(), sess.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeExpired))
}

func (s *PairingServiceSuite) TestApproveRequiresAuthentication() {
	sess, err := s.service.CreateSession(s.ctx())
	s.Require().NoError(err)
	_, err = s.service.Approve(s.ctx(), sess.ID, []byte(`{}`))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *PairingServiceSuite) TestApproveRejectsBadAssertion() {
	sess := s.authenticating()
	s.verifier.EXPECT().VerifyAssertion(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", fmt.Errorf("%w: signature mismatch", ceremony.ErrInvalidAssertion))

	_, err := s.service.Approve(s.ctx(), sess.ID, []byte(`{"id":"a"}`))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidAssertion))

	status, _ := s.service.Status(s.ctx(), sess.ID)
	s.Equal(models.StateAuthenticating, status.State, "a failed assertion does not finalize")
}

func (s *PairingServiceSuite) TestApproveDenyRaceHasOneWinner() {
	sess := s.authenticating()
	s.verifier.EXPECT().VerifyAssertion(gomock.Any(), gomock.Any(), gomock.Any()).Return("user-7", nil).AnyTimes()
	s.ledger.EXPECT().RecordCriticalEvent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&ledgerModels.CriticalEvent{}, nil).MaxTimes(1)

	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		finalized atomic.Int32
	)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = s.service.Approve(s.ctx(), sess.ID, []byte(`{"id":"a"}`))
			} else {
				err = s.service.Deny(s.ctx(), sess.ID)
			}
			switch {
			case err == nil:
				wins.Add(1)
			case dErrors.HasCode(err, dErrors.CodeAlreadyFinalized):
				finalized.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
	s.Equal(int32(19), finalized.Load())
}

func (s *PairingServiceSuite) TestDenyFromPending() {
	sess, err := s.service.CreateSession(s.ctx())
	s.Require().NoError(err)
	s.Require().NoError(s.service.Deny(s.ctx(), sess.ID))

	status, err := s.service.Status(s.ctx(), sess.ID)
	s.Require().NoError(err)
	s.Equal(models.StateDenied, status.State)
	s.Empty(status.ResultUserID)
}

func (s *PairingServiceSuite) TestExpiry() {
	sess := s.authenticating()
	s.clock.Advance(2*time.Minute + time.Second)

	_, err := s.service.Status(s.ctx(), sess.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeExpired))

	stored, err := s.store.Get(s.ctx(), sess.ID)
	s.Require().NoError(err)
	s.Equal(models.StateExpired, stored.State, "expiry is persisted")

	_, err = s.service.Approve(s.ctx(), sess.ID, []byte(`{"id":"a"}`))
	s.True(dErrors.HasCode(err, dErrors.CodeExpired))
	s.True(dErrors.HasCode(s.service.Deny(s.ctx(), sess.ID), dErrors.CodeExpired))
}

func (s *PairingServiceSuite) TestUnknownSession() {
	_, err := s.service.Status(s.ctx(), "missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *PairingServiceSuite) TestRegistration() {
	s.registrar.EXPECT().BeginRegistration(gomock.Any(), "user-7", "user-7").
		Return([]byte(`{"publicKey":{"user":{}}}`), []byte(`{"challenge":"r"}`), nil)

	challenge, err := s.service.BeginRegistration(s.ctx(), "user-7")
	s.Require().NoError(err)
	s.Contains(challenge.ID, registrationPrefix)

	s.Run("not reachable as a pairing session", func() {
		_, err := s.service.Status(s.ctx(), challenge.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("other subject cannot finish", func() {
		_, err := s.service.FinishRegistration(s.ctx(), "user-8", challenge.ID, []byte(`{}`))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("finish stores and anchors", func() {
		s.registrar.EXPECT().FinishRegistration(gomock.Any(), "user-7", []byte(`{"challenge":"r"}`), []byte(`{"id":"new"}`)).
			Return(&models.Credential{SubjectID: "user-7", CredentialID: []byte{1, 2}}, nil)
		s.ledger.EXPECT().RecordCriticalEvent(gomock.Any(), EventPasskeyRegistered, "user-7", gomock.Any()).
			Return(&ledgerModels.CriticalEvent{}, nil)

		cred, err := s.service.FinishRegistration(s.ctx(), "user-7", challenge.ID, []byte(`{"id":"new"}`))
		s.Require().NoError(err)
		s.Equal([]byte{1, 2}, cred.CredentialID)
	})

	s.Run("single use", func() {
		_, err := s.service.FinishRegistration(s.ctx(), "user-7", challenge.ID, []byte(`{"id":"new"}`))
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyFinalized))
	})
}
