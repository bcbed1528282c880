package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks IncidentRaiser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	incidentModels "aegis/internal/incident/models"
	rlModels "aegis/internal/ratelimit/models"
	"aegis/internal/suspicious/history"
	"aegis/internal/suspicious/models"
	"aegis/internal/suspicious/officehours"
	"aegis/internal/suspicious/service/mocks"
	dErrors "aegis/pkg/domain-errors"
	"aegis/pkg/testutil"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

type SuspiciousServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	incidents *mocks.MockIncidentRaiser
	history   *history.InMemoryStore
	clock     *testutil.Clock
	service   *Service
}

func TestSuspiciousServiceSuite(t *testing.T) {
	suite.Run(t, new(SuspiciousServiceSuite))
}

func (s *SuspiciousServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.incidents = mocks.NewMockIncidentRaiser(s.ctrl)
	s.history = history.NewInMemoryStore()
	// Monday 10:00 UTC.
	s.clock = testutil.NewClock(time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC))

	holiday := models.NewSchedule("HQ", time.UTC, weeklyNineToFive(), map[string]models.Window{"2024-06-03": {}})
	svc, err := New(officehours.NewMemoryStore(holiday), s.history, WithIncidentRaiser(s.incidents))
	s.Require().NoError(err)
	s.service = svc
}

func weeklyNineToFive() [7]models.Window {
	var w [7]models.Window
	for d := time.Monday; d <= time.Friday; d++ {
		w[d] = models.Window{Working: true, Start: 9 * time.Hour, End: 17 * time.Hour}
	}
	return w
}

func (s *SuspiciousServiceSuite) fail(n int) {
	ctx := context.Background()
	for range n {
		s.Require().NoError(s.service.RecordFailure(ctx, "user-1", "login", s.clock.Now()))
		s.clock.Advance(time.Minute)
	}
}

func (s *SuspiciousServiceSuite) TestQuietActivityRaisesNothing() {
	a, err := s.service.Assess(s.clock.Ctx(context.Background()), models.AssessRequest{SubjectID: "user-1", UserAgent: browserUA})
	s.Require().NoError(err)
	s.False(a.Suspicious)
	s.False(a.OutsideOfficeHours)
}

func (s *SuspiciousServiceSuite) TestRapidFailuresRaiseMediumIncident() {
	s.fail(3)
	s.incidents.EXPECT().Raise(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req incidentModels.RaiseRequest) (*incidentModels.Incident, error) {
			s.Equal(incidentModels.SeverityMedium, req.Severity)
			s.Equal(incidentModels.VerificationSuspicious, req.VerificationStatus)
			s.Equal([]string{"user-1"}, req.AffectedSubjectIDs)
			return &incidentModels.Incident{ID: "inc-1"}, nil
		})

	a, err := s.service.Assess(s.clock.Ctx(context.Background()), models.AssessRequest{SubjectID: "user-1", UserAgent: browserUA})
	s.Require().NoError(err)
	s.True(a.Suspicious)
	s.Contains(a.Reasons, models.ReasonRapidAttempts)
	s.Equal("inc-1", a.IncidentID)
}

func (s *SuspiciousServiceSuite) TestViolationsCountForTheLimitedIdentity() {
	ctx := context.Background()
	for range 3 {
		s.Require().NoError(s.service.RecordViolation(ctx, "User-1", rlModels.PolicyVerification, s.clock.Now()))
	}
	s.incidents.EXPECT().Raise(gomock.Any(), gomock.Any()).Return(&incidentModels.Incident{ID: "inc-2"}, nil)

	a, err := s.service.Assess(s.clock.Ctx(ctx), models.AssessRequest{SubjectID: "user-1", UserAgent: browserUA})
	s.Require().NoError(err)
	s.Equal([]string{models.ReasonRepeatedViolations}, a.Reasons)
}

func (s *SuspiciousServiceSuite) TestOfficeExceptionMakesDayOutsideHours() {
	s.fail(1)
	s.incidents.EXPECT().Raise(gomock.Any(), gomock.Any()).Return(&incidentModels.Incident{ID: "inc-3"}, nil)

	a, err := s.service.Assess(s.clock.Ctx(context.Background()), models.AssessRequest{SubjectID: "user-1", Office: "HQ", UserAgent: browserUA})
	s.Require().NoError(err)
	s.True(a.OutsideOfficeHours)
	s.Equal([]string{models.ReasonOutsideHours}, a.Reasons)
}

func (s *SuspiciousServiceSuite) TestUnknownOfficeUsesDefaultHours() {
	a, err := s.service.Assess(s.clock.Ctx(context.Background()), models.AssessRequest{SubjectID: "user-1", Office: "BRANCH", UserAgent: browserUA})
	s.Require().NoError(err)
	s.False(a.OutsideOfficeHours)
}

func (s *SuspiciousServiceSuite) TestUserAgentSignal() {
	for _, ua := range []string{"", "curl/8", "Googlebot/2.1 (+http://www.google.com/bot.html)"} {
		s.Run(ua, func() {
			s.incidents.EXPECT().Raise(gomock.Any(), gomock.Any()).Return(&incidentModels.Incident{ID: "inc-ua"}, nil)
			a, err := s.service.Assess(s.clock.Ctx(context.Background()), models.AssessRequest{SubjectID: "user-1", UserAgent: ua})
			s.Require().NoError(err)
			s.Equal([]string{models.ReasonSuspiciousAgent}, a.Reasons)
		})
	}
}

func (s *SuspiciousServiceSuite) TestRaiseFailureIsAdvisory() {
	s.fail(3)
	s.incidents.EXPECT().Raise(gomock.Any(), gomock.Any()).Return(nil, errors.New("ledger down"))

	a, err := s.service.Assess(s.clock.Ctx(context.Background()), models.AssessRequest{SubjectID: "user-1", UserAgent: browserUA})
	s.Require().NoError(err)
	s.True(a.Suspicious)
	s.Empty(a.IncidentID)
}

func (s *SuspiciousServiceSuite) TestExplicitTimestamp() {
	night := time.Date(2024, 6, 4, 22, 0, 0, 0, time.UTC)
	a, err := s.service.Assess(context.Background(), models.AssessRequest{SubjectID: "user-1", At: night, UserAgent: browserUA})
	s.Require().NoError(err)
	s.True(a.OutsideOfficeHours)
	s.False(a.Suspicious)
}

func (s *SuspiciousServiceSuite) TestSubjectRequired() {
	_, err := s.service.Assess(context.Background(), models.AssessRequest{})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
