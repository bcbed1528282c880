package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"aegis/internal/suspicious/history"
	"aegis/internal/suspicious/models"
	"aegis/internal/suspicious/officehours"
	"aegis/internal/suspicious/service"
	"aegis/pkg/testutil"
)

type AssessHandlerSuite struct {
	suite.Suite
	router  chi.Router
	history *history.InMemoryStore
}

func TestAssessHandlerSuite(t *testing.T) {
	suite.Run(t, new(AssessHandlerSuite))
}

func (s *AssessHandlerSuite) SetupTest() {
	s.history = history.NewInMemoryStore()
	svc, err := service.New(officehours.NewMemoryStore(), s.history)
	s.Require().NoError(err)
	r := chi.NewRouter()
	New(svc, nil).Register(r)
	s.router = r
}

func (s *AssessHandlerSuite) TestAssess() {
	at := time.Date(2024, 6, 3, 23, 0, 0, 0, time.UTC)
	s.Require().NoError(s.history.AddFailure(s.T().Context(), "user-1", at.Add(-time.Minute)))

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/activity/assess", map[string]any{
		"subjectId": "user-1",
		"at":        at,
	})
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Firefox/126.0")
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	body := *testutil.UnmarshalResponse[models.Assessment](s.T(), rr)
	s.True(body.OutsideOfficeHours)
	s.True(body.Suspicious)
	s.Equal([]string{models.ReasonOutsideHours}, body.Reasons)
}

func (s *AssessHandlerSuite) TestExplicitUserAgentOverridesHeader() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/activity/assess", map[string]any{
		"subjectId": "user-1",
		"at":        time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
		"userAgent": "",
	}))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	body := *testutil.UnmarshalResponse[models.Assessment](s.T(), rr)
	s.Equal([]string{models.ReasonSuspiciousAgent}, body.Reasons)
}

func (s *AssessHandlerSuite) TestMissingSubject() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/activity/assess", map[string]any{}))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}
