package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"aegis/internal/ledger/models"
	"aegis/internal/ledger/service"
	"aegis/internal/ledger/store"
	"aegis/pkg/requestcontext"
	"aegis/pkg/testutil"
)

type LedgerHandlerSuite struct {
	suite.Suite
	router chi.Router
}

func TestLedgerHandlerSuite(t *testing.T) {
	suite.Run(t, new(LedgerHandlerSuite))
}

func (s *LedgerHandlerSuite) SetupTest() {
	svc, err := service.New(store.NewInMemoryStore())
	s.Require().NoError(err)

	pinClock := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	r := chi.NewRouter()
	r.Use(pinClock)
	New(svc, nil).Register(r)
	s.router = r
}

func (s *LedgerHandlerSuite) TestRecordAndVerifyHash() {
	h := models.Sum([]byte("doc")).String()

	s.Run("unknown hash reports absent with zero timestamp", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/audit/hash/"+h))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		body := *testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.Equal(false, body["exists"])
		s.Equal(float64(0), body["timestamp"])
	})

	s.Run("record then verify", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/audit/hash",
			map[string]string{"hash": h, "eventType": "document_upload"}))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)

		rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/audit/hash/"+h))
		body := *testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.Equal(true, body["exists"])
		s.Equal(float64(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC).UnixMilli()), body["timestamp"])
	})

	s.Run("duplicate returns 409", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/audit/hash",
			map[string]string{"hash": h, "eventType": "document_upload"}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "duplicate_hash")
	})

	s.Run("malformed hash returns 400", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/audit/hash/nothex"))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *LedgerHandlerSuite) TestApprovalRequiresAuthenticatedApprover() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/audit/approvals",
		map[string]any{"approvalId": "a1", "eventType": "override", "subjectId": "s", "approved": true}))
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)

	req := testutil.WithSubject(testutil.NewJSONRequest(s.T(), http.MethodPost, "/audit/approvals",
		map[string]any{"approvalId": "a1", "eventType": "override", "subjectId": "s", "approved": true}), "admin-7", requestcontext.RoleAdmin)
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	testutil.AssertJSONContains(s.T(), rr, "approver_id", "admin-7")

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/audit/counts"))
	testutil.AssertJSONContains(s.T(), rr, "approvals", float64(1))
}

func (s *LedgerHandlerSuite) TestCriticalEventRoundTrip() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/audit/critical-events",
		map[string]any{"eventType": "account_deleted", "subjectId": "s-1", "details": map[string]string{"reason": "request"}}))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	created := testutil.UnmarshalResponse[models.CriticalEvent](s.T(), rr)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/audit/critical-events/"+created.ID))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	testutil.AssertJSONContains(s.T(), rr, "subject_id", "s-1")

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/audit/chain/verify"))
	testutil.AssertJSONContains(s.T(), rr, "valid", true)
}
