package requestlimit

//go:generate mockgen -source=../../ports/ports.go -destination=mocks/mocks.go -package=mocks ViolationRecorder

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"aegis/internal/ratelimit/metrics"
	"aegis/internal/ratelimit/models"
	"aegis/internal/ratelimit/service/requestlimit/mocks"
	"aegis/internal/ratelimit/store/bucket"
	dErrors "aegis/pkg/domain-errors"
	clock "aegis/pkg/testutil"
)

type RequestLimitServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	violations *mocks.MockViolationRecorder
	metrics    *metrics.Metrics
	clock      *clock.Clock
	service    *Service
}

func TestRequestLimitServiceSuite(t *testing.T) {
	suite.Run(t, new(RequestLimitServiceSuite))
}

func (s *RequestLimitServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.violations = mocks.NewMockViolationRecorder(s.ctrl)
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.clock = clock.NewClock(time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC))

	svc, err := New(bucket.NewInMemoryBucketStore(),
		WithViolationRecorder(s.violations),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *RequestLimitServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *RequestLimitServiceSuite) TestNewRequiresBuckets() {
	_, err := New(nil)
	s.Error(err)
}

func (s *RequestLimitServiceSuite) TestVerificationPolicy() {
	ctx := s.clock.Ctx(context.Background())

	for range 5 {
		s.Require().NoError(s.service.Check(ctx, models.PolicyVerification, "subject-1"))
	}

	s.violations.EXPECT().
		RecordViolation(gomock.Any(), "subject-1", models.PolicyVerification, s.clock.Now()).
		Return(nil)

	err := s.service.Check(ctx, models.PolicyVerification, "subject-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	retry, ok := dErrors.RetryAfter(err)
	s.True(ok)
	s.Equal(15*time.Minute, retry)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.RateLimitDenied.WithLabelValues("verification")))

	s.Run("window resets after the policy duration", func() {
		s.clock.Advance(15*time.Minute + time.Second)
		s.NoError(s.service.Check(s.clock.Ctx(context.Background()), models.PolicyVerification, "subject-1"))
	})
}

func (s *RequestLimitServiceSuite) TestIdentitiesAreNormalized() {
	ctx := s.clock.Ctx(context.Background())
	for range 3 {
		s.Require().NoError(s.service.Check(ctx, models.PolicyPasswordChange, "Jane@Example.com"))
	}
	s.violations.EXPECT().RecordViolation(gomock.Any(), gomock.Any(), models.PolicyPasswordChange, gomock.Any()).Return(nil)

	err := s.service.Check(ctx, models.PolicyPasswordChange, " jane@example.com")
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
}

func (s *RequestLimitServiceSuite) TestUnknownPolicyIsDenied() {
	err := s.service.Check(context.Background(), models.Policy("bogus"), "x")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *RequestLimitServiceSuite) TestResetClearsBucket() {
	ctx := s.clock.Ctx(context.Background())
	for range 3 {
		s.Require().NoError(s.service.Check(ctx, models.PolicyPasswordChange, "subj"))
	}
	s.Require().NoError(s.service.Reset(ctx, models.PolicyPasswordChange, "subj"))
	s.NoError(s.service.Check(ctx, models.PolicyPasswordChange, "subj"))
}

func (s *RequestLimitServiceSuite) TestAllowValidatesArguments() {
	_, err := s.service.Allow(context.Background(), "", 1, time.Second)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.service.Allow(context.Background(), "k", 0, time.Second)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *RequestLimitServiceSuite) TestConcurrentChecksAdmitExactlyLimit() {
	ctx := s.clock.Ctx(context.Background())
	s.violations.EXPECT().RecordViolation(gomock.Any(), "burst", models.PolicyProfileUpdate, gomock.Any()).Return(nil).Times(40)

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.service.Check(ctx, models.PolicyProfileUpdate, "burst"); err == nil {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(10), allowed.Load())
}
