package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/ratelimit/models"
	"aegis/internal/ratelimit/service/requestlimit"
	"aegis/internal/ratelimit/store/bucket"
	"aegis/pkg/platform/guard"
	"aegis/pkg/requestcontext"
	"aegis/pkg/testutil"
)

type failingLimiter struct{}

func (failingLimiter) Evaluate(context.Context, models.Policy, string) (*models.RateLimitResult, error) {
	return nil, errors.New("redis down")
}

func serve(g guard.Guard, ip string) *httptest.ResponseRecorder {
	h := guard.New(g).WrapFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodPost, "/passkey/pair/start", nil)
	ctx := requestcontext.WithClientMetadata(req.Context(), ip, "test-agent/1.0")
	ctx = requestcontext.WithTime(ctx, time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req.WithContext(ctx))
	return rr
}

func TestRateLimitGuard(t *testing.T) {
	svc, err := requestlimit.New(bucket.NewInMemoryBucketStore())
	require.NoError(t, err)
	m := New(svc, nil)
	g := m.RateLimit(models.PolicyPairing, ByIP)

	for i := range 10 {
		rr := serve(g, "203.0.113.7")
		require.Equal(t, http.StatusNoContent, rr.Code, "request %d", i)
		assert.Equal(t, "10", rr.Header().Get("X-RateLimit-Limit"))
	}

	rr := serve(g, "203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	body := testutil.UnmarshalErrorResponse(t, rr)
	assert.Equal(t, "rate_limited", body["error"])
	assert.EqualValues(t, 60, body["retry_after"])

	t.Run("another client is unaffected", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, serve(g, "198.51.100.2").Code)
	})
}

func TestRateLimitGuardFailsClosedOnStoreError(t *testing.T) {
	g := New(failingLimiter{}, nil).RateLimit(models.PolicyPairing, ByIP)
	rr := serve(g, "203.0.113.7")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRateLimitGuardDisabled(t *testing.T) {
	g := New(failingLimiter{}, nil, WithDisabled(true)).RateLimit(models.PolicyPairing, ByIP)
	assert.Equal(t, http.StatusNoContent, serve(g, "203.0.113.7").Code)
}

func TestBySubjectOrIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), "10.0.0.1", ""))
	assert.Equal(t, "ip:10.0.0.1", BySubjectOrIP(req))

	req = testutil.WithSubject(req, "subj-9", "")
	assert.Equal(t, "subj-9", BySubjectOrIP(req))
}
