package httpapi

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"aegis/internal/platform/metrics"
	"aegis/pkg/platform/httputil"
	"aegis/pkg/platform/middleware/request"
	"aegis/pkg/requestcontext"
	"aegis/pkg/testutil"
)

type echoModule struct{}

func (echoModule) Register(r chi.Router) {
	r.Get("/echo", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"request_id": requestcontext.RequestID(r.Context()),
		})
	})
}

func TestRouterMountsModules(t *testing.T) {
	reg := prometheus.NewRegistry()
	router := NewRouter(Config{Metrics: metrics.NewWithRegisterer(reg), Gatherer: reg}, echoModule{})

	req := testutil.NewRequest(t, http.MethodGet, "/echo")
	req.Header.Set(request.HeaderRequestID, "req-1")
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertJSONContains(t, rr, "request_id", "req-1")
	assert.Equal(t, "req-1", rr.Header().Get(request.HeaderRequestID))

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Body.String(), "aegis_http_requests_total")
}

func TestHealthz(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		router := NewRouter(Config{HealthChecks: map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
		}})
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
		testutil.AssertStatus(t, rr, http.StatusOK)
		testutil.AssertJSONContains(t, rr, "status", "ok")
	})

	t.Run("a failing check degrades", func(t *testing.T) {
		router := NewRouter(Config{HealthChecks: map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		}})
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
		body := *testutil.UnmarshalResponse[healthResponse](t, rr)
		assert.Equal(t, "degraded", body.Status)
		assert.Equal(t, "connection refused", body.Checks["redis"])
	})
}
