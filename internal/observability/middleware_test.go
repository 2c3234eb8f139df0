package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/hostkernel/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func newTestRouter(logger zerolog.Logger, m *Metrics) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(logger), RequestMetricsMiddleware(m))
	r.GET("/items/:id", func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("handler saw request logger")
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequestLoggerTagsRequests(t *testing.T) {
	logger, logs := testlog.Capture(t)
	r := newTestRouter(logger, NewMetrics("mw-test"))

	req := httptest.NewRequest(http.MethodGet, "/items/7", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Header().Get(RequestIDHeader) != "req-1" {
		t.Fatalf("request id not echoed: %q", rr.Header().Get(RequestIDHeader))
	}
	if logs.Count(`"request_id":"req-1"`) != 2 {
		t.Fatalf("expected handler and access logs tagged with request id:\n%s", logs.String())
	}
	if logs.Count(`"route":"/items/:id"`) != 1 {
		t.Fatalf("expected route template in access log:\n%s", logs.String())
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
	if logs.Count(`"level":"warn"`) != 1 || logs.Count(`"route":"unmatched"`) != 1 {
		t.Fatalf("expected one warn for unmatched route:\n%s", logs.String())
	}
}

func TestRequestMetricsUseRouteTemplate(t *testing.T) {
	testlog.Start(t)
	m := NewMetrics("mw-test")
	r := newTestRouter(zerolog.Nop(), m)
	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
	}

	families, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if !strings.HasSuffix(fam.GetName(), "http_requests_total") {
			continue
		}
		if len(fam.GetMetric()) != 1 || fam.GetMetric()[0].GetCounter().GetValue() != 3 {
			t.Fatalf("expected one series with 3 requests, got %v", fam.GetMetric())
		}
		return
	}
	t.Fatalf("http_requests_total not gathered")
}
