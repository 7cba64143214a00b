package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/webrag/internal/core/domain"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestCrawlMetricsRecordsOutcomes(t *testing.T) {
	m := NewCrawlMetrics()

	m.StartPage()
	m.ObserveStage("fetch", 20*time.Millisecond)
	m.ObserveFetchAttempt("ok")
	m.ObserveFetchAttempt("Timeout")
	m.FinishPage(domain.PageOutcome{Status: domain.PageIndexed, Indexed: 4, Skipped: 2, Duration: time.Second})

	m.StartPage()
	m.FinishPage(domain.PageOutcome{Status: domain.PageSkipped, ErrorKind: domain.KindPolicyDenied})

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`webrag_crawl_pages_total{error_kind="",status="indexed"} 1`,
		`webrag_crawl_pages_total{error_kind="PolicyDenied",status="skipped"} 1`,
		`webrag_index_chunks_total{result="indexed"} 4`,
		`webrag_index_chunks_total{result="skipped"} 2`,
		`webrag_fetch_attempts_total{outcome="Timeout"} 1`,
		`webrag_crawl_pages_in_flight 0`,
		`webrag_crawl_stage_duration_seconds_count{stage="fetch"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	m := NewHTTPServerMetrics("webrag")
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/search", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := m.Middleware("webrag", mux)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/search?q=x", nil))
	m.RecordSearch("webrag", "http", 0, time.Millisecond)

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`webrag_http_requests_total{method="GET",path="GET /v1/search",service="webrag",status="418"} 1`,
		`webrag_search_requests_total{endpoint="http",result="miss",service="webrag"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}
