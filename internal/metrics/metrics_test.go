package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scenegen/internal/metrics"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *metrics.Metrics
	m.IncJobsSubmitted()
	m.ObserveJobOutcome("completed")
	m.SetQueueDepth(3)
	m.ObserveAttempt("passed")
	m.ObserveShotScore(0.7)
	m.IncScorerFallback()
	m.ObserveAssembly("degraded")
	m.SetActiveScenes(1)
}

func TestHandlerServesRecordedValues(t *testing.T) {
	m := metrics.New()
	m.IncJobsSubmitted()
	m.IncJobsSubmitted()
	m.ObserveJobOutcome("timeout")
	m.IncScorerFallback()

	refreshed := false
	srv := httptest.NewServer(m.Handler(func() {
		refreshed = true
		m.SetActiveScenes(2)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	if !refreshed {
		t.Fatal("expected gauges to refresh before scrape")
	}
	for _, want := range []string{
		"scenegen_jobs_submitted_total 2",
		`scenegen_job_outcomes_total{outcome="timeout"} 1`,
		"scenegen_scorer_fallbacks_total 1",
		"scenegen_active_scenes 2",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, text)
		}
	}
}

func TestRequestMiddlewareCountsErrors(t *testing.T) {
	m := metrics.New()
	handler := metrics.RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/ok", "/bad", "/ok"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	text := gatherText(t, m)
	if !strings.Contains(text, "scenegen_http_errors_total 1") {
		t.Fatalf("expected one error recorded:\n%s", text)
	}
	if !strings.Contains(text, "scenegen_http_requests_total 3") {
		t.Fatalf("expected three requests recorded:\n%s", text)
	}
}

func gatherText(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}
