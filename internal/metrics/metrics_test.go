package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, r *Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestRegistryCounters(t *testing.T) {
	r := New()

	r.SymbolHit()
	r.SymbolHit()
	r.SymbolMiss()
	r.SymbolFailure()
	r.RecordDecision("proceed")
	r.RecordCacheRead("activity", "fresh")
	r.IncInFlight()
	r.RecordHTTPRequest("GET", "/activity", "200", 10*time.Millisecond)

	body := scrape(t, r)
	for _, want := range []string{
		`trustscope_symbol_lookups_total{outcome="hit"} 2`,
		`trustscope_symbol_lookups_total{outcome="miss"} 1`,
		`trustscope_symbol_lookups_total{outcome="failure"} 1`,
		`trustscope_reconcile_decisions_total{decision="proceed"} 1`,
		`trustscope_cache_reads_total{key="activity",state="fresh"} 1`,
		`trustscope_http_requests_total{method="GET",path="/activity",status="200"} 1`,
		`trustscope_http_inflight_requests 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
