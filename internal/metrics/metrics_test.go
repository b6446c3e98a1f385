package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.Optimize(OutcomeSuccess, 120*time.Millisecond)
	m.Optimize(OutcomeRejected, 0)
	m.Optimize(OutcomeSuccess, 80*time.Millisecond)
	m.Invalidated()
	m.Persisted("written")

	if got := testutil.ToFloat64(m.optimizeTotal.WithLabelValues(OutcomeSuccess)); got != 2 {
		t.Errorf("success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.invalidations); got != 1 {
		t.Errorf("invalidations = %v, want 1", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.Optimize(OutcomeSuccess, time.Second)
	m.Invalidated()
	m.Persisted("failed")
	m.SessionsOpen(3)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Invalidated()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "basket_cache_invalidations_total 1") {
		t.Error("exposition missing invalidation counter")
	}
}
