package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveBuild("succeeded", time.Second)
	m.ObserveBatch(time.Millisecond)
	m.SetIndex(1, 2, 3)
	m.ObserveSearch("hit", "miss", time.Millisecond, 4)
	m.CacheHit()
	m.CacheMiss()
}

func TestObserveBuild(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveBuild("succeeded", 2*time.Second)
	m.ObserveBuild("cancelled", time.Second)
	m.ObserveBuild("cancelled", time.Second)

	if got := testutil.ToFloat64(m.IndexBuildsTotal.WithLabelValues("succeeded")); got != 1 {
		t.Errorf("succeeded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.IndexBuildsTotal.WithLabelValues("cancelled")); got != 2 {
		t.Errorf("cancelled = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(m.IndexBuildDuration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestSetIndexAndSearch(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetIndex(10, 42, 3)
	m.ObserveSearch("zero_result", "bypass", time.Millisecond, 0)
	m.CacheHit()

	if got := testutil.ToFloat64(m.IndexEntries); got != 42 {
		t.Errorf("index_entries = %v", got)
	}
	if got := testutil.ToFloat64(m.IndexGeneration); got != 3 {
		t.Errorf("index_generation = %v", got)
	}
	if got := testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("zero_result")); got != 1 {
		t.Errorf("zero_result = %v", got)
	}
	if got := testutil.ToFloat64(m.CacheHitsTotal); got != 1 {
		t.Errorf("cache hits = %v", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SetIndex(5, 5, 1)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "index_documents 5") {
		t.Errorf("scrape output missing index_documents:\n%s", rec.Body.String())
	}
}
