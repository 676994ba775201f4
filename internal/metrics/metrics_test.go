package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.StoreQuery("hourly")
	m.CacheHit()
	m.GeneratorResult("eui", "ok")
	m.ObserveKPI("building", time.Second)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.StoreQuery("daily")
	m.StoreQuery("daily")
	m.CacheMiss()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `kpi_store_queries_total{resolution="daily"} 2`) {
		t.Errorf("Expected store query counter in output:\n%s", body)
	}
	if !strings.Contains(body, "kpi_cache_misses_total 1") {
		t.Errorf("Expected cache miss counter in output:\n%s", body)
	}
}
