package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for the KPI service. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	storeQueries     *prometheus.CounterVec
	storeErrors      prometheus.Counter
	fallbackHops     *prometheus.CounterVec
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	kpiDuration      *prometheus.HistogramVec
	generatorResults *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
}

// New creates and registers the collectors on reg
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		storeQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kpi_store_queries_total",
			Help: "Measurement store queries by resolution tier.",
		}, []string{"resolution"}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kpi_store_errors_total",
			Help: "Measurement store queries that failed.",
		}),
		fallbackHops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kpi_fallback_hops_total",
			Help: "Retries at a non-preferred resolution by target tier.",
		}, []string{"resolution"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kpi_cache_hits_total",
			Help: "KPI cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kpi_cache_misses_total",
			Help: "KPI cache misses.",
		}),
		kpiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kpi_computation_duration_seconds",
			Help:    "Time to compute KPIs by entity kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		generatorResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kpi_generator_results_total",
			Help: "Derived analytics generator outcomes.",
		}, []string{"generator", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kpi_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
	}

	reg.MustRegister(
		m.storeQueries,
		m.storeErrors,
		m.fallbackHops,
		m.cacheHits,
		m.cacheMisses,
		m.kpiDuration,
		m.generatorResults,
		m.httpRequests,
	)
	return m
}

func (m *Metrics) StoreQuery(resolution string) {
	if m == nil {
		return
	}
	m.storeQueries.WithLabelValues(resolution).Inc()
}

func (m *Metrics) StoreError() {
	if m == nil {
		return
	}
	m.storeErrors.Inc()
}

func (m *Metrics) FallbackHop(resolution string) {
	if m == nil {
		return
	}
	m.fallbackHops.WithLabelValues(resolution).Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *Metrics) ObserveKPI(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.kpiDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// GeneratorResult records outcome "ok", "failed" or "timeout"
func (m *Metrics) GeneratorResult(generator, outcome string) {
	if m == nil {
		return
	}
	m.generatorResults.WithLabelValues(generator, outcome).Inc()
}

func (m *Metrics) HTTPRequest(route, status string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, status).Inc()
}

// Handler exposes the registry for scraping
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
