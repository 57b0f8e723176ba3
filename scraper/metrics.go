package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry            *prometheus.Registry
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     prometheus.Histogram
	ProductsTotal       prometheus.Counter
	RecordFailuresTotal *prometheus.CounterVec
	RetriesTotal        prometheus.Counter
	ErrorsTotal         *prometheus.CounterVec
	CacheHitsTotal      prometheus.Counter
	SectionsTotal       *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	products := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_products_written_total",
			Help: "Total number of product rows written to section outputs.",
		},
	)
	recordFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_record_failures_total",
			Help: "Product cards that failed extraction, by kind.",
		},
		[]string{"kind"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_cache_hits_total",
			Help: "Pages served from the response cache.",
		},
	)
	sections := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_sections_total",
			Help: "Sections processed, by outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(requests, requestDuration, products, recordFailures, retries, errorsTotal, cacheHits, sections)

	return &Metrics{
		Registry:            registry,
		RequestsTotal:       requests,
		RequestDuration:     requestDuration,
		ProductsTotal:       products,
		RecordFailuresTotal: recordFailures,
		RetriesTotal:        retries,
		ErrorsTotal:         errorsTotal,
		CacheHitsTotal:      cacheHits,
		SectionsTotal:       sections,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddProducts adds n written products.
func (m *Metrics) AddProducts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ProductsTotal.Add(float64(n))
}

// IncRecordFailure counts one failed card.
func (m *Metrics) IncRecordFailure(kind string) {
	if m == nil {
		return
	}
	m.RecordFailuresTotal.WithLabelValues(kind).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCacheHit counts a page served from cache.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// IncSection counts a finished section.
func (m *Metrics) IncSection(outcome string) {
	if m == nil {
		return
	}
	m.SectionsTotal.WithLabelValues(outcome).Inc()
}
