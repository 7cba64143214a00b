package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/webrag/internal/core/domain"
)

type CrawlMetrics struct {
	registry *prometheus.Registry

	pagesTotal    *prometheus.CounterVec
	pageDuration  *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	chunksTotal   *prometheus.CounterVec
	fetchAttempts *prometheus.CounterVec
	pagesInFlight prometheus.Gauge
}

func NewCrawlMetrics() *CrawlMetrics {
	registry := prometheus.NewRegistry()

	pagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webrag",
			Subsystem: "crawl",
			Name:      "pages_total",
			Help:      "Total processed pages by status and error kind.",
		},
		[]string{"status", "error_kind"},
	)
	pageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "webrag",
			Subsystem: "crawl",
			Name:      "page_duration_seconds",
			Help:      "End-to-end page processing duration in seconds by status.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "webrag",
			Subsystem: "crawl",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	chunksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webrag",
			Subsystem: "index",
			Name:      "chunks_total",
			Help:      "Chunks seen by the indexer, split into indexed and skipped.",
		},
		[]string{"result"},
	)
	fetchAttempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webrag",
			Subsystem: "fetch",
			Name:      "attempts_total",
			Help:      "HTTP fetch attempts including retries, by outcome.",
		},
		[]string{"outcome"},
	)
	pagesInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "webrag",
			Subsystem: "crawl",
			Name:      "pages_in_flight",
			Help:      "Number of pages currently in the pipeline.",
		},
	)

	registry.MustRegister(pagesTotal, pageDuration, stageDuration, chunksTotal, fetchAttempts, pagesInFlight)

	return &CrawlMetrics{
		registry:      registry,
		pagesTotal:    pagesTotal,
		pageDuration:  pageDuration,
		stageDuration: stageDuration,
		chunksTotal:   chunksTotal,
		fetchAttempts: fetchAttempts,
		pagesInFlight: pagesInFlight,
	}
}

func (m *CrawlMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *CrawlMetrics) StartPage() {
	m.pagesInFlight.Inc()
}

func (m *CrawlMetrics) FinishPage(outcome domain.PageOutcome) {
	m.pagesInFlight.Dec()

	status := string(outcome.Status)
	if status == "" {
		status = "unknown"
	}
	m.pagesTotal.WithLabelValues(status, string(outcome.ErrorKind)).Inc()
	m.pageDuration.WithLabelValues(status).Observe(outcome.Duration.Seconds())
	if outcome.Indexed > 0 {
		m.chunksTotal.WithLabelValues("indexed").Add(float64(outcome.Indexed))
	}
	if outcome.Skipped > 0 {
		m.chunksTotal.WithLabelValues("skipped").Add(float64(outcome.Skipped))
	}
}

func (m *CrawlMetrics) ObserveStage(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func (m *CrawlMetrics) ObserveFetchAttempt(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.fetchAttempts.WithLabelValues(outcome).Inc()
}
