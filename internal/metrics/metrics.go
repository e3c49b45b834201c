// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the HTTP layer and the services report to.
type Recorder interface {
	ObserveGeneration(kind string, outcome string, elapsed time.Duration)
	RecordHTTPStatus(route string, statusCode int)
	WatchStarted()
	WatchEnded()
}

type Collector struct {
	generations       *prometheus.CounterVec
	generationLatency *prometheus.HistogramVec
	httpStatus        *prometheus.CounterVec
	activeWatches     prometheus.Gauge
}

var _ Recorder = (*Collector)(nil)

// NewCollector registers every metric with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "astrologer_generations_total",
			Help: "LLM generations by kind (prediction, reply) and outcome (ok, invalid, error).",
		}, []string{"kind", "outcome"}),
		generationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "astrologer_generation_latency_seconds",
			Help:    "Latency of LLM generations in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "astrologer_http_status_total",
			Help: "HTTP responses by route pattern and status code.",
		}, []string{"route", "status_code"}),
		activeWatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "astrologer_active_watches",
			Help: "Open live-update streams.",
		}),
	}

	reg.MustRegister(
		c.generations,
		c.generationLatency,
		c.httpStatus,
		c.activeWatches,
	)
	return c
}

func (c *Collector) ObserveGeneration(kind, outcome string, elapsed time.Duration) {
	c.generations.WithLabelValues(kind, outcome).Inc()
	c.generationLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (c *Collector) RecordHTTPStatus(route string, statusCode int) {
	c.httpStatus.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
}

func (c *Collector) WatchStarted() { c.activeWatches.Inc() }

func (c *Collector) WatchEnded() { c.activeWatches.Dec() }

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveGeneration(string, string, time.Duration) {}
func (Nop) RecordHTTPStatus(string, int)                    {}
func (Nop) WatchStarted()                                   {}
func (Nop) WatchEnded()                                     {}

// Handler serves the registry for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
