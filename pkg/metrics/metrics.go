package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements Observer with Prometheus collectors on a private registry.
type Metrics struct {
	registry       *prometheus.Registry
	attempts       *prometheus.CounterVec
	attemptSeconds *prometheus.HistogramVec
	bytesSent      prometheus.Counter
	splits         prometheus.Counter
	batches        *prometheus.CounterVec
	records        *prometheus.CounterVec
	persisted      *prometheus.CounterVec
	persistErrors  prometheus.Counter
}

// New creates Metrics and registers its collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkship_attempts_total",
		Help: "Transmission attempts by outcome and HTTP status",
	}, []string{"outcome", "status"})

	attemptSeconds := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bulkship_attempt_duration_seconds",
		Help:    "Duration of a single transmission attempt",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	bytesSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bulkship_attempt_bytes_total",
		Help: "Compressed bytes submitted across all attempts",
	})

	splits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bulkship_splits_total",
		Help: "Batches split because they encoded too large",
	})

	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkship_batches_total",
		Help: "Batches that reached a terminal state, by outcome",
	}, []string{"outcome"})

	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkship_records_total",
		Help: "Records in batches that reached a terminal state, by outcome",
	}, []string{"outcome"})

	persisted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkship_failures_persisted_total",
		Help: "Batches written to the failure log, by reason",
	}, []string{"reason"})

	persistErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bulkship_failure_persist_errors_total",
		Help: "Failure log writes that did not succeed",
	})

	reg.MustRegister(attempts, attemptSeconds, bytesSent, splits, batches, records, persisted, persistErrors)

	return &Metrics{
		registry:       reg,
		attempts:       attempts,
		attemptSeconds: attemptSeconds,
		bytesSent:      bytesSent,
		splits:         splits,
		batches:        batches,
		records:        records,
		persisted:      persisted,
		persistErrors:  persistErrors,
	}
}

func (m *Metrics) RecordAttempt(outcome string, status int, bytes int, elapsed time.Duration) {
	code := "none"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.attempts.WithLabelValues(outcome, code).Inc()
	m.attemptSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
	m.bytesSent.Add(float64(bytes))
}

func (m *Metrics) RecordSplit() {
	m.splits.Inc()
}

func (m *Metrics) RecordBatch(outcome string, records int) {
	m.batches.WithLabelValues(outcome).Inc()
	m.records.WithLabelValues(outcome).Add(float64(records))
}

func (m *Metrics) RecordPersisted(reason string) {
	m.persisted.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordPersistError() {
	m.persistErrors.Inc()
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
