package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	requestsTotal         *prometheus.CounterVec
	latencySeconds        *prometheus.HistogramVec
	errorsTotal           *prometheus.CounterVec
	transitionsTotal      *prometheus.CounterVec
	staleConflictsTotal   *prometheus.CounterVec
	eventsPublishedTotal  *prometheus.CounterVec
	feedClientsActive     prometheus.Gauge
	documentRejectedTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the engine.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supervision_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		latencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "supervision_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supervision_errors_total",
			Help: "Total number of error responses returned.",
		}, []string{"method", "route", "status"})

		transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supervision_transitions_total",
			Help: "Lifecycle transitions attempted, by operation and outcome.",
		}, []string{"operation", "outcome"})

		staleConflictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supervision_stale_conflicts_total",
			Help: "Conditional writes lost to a concurrent winner.",
		}, []string{"operation"})

		eventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supervision_events_published_total",
			Help: "Lifecycle events emitted after committed transitions.",
		}, []string{"type"})

		feedClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "supervision_feed_clients_active",
			Help: "Websocket clients currently subscribed to the live event feed.",
		})

		documentRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supervision_document_rejected_total",
			Help: "Supervision letter uploads rejected, by cause.",
		}, []string{"cause"})

		prometheus.MustRegister(requestsTotal, latencySeconds, errorsTotal,
			transitionsTotal, staleConflictsTotal, eventsPublishedTotal,
			feedClientsActive, documentRejectedTotal)
	})
}

// Requests exposes the counter for served requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the latency histogram for served requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return latencySeconds
}

// Errors exposes the counter for error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return errorsTotal
}

// Transitions exposes the lifecycle transition counter.
func Transitions() *prometheus.CounterVec {
	RegisterMetrics()
	return transitionsTotal
}

// StaleConflicts exposes the optimistic-concurrency conflict counter.
func StaleConflicts() *prometheus.CounterVec {
	RegisterMetrics()
	return staleConflictsTotal
}

// EventsPublished exposes the emitted event counter.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublishedTotal
}

// FeedClientsActive exposes the live feed subscriber gauge.
func FeedClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return feedClientsActive
}

// DocumentRejected exposes the letter upload rejection counter.
func DocumentRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return documentRejectedTotal
}
