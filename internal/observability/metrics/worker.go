package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the extraction pipeline and the mailbox poll.
type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge

	pollRunsTotal      *prometheus.CounterVec
	pollMessagesTotal  *prometheus.CounterVec
	lookbackWindowDays prometheus.Gauge
	linksCreatedTotal  prometheus.Counter
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procure",
			Subsystem: "worker",
			Name:      "document_process_total",
			Help:      "Total processed documents by kind and status.",
		},
		[]string{"service", "kind", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "procure",
			Subsystem: "worker",
			Name:      "document_process_duration_seconds",
			Help:      "Document processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "procure",
			Subsystem: "worker",
			Name:      "document_process_in_flight",
			Help:      "Number of in-flight document processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	pollRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procure",
			Subsystem: "ingest",
			Name:      "poll_runs_total",
			Help:      "Total mailbox poll runs by outcome.",
		},
		[]string{"service", "outcome"},
	)
	pollMessagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procure",
			Subsystem: "ingest",
			Name:      "poll_messages_total",
			Help:      "Messages seen by the poll, by ingest outcome.",
		},
		[]string{"service", "outcome"},
	)
	lookbackWindowDays := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "procure",
			Subsystem: "ingest",
			Name:      "lookback_window_days",
			Help:      "Lookback window used by the most recent poll run.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	linksCreatedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "procure",
			Subsystem: "ingest",
			Name:      "document_links_created_total",
			Help:      "Order-to-solicitation links created.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		processTotal,
		processDuration,
		processInFlight,
		pollRunsTotal,
		pollMessagesTotal,
		lookbackWindowDays,
		linksCreatedTotal,
	)

	return &WorkerMetrics{
		registry:           registry,
		processTotal:       processTotal,
		processDuration:    processDuration,
		processInFlight:    processInFlight,
		pollRunsTotal:      pollRunsTotal,
		pollMessagesTotal:  pollMessagesTotal,
		lookbackWindowDays: lookbackWindowDays,
		linksCreatedTotal:  linksCreatedTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(service, kind string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(service, kind, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) RecordPollRun(service string, err error, windowDays int) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.pollRunsTotal.WithLabelValues(service, outcome).Inc()
	m.lookbackWindowDays.Set(float64(windowDays))
}

func (m *WorkerMetrics) RecordPollMessages(service string, created, duplicates, skipped, failed int) {
	m.pollMessagesTotal.WithLabelValues(service, "created").Add(float64(created))
	m.pollMessagesTotal.WithLabelValues(service, "duplicate").Add(float64(duplicates))
	m.pollMessagesTotal.WithLabelValues(service, "skipped").Add(float64(skipped))
	m.pollMessagesTotal.WithLabelValues(service, "failed").Add(float64(failed))
}

func (m *WorkerMetrics) RecordLinkCreated() {
	m.linksCreatedTotal.Inc()
}
