package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// WorkerMetrics tracks the document processing pipeline of one worker.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  prometheus.Gauge
	queueLag  prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	m := &WorkerMetrics{
		registry: registry,
		service:  service,
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "document_process_total",
			Help:        "Processed documents by outcome: success, empty, invalid, temporary or error.",
			ConstLabels: labels,
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "document_process_duration_seconds",
			Help:        "Time from extraction start to ready or failed, by outcome.",
			Buckets:     []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: labels,
		}, []string{"status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "document_process_in_flight",
			Help:        "Documents currently being processed.",
			ConstLabels: labels,
		}),
		queueLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between upload and processing start.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: labels,
		}),
	}
	registry.MustRegister(m.processed, m.duration, m.inFlight, m.queueLag)
	return m
}

func (m *WorkerMetrics) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument wraps a document processing handler. lookup resolves the upload
// time for queue lag; a lookup failure only skips that observation.
func (m *WorkerMetrics) Instrument(
	lookup func(ctx context.Context, documentID string) (*domain.Document, error),
	process func(ctx context.Context, documentID string) error,
) func(context.Context, string) error {
	return func(ctx context.Context, documentID string) error {
		if lookup != nil {
			if doc, err := lookup(ctx, documentID); err == nil {
				m.ObserveQueueLag(time.Since(doc.CreatedAt))
			}
		}
		start := time.Now()
		m.inFlight.Inc()
		err := process(ctx, documentID)
		m.finish(time.Since(start), err)
		return err
	}
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag >= 0 {
		m.queueLag.Observe(lag.Seconds())
	}
}

func (m *WorkerMetrics) finish(elapsed time.Duration, err error) {
	m.inFlight.Dec()
	status := processStatus(err)
	m.processed.WithLabelValues(status).Inc()
	m.duration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func processStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case domain.IsKind(err, domain.ErrEmptyDocument):
		return "empty"
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid"
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrCollaboratorUnavailable):
		return "temporary"
	default:
		return "error"
	}
}
