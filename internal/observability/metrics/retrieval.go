package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// RetrievalMetrics counts retrieval stage runs and their outcome.
type RetrievalMetrics struct {
	service       string
	stageStarted  *prometheus.CounterVec
	stageOutcome  *prometheus.CounterVec
	stagePassages *prometheus.HistogramVec
}

func NewRetrievalMetrics(registerer prometheus.Registerer, service string) *RetrievalMetrics {
	m := &RetrievalMetrics{
		service: service,
		stageStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "stage_started_total",
				Help:      "Retrieval stages started.",
			},
			[]string{"service", "stage"},
		),
		stageOutcome: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "stage_finished_total",
				Help:      "Retrieval stages finished, by whether they returned passages.",
			},
			[]string{"service", "stage", "outcome"},
		),
		stagePassages: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "stage_passages",
				Help:      "Passages returned per retrieval stage.",
				Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 8},
			},
			[]string{"service", "stage"},
		),
	}
	registerer.MustRegister(m.stageStarted, m.stageOutcome, m.stagePassages)
	return m
}

func (m *RetrievalMetrics) StageStarted(_ context.Context, stage domain.RetrievalStage) {
	m.stageStarted.WithLabelValues(m.service, string(stage)).Inc()
}

func (m *RetrievalMetrics) StageFinished(_ context.Context, stage domain.RetrievalStage, passages int) {
	outcome := "hit"
	if passages == 0 {
		outcome = "miss"
	}
	m.stageOutcome.WithLabelValues(m.service, string(stage), outcome).Inc()
	m.stagePassages.WithLabelValues(m.service, string(stage)).Observe(float64(passages))
}
