package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docshift_documents_total",
		Help: "Documents that reached a terminal status, by status.",
	}, []string{"status"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docshift_pipeline_stage_duration_seconds",
		Help:    "Time spent in each pipeline stage.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	enhancementFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docshift_enhancement_fallbacks_total",
		Help: "Enhancements that returned the annotated original text because the model was rate limited.",
	})
)
