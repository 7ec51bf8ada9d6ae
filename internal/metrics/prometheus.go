package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ClassificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qualitycast_classifications_total",
			Help: "Total classification requests by outcome",
		},
		[]string{"status"},
	)

	PredictedClassTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qualitycast_predicted_class_total",
			Help: "Top-1 predictions by class",
		},
		[]string{"class"},
	)

	InferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qualitycast_inference_duration_seconds",
			Help:    "Model forward pass duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qualitycast_confidence_score",
			Help:    "Top-1 confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qualitycast_prediction_cache_hits_total",
			Help: "Total prediction cache hits",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qualitycast_prediction_cache_misses_total",
			Help: "Total prediction cache misses",
		},
	)

	HistoryAppendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qualitycast_history_append_failures_total",
			Help: "Total failed history appends",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ClassificationsTotal)
		prometheus.MustRegister(PredictedClassTotal)
		prometheus.MustRegister(InferenceDuration)
		prometheus.MustRegister(ConfidenceScore)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(HistoryAppendFailures)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
