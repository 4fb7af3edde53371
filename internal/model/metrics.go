package model

import "github.com/prometheus/client_golang/prometheus"

var (
	loadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "diffusiond",
			Subsystem: "model",
			Name:      "load_duration_seconds",
			Help:      "Time spent loading the pipeline",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"model", "result"},
	)

	modelReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "diffusiond",
			Subsystem: "model",
			Name:      "ready",
			Help:      "1 when the pipeline is loaded and serving",
		},
		[]string{"model"},
	)

	predictDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "diffusiond",
			Subsystem: "model",
			Name:      "predict_duration_seconds",
			Help:      "Duration of pipeline invocations including encoding",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		},
		[]string{"model"},
	)

	predictErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "diffusiond",
			Subsystem: "model",
			Name:      "predict_errors_total",
			Help:      "Failed predictions by reason",
		},
		[]string{"model", "reason"},
	)
)

func init() {
	prometheus.MustRegister(loadDuration, modelReady, predictDuration, predictErrors)
}
