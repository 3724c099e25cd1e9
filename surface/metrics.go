package surface

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pointsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nonlin_points_evaluated_total",
		Help: "Number of grid points evaluated by the model.",
	})

	gridSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nonlin_grid_seconds",
		Help:    "Time taken to compute a complete grid.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	gridErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nonlin_grid_errors_total",
		Help: "Number of grid computations which failed.",
	})
)
