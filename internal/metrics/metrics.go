// Package metrics provides Prometheus metrics for the scoreboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scoreboard"

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	SubmissionsScored prometheus.Counter
	SubmissionErrors  prometheus.Counter
	ScoreboardPushes  prometheus.Counter
	ScoringDuration   prometheus.Histogram
	ConnectedClients  prometheus.Gauge
}

// New registers all collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SubmissionsScored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_scored_total",
			Help:      "Submissions scored and recorded in the ledger.",
		}),
		SubmissionErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submission_errors_total",
			Help:      "Submissions rejected before any ledger mutation.",
		}),
		ScoreboardPushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_total",
			Help:      "Scoreboard updates pushed to subscribers.",
		}),
		ScoringDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "Time spent parsing and scoring one submission.",
			Buckets:   prometheus.DefBuckets,
		}),
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Currently connected websocket subscribers.",
		}),
	}
}
