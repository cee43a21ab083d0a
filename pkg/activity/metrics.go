package activity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for activity tracking.
var (
	activityInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "photobatch_activity_in_flight",
		Help: "Number of network operations currently in flight",
	})

	activityStartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photobatch_activity_starts_total",
		Help: "Total number of tracked network operations",
	})

	activityUnbalancedEndsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photobatch_activity_unbalanced_ends_total",
		Help: "Total number of end signals received while already idle",
	})

	activityMirrorDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photobatch_activity_mirror_dropped_total",
		Help: "Total number of activity signals dropped because the mirror queue was full",
	})

	activityMirrorErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photobatch_activity_mirror_errors_total",
		Help: "Total number of failed writes of activity state to Redis",
	})
)
