package afero

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pollSuccess = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hubspace_poll_success_total",
			Help: "Successful device polls against the Afero API",
		},
	)
	pollFailure = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hubspace_poll_failure_total",
			Help: "Failed device polls against the Afero API",
		},
	)
	lastPollTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hubspace_last_poll_timestamp_seconds",
			Help: "Last successful poll timestamp (epoch seconds)",
		},
	)
	setStateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hubspace_set_state_duration_seconds",
			Help:    "Latency of set-state requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	setStateFailure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubspace_set_state_failure_total",
			Help: "Failed set-state requests per device",
		},
		[]string{"device_id"},
	)
)

// MetricsCollectors exposes the shared Afero client collectors.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		pollSuccess,
		pollFailure,
		lastPollTimestamp,
		setStateDuration,
		setStateFailure,
	}
}

func observeSetState(deviceID string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		setStateFailure.WithLabelValues(deviceID).Inc()
	}
	setStateDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}
