// Package metrics exposes the proctoring agent's Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "exstem_proctor"

// Capture tick outcomes.
const (
	TickUploaded        = "uploaded"
	TickSkippedBusy     = "skipped_busy"
	TickSkippedNotReady = "skipped_not_ready"
	TickFailed          = "failed"
)

// Submission outcomes.
const (
	SubmitAccepted = "accepted"
	SubmitFailed   = "failed"
)

var (
	captureTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_ticks_total",
			Help:      "Capture ticks by outcome",
		},
		[]string{"outcome"},
	)

	uploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_upload_duration_seconds",
			Help:      "Duration of proctoring frame uploads in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 1.5, 2, 2.5, 5},
		},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts published to candidates by severity",
		},
		[]string{"severity"},
	)

	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Exam submissions by end reason and outcome",
		},
		[]string{"reason", "outcome"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of exam sessions held by the shell",
		},
	)

	allMetrics = []prometheus.Collector{
		captureTicksTotal,
		uploadDuration,
		alertsTotal,
		submissionsTotal,
		sessionsActive,
	}
)

// NewRegistry returns a registry holding the agent's metrics plus the Go
// runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(allMetrics...)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// RecordTick records the outcome of one capture tick.
func RecordTick(outcome string) {
	captureTicksTotal.WithLabelValues(outcome).Inc()
}

// RecordUpload records how long a frame upload took.
func RecordUpload(seconds float64) {
	uploadDuration.Observe(seconds)
}

// RecordAlert counts an alert shown to a candidate.
func RecordAlert(severity string) {
	alertsTotal.WithLabelValues(severity).Inc()
}

// RecordSubmission counts a submission attempt.
func RecordSubmission(reason, outcome string) {
	submissionsTotal.WithLabelValues(reason, outcome).Inc()
}

// SessionOpened and SessionClosed track live sessions.
func SessionOpened() { sessionsActive.Inc() }
func SessionClosed() { sessionsActive.Dec() }
