// Package metrics exposes the Prometheus collectors of the idea board.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tagging run outcomes.
const (
	OutcomeTagged         = "tagged"
	OutcomeEmpty          = "empty"
	OutcomeQuotaExhausted = "quota_exhausted"
	OutcomeOracleError    = "oracle_error"
	OutcomeStoreError     = "store_error"
	OutcomeDisabled       = "disabled"
)

var (
	IdeasCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ideaboard_ideas_created_total",
			Help: "Total number of ideas created",
		},
	)

	TaggingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ideaboard_tagging_runs_total",
			Help: "Tagging worker runs by outcome",
		},
		[]string{"outcome"},
	)

	OracleLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ideaboard_oracle_call_duration_seconds",
			Help:    "Latency of tagging oracle calls",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ideaboard_events_published_total",
			Help: "Events published on the in-process bus by type",
		},
		[]string{"type"},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ideaboard_stream_events_dropped_total",
			Help: "Events dropped because a stream client could not keep up",
		},
	)

	OpenStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ideaboard_open_streams",
			Help: "Number of open event stream connections",
		},
	)
)

func init() {
	prometheus.MustRegister(IdeasCreated)
	prometheus.MustRegister(TaggingRuns)
	prometheus.MustRegister(OracleLatency)
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(OpenStreams)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in seconds on o.
func (t *Timer) ObserveDuration(o prometheus.Observer) {
	o.Observe(t.Duration().Seconds())
}
