package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StreamConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waitboard_stream_connected",
			Help: "1 while the server-push stream is healthy",
		},
	)

	StreamConnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitboard_stream_connects_total",
			Help: "Stream connection attempts by result",
		},
		[]string{"result"},
	)

	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitboard_stream_events_total",
			Help: "Decoded stream events by type",
		},
		[]string{"type"},
	)

	StreamMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waitboard_stream_malformed_total",
			Help: "Stream payloads dropped because they could not be decoded",
		},
	)

	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitboard_poll_cycles_total",
			Help: "Fallback snapshot fetches by result",
		},
		[]string{"result"},
	)

	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitboard_mutations_total",
			Help: "Queue actions sent to the backend by action and result",
		},
		[]string{"action", "result"},
	)

	MutationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waitboard_mutation_duration_seconds",
			Help:    "Round trip of queue actions including the per-item wait",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"action"},
	)

	Announcements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitboard_announcements_total",
			Help: "Call announcements delivered by sink and result",
		},
		[]string{"sink", "result"},
	)
)

// Result label values.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultDropped = "dropped"
)

// Outcome maps an error to a result label.
func Outcome(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
