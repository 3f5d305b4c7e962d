// Package metrics holds the Prometheus collectors of the datablock runtime.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ydb"

var (
	// framesSent counts frames written to peers.
	// Labels: type (request, response, resp(failed), publish), op
	framesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wire",
		Name:      "frames_sent_total",
		Help:      "Frames written to peers",
	}, []string{"type", "op"})

	// framesReceived counts decoded frames.
	// Labels: type, op
	framesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wire",
		Name:      "frames_received_total",
		Help:      "Frames decoded from peers",
	}, []string{"type", "op"})

	// invalidFrames counts frames dropped for a malformed header.
	invalidFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wire",
		Name:      "invalid_frames_total",
		Help:      "Frames dropped because their header could not be parsed",
	})

	// publishes counts distributed diffs.
	// Labels: store, op (merge, delete)
	publishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "publishes_total",
		Help:      "Diffs distributed to subscribers",
	}, []string{"store", "op"})

	// fanOut measures how many connections one publish reached.
	fanOut = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "publish_fanout",
		Help:      "Connections reached by one publish",
		Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
	})

	// reconnects counts reopen attempts of parked connections.
	// Labels: result (ok, failed)
	reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "conn",
		Name:      "reconnects_total",
		Help:      "Reopen attempts of disconnected connections",
	}, []string{"result"})

	// syncDuration measures how long a sync waited for its peers.
	// Labels: result (ok, timeout)
	syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "sync_duration_seconds",
		Help:      "Time spent waiting for sync responses",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3, 10},
	}, []string{"result"})

	// connections tracks attached connections per state.
	// Labels: store, state
	connections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "conn",
		Name:      "connections",
		Help:      "Connections by state",
	}, []string{"store", "state"})
)

// FrameSent records one written frame.
func FrameSent(kind, op string) {
	framesSent.WithLabelValues(kind, op).Inc()
}

// FrameReceived records one decoded frame.
func FrameReceived(kind, op string) {
	framesReceived.WithLabelValues(kind, op).Inc()
}

// InvalidFrame records one dropped frame.
func InvalidFrame() {
	invalidFrames.Inc()
}

// Published records a diff sent to n connections.
func Published(store, op string, n int) {
	publishes.WithLabelValues(store, op).Inc()
	fanOut.Observe(float64(n))
}

// Reconnect records a reopen attempt.
func Reconnect(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	reconnects.WithLabelValues(result).Inc()
}

// SyncFinished records the wait of one sync.
func SyncFinished(d time.Duration, timedOut bool) {
	result := "ok"
	if timedOut {
		result = "timeout"
	}
	syncDuration.WithLabelValues(result).Observe(d.Seconds())
}

// SetConnections sets the number of connections a store holds in state.
func SetConnections(store, state string, n int) {
	connections.WithLabelValues(store, state).Set(float64(n))
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
