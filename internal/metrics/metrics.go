// Package metrics exposes the relay's Prometheus collectors on a dedicated
// registry, so the scrape surface carries only darkrelay series and tests
// can read collectors without global registry collisions.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every darkrelay collector; the /metrics endpoint serves
// exactly this set.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// Connection lifecycle metrics
	ConnectionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "darkrelay_connections_active",
			Help: "Number of currently open client connections",
		},
	)

	ConnectionsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "darkrelay_connections_total",
			Help: "Total number of accepted client connections",
		},
	)

	// Frame and byte throughput
	FramesReadTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "darkrelay_frames_read_total",
			Help: "Total number of frames read from clients",
		},
	)

	FramesWrittenTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "darkrelay_frames_written_total",
			Help: "Total number of frames written to clients",
		},
	)

	BytesReadTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "darkrelay_bytes_read_total",
			Help: "Total payload bytes read from clients",
		},
	)

	BytesWrittenTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "darkrelay_bytes_written_total",
			Help: "Total payload bytes written to clients",
		},
	)

	// Relay traffic, by message kind rather than channel to keep
	// cardinality flat.
	MessagesRelayedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darkrelay_messages_relayed_total",
			Help: "Total messages relayed to recipients by kind",
		},
		[]string{"kind"}, // chat, dm, file_chunk
	)

	AuthFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darkrelay_auth_failures_total",
			Help: "Total authentication failures by stage",
		},
		[]string{"stage"}, // gate, login, register
	)

	BroadcastFanout = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "darkrelay_broadcast_fanout",
			Help:    "Number of connections reached per broadcast",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
	)
)

// outboundDepthFn is bound once the registry exists; until then the gauge
// reads zero.
var outboundDepthFn atomic.Pointer[func() float64]

var _ = factory.NewGaugeFunc(
	prometheus.GaugeOpts{
		Name: "darkrelay_outbound_queue_depth",
		Help: "Messages queued across all connection outbound queues",
	},
	func() float64 {
		if fn := outboundDepthFn.Load(); fn != nil {
			return (*fn)()
		}
		return 0
	},
)

// BindOutboundQueueDepth wires the queue depth gauge to its source. The
// function is called on scrape, so it must be safe for concurrent use.
func BindOutboundQueueDepth(fn func() float64) {
	outboundDepthFn.Store(&fn)
}

// RecordConnectionOpened counts an accepted connection.
func RecordConnectionOpened() {
	ConnectionsTotal.Inc()
	ConnectionsActive.Inc()
}

// RecordConnectionClosed balances RecordConnectionOpened.
func RecordConnectionClosed() {
	ConnectionsActive.Dec()
}

// RecordFrameRead counts one inbound frame and its payload bytes.
func RecordFrameRead(bytes int) {
	FramesReadTotal.Inc()
	BytesReadTotal.Add(float64(bytes))
}

// RecordFrameWritten counts one outbound frame and its payload bytes.
func RecordFrameWritten(bytes int) {
	FramesWrittenTotal.Inc()
	BytesWrittenTotal.Add(float64(bytes))
}

// RecordRelayed counts messages fanned out to recipients.
func RecordRelayed(kind string, recipients int) {
	if recipients <= 0 {
		return
	}
	MessagesRelayedTotal.WithLabelValues(kind).Add(float64(recipients))
}

// RecordAuthFailure counts a failed gate, login, or register attempt.
func RecordAuthFailure(stage string) {
	AuthFailuresTotal.WithLabelValues(stage).Inc()
}

// RecordBroadcastFanout observes how many connections one broadcast hit.
func RecordBroadcastFanout(recipients int) {
	BroadcastFanout.Observe(float64(recipients))
}
