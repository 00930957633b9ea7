// Package metrics defines prometheus metric types and provides convenience
// methods to add accounting to circuit send/receive activity.
//
// When defining new operations or metrics, these are helpful values to track:
//  - things coming into or go out of the system: frames, bytes, requests.
//  - the success or error status of any of the above.
//  - the distribution of processing latency or queue depth.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BytesTotal tracks bytes moved across a circuit's socket, by direction.
	//
	// Provides metrics:
	//   catcp_circuit_bytes_total
	// Example usage:
	//   metrics.BytesTotal.With(prometheus.Labels{"direction": "send"}).Add(float64(n))
	BytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catcp_circuit_bytes_total",
			Help: "Total bytes moved across circuit sockets, by direction (send/recv).",
		}, []string{"direction"})

	// FramesTotal tracks, by direction, the number of application-level
	// messages parsed off the wire (recv) and the number of FrameBuffers
	// written to the socket (send).
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catcp_circuit_frames_total",
			Help: "Total frames sent or received, by direction (send/recv).",
		}, []string{"direction"})

	// SendQueueDepthHistogram tracks the number of bytes queued in the send
	// queue immediately before each flush to the socket.
	SendQueueDepthHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "catcp_circuit_send_queue_depth_bytes",
			Help: "Bytes occupied in the send queue at flush time.",
			Buckets: []float64{
				16, 64, 256, 1024, 4096, 16384, 65536, 262144, 1048576,
			},
		})

	// FlowControlToggleTotal counts EVENTS_ON/EVENTS_OFF transitions sent to
	// the peer, by new state.
	FlowControlToggleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catcp_circuit_flow_control_toggle_total",
			Help: "Flow control state transitions sent to the peer (on/off).",
		}, []string{"state"})

	// WatchdogExpiryTotal counts watchdog timeouts, by which dog expired.
	//
	// Provides metrics:
	//   catcp_circuit_watchdog_expiry_total
	WatchdogExpiryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catcp_circuit_watchdog_expiry_total",
			Help: "Watchdog expirations, by dog (connect/recv/send).",
		}, []string{"dog"})

	// ShutdownTotal counts circuit shutdowns, by mode (graceful/abortive)
	// and initiator.
	ShutdownTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catcp_circuit_shutdown_total",
			Help: "Circuit shutdowns, by mode (graceful/abortive) and reason.",
		}, []string{"mode", "reason"})

	// ErrorTotal measures the number of errors encountered while sending,
	// receiving, or decoding circuit traffic.
	//
	// Example usage:
	//   metrics.ErrorTotal.With(prometheus.Labels{"type": "decode"}).Inc()
	ErrorTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catcp_circuit_error_total",
			Help: "The total number of errors encountered, by type.",
		}, []string{"type"})

	// ActiveCircuits tracks the number of circuits currently open.
	ActiveCircuits = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catcp_circuit_active",
			Help: "Number of circuits currently open.",
		})

	// SendBacklogBlockedDuration tracks how long callers spent blocked in
	// circuit.Circuit.waitForSendBacklog.
	SendBacklogBlockedDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "catcp_circuit_send_backlog_blocked_seconds",
			Help: "Time callers spent blocked waiting for send backlog to drain.",
			Buckets: []float64{
				0.0001, 0.001, 0.01, 0.1, 1, 10,
			},
		})
)

// init() prints a log message to let the user know that the package has been
// loaded and the metrics registered. The metrics are auto-registered, which
// means they are registered as soon as this package is loaded, and the exact
// time this occurs (and whether this occurs at all in a given context) can be
// opaque.
func init() {
	log.Println("Prometheus metrics in catcp.metrics are registered.")
}
