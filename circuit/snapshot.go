package circuit

import (
	"sync/atomic"
	"time"

	"github.com/channelaccess/catcp/snapshot"
)

// Snapshot takes a point-in-time copy of this circuit's bookkeeping state
// for archival, implementing snapshot.Source. It acquires the primary lock
// for the fields it protects and reads the atomic byte/frame counters
// separately, so the result is not a single atomic view of the circuit but
// is safe to call from any goroutine at any time.
func (c *Circuit) Snapshot() snapshot.Snapshot {
	c.mu.Lock()
	s := snapshot.Snapshot{
		Timestamp:               time.Now(),
		CircuitID:               string(c.id),
		State:                   c.state.String(),
		MinorVersion:            c.minorVersion,
		UnacknowledgedSendBytes: uint64(c.unacknowledgedSendBytes),
		ContiguousFullReceives:  c.flow.Contiguous(),
		FlowControlActive:       c.flowControlActive,
		EchoPending:             c.echoRequestPending,
		SockCloseComplete:       c.sockCloseCompleted,
		BytesReceived:           c.bytesReceived,
		FramesRecv:              c.framesRecv,
	}
	if c.addr != nil {
		s.Addr = c.addr.String()
	}
	c.mu.Unlock()

	s.BytesSent = atomic.LoadUint64(&c.bytesSent)
	s.FramesSent = atomic.LoadUint64(&c.framesSent)
	return s
}
