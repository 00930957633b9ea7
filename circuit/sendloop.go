package circuit

import (
	"sync/atomic"
	"time"

	"github.com/channelaccess/catcp/framebuf"
	"github.com/channelaccess/catcp/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// sendLoop is the background goroutine described in spec 4.F: it waits
// for a flush nudge, reconciles flow-control and echo latches, drains the
// send queue to the socket, and loops until the circuit leaves Connected.
func (c *Circuit) sendLoop() {
	defer close(c.sendThreadExit)
	for {
		<-c.sendThreadFlush

		c.mu.Lock()
		if c.state != Connected {
			c.mu.Unlock()
			return
		}

		flowLaborNeeded := c.flow.Busy() != c.flowControlActive
		echoLaborNeeded := c.echoRequestPending
		c.echoRequestPending = false

		if flowLaborNeeded {
			if c.flow.Busy() {
				c.enableFlowControlLocked()
			} else {
				c.disableFlowControlLocked()
			}
			c.flowControlActive = c.flow.Busy()
		}
		if echoLaborNeeded {
			c.echoLocked()
		}
		c.mu.Unlock()

		if !c.flush() {
			return
		}
	}
}

// flush pops committed FrameBuffers under the primary lock, accumulating
// unacknowledgedSendBytes, then releases the lock before writing to the
// socket (spec 4.F). On a write failure it re-acquires the lock and
// discards whatever remains queued, then returns false so sendLoop exits.
func (c *Circuit) flush() bool {
	c.mu.Lock()
	var toSend []frameAndSize
	total := 0
	for {
		fb, ok := c.sendQ.PopNextToSend()
		if !ok {
			break
		}
		n := fb.OccupiedBytes()
		toSend = append(toSend, frameAndSize{fb, n})
		total += n
	}
	c.unacknowledgedSendBytes += total
	needsBacklogPoke := c.unacknowledgedSendBytes > c.socketSendBufferSize && c.socketSendBufferSize > 0
	conn := c.conn
	c.mu.Unlock()

	if len(toSend) == 0 {
		return true
	}

	if needsBacklogPoke {
		// Poked without holding the lock per the watchdog precondition;
		// RecvDog.Poke itself never touches the primary lock.
		c.recvDog.SendBacklogProgressNotify()
	}

	metrics.SendQueueDepthHistogram.Observe(float64(total))

	for _, fs := range toSend {
		c.sendDog.Start()
		err := fs.fb.FlushToSocket(conn)
		c.sendDog.Cancel()
		if err != nil {
			metrics.ErrorTotal.With(prometheus.Labels{"type": "send"}).Inc()
			c.mu.Lock()
			c.sendQ.Discard()
			c.mu.Unlock()
			return false
		}
		metrics.BytesTotal.With(prometheus.Labels{"direction": "send"}).Add(float64(fs.size))
		metrics.FramesTotal.With(prometheus.Labels{"direction": "send"}).Inc()
		atomic.AddUint64(&c.bytesSent, uint64(fs.size))
		atomic.AddUint64(&c.framesSent, 1)
	}

	c.mu.Lock()
	if c.blockingForFlush > 0 {
		c.flushBlockEvent.Broadcast()
	}
	c.mu.Unlock()
	return true
}

type frameAndSize struct {
	fb   *framebuf.FrameBuffer
	size int
}

// RequestEcho marks an echo as pending for the next SendLoop wake, used by
// a liveness-probing higher layer.
func (c *Circuit) RequestEcho() {
	c.mu.Lock()
	c.echoRequestPending = true
	c.mu.Unlock()
	c.signalSendThreadFlush()
}

// waitForSendBacklog blocks the caller until the send queue drains below
// its block threshold or the circuit disconnects, implementing
// blockUntilSendBacklogIsReasonable (spec design note C.5). It must be
// called without the primary lock held.
func (c *Circuit) waitForSendBacklog() {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockingForFlush++
	for c.sendQ.FlushBlockThreshold(0) && c.state == Connected {
		c.flushBlockEvent.Wait()
	}
	c.blockingForFlush--
	metrics.SendBacklogBlockedDuration.Observe(time.Since(start).Seconds())
}
