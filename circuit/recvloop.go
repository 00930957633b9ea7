package circuit

import (
	"net"

	"github.com/channelaccess/catcp/framebuf"
	"github.com/channelaccess/catcp/metrics"
	"github.com/channelaccess/catcp/wire"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"
)

// maxBurstIterations bounds the inner per-wakeup burst loop in recvLoop
// (spec 4.G step 6), so one very chatty peer cannot starve other circuits
// sharing the callback lock.
const maxBurstIterations = 50

// recvLoop is the background goroutine described in spec 4.G: it drives
// connect(), sends the initial VERSION frame, starts sendLoop once
// Connected, then repeatedly fills FrameBuffers from the socket and feeds
// them to processIncoming under the callback lock.
func (c *Circuit) recvLoop() {
	defer close(c.recvLoopDone)

	if err := c.connect(); err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		close(c.sendThreadExit)
		return
	}

	go c.sendLoop()
	c.signalSendThreadFlush()

	for {
		fb := framebuf.New(c.smallBufferCapacity())
		n, err := c.fillFromSocket(fb)
		if n == 0 || err != nil {
			break
		}

		c.recvDog.MessageArrivalNotify()

		c.ctx.CallbackMutex().Lock()
		c.runBurst(fb)
		c.ctx.CallbackMutex().Unlock()

		c.mu.Lock()
		disconnected := c.state == Disconnected
		c.mu.Unlock()
		if disconnected {
			break
		}
	}

	c.mu.Lock()
	c.state = Disconnected
	c.mu.Unlock()
	c.cleanShutdown()
}

func (c *Circuit) smallBufferCapacity() int {
	if fb := c.ctx.AllocateSmallBufferTCP(); fb != nil {
		cap := fb.CapacityBytes()
		c.ctx.ReleaseSmallBufferTCP(fb)
		return cap
	}
	return framebuf.DefaultCapacity
}

// fillFromSocket implements the peek-then-lock strategy from spec 4.G
// step 2: with preemptive callbacks enabled, it fills directly; otherwise
// it peeks one byte (blocking without the callback lock held) before the
// real fill.
func (c *Circuit) fillFromSocket(fb *framebuf.FrameBuffer) (int, error) {
	c.mu.Lock()
	conn := c.conn
	preemptive := c.ctx.PreemptiveCallbackEnabled()
	c.mu.Unlock()

	if !preemptive {
		peek := make([]byte, 1)
		n, err := conn.Read(peek)
		if n == 0 || err != nil {
			return n, err
		}
		fb.PushBytes(peek[:n])
		more, err := fb.FillFromSocket(conn)
		return n + more, err
	}
	return fb.FillFromSocket(conn)
}

// runBurst implements the inner burst loop (spec 4.G step 6): it updates
// the flow-control heuristic, appends fb to the receive queue, dispatches
// as many complete messages as are available, then polls for more
// immediately-available bytes before looping again, up to
// maxBurstIterations times.
func (c *Circuit) runBurst(fb *framebuf.FrameBuffer) {
	for i := 0; i < maxBurstIterations; i++ {
		c.mu.Lock()
		if fb.OccupiedBytes() == fb.CapacityBytes() {
			c.flow.RecordFull()
		} else {
			c.flow.RecordPartial()
		}
		c.unacknowledgedSendBytes = 0
		c.recvQ.Append(fb)
		metrics.BytesTotal.With(prometheus.Labels{"direction": "recv"}).Add(float64(fb.OccupiedBytes()))
		c.bytesReceived += uint64(fb.OccupiedBytes())

		for c.processIncomingLocked() {
		}
		state := c.state
		c.mu.Unlock()

		if state != Connected {
			return
		}

		pending, err := bytesPending(c.conn)
		if err != nil || pending == 0 {
			return
		}

		fb = framebuf.New(c.smallBufferCapacity())
		n, err := fb.FillFromSocket(c.conn)
		if n == 0 || err != nil {
			return
		}
	}
}

// processIncomingLocked runs one step of the parser state machine (spec
// 4.H) and returns true if it made progress and should be called again
// immediately (another complete message may already be buffered), false
// if it suspended waiting for more bytes or dispatched everything
// currently available.
func (c *Circuit) processIncomingLocked() bool {
	if !c.msgHeaderAvailable {
		if !c.oldMsgHeaderAvailable {
			if c.recvQ.OccupiedBytes() < wire.ShortHeaderSize {
				return false
			}
			var raw [wire.ShortHeaderSize]byte
			c.recvQ.CopyOutBytes(raw[:], wire.ShortHeaderSize)
			c.curHdr = wire.DecodeShort(raw[:])
			c.oldMsgHeaderAvailable = true
		}
		if wire.NeedsExtension(c.curHdr) {
			if c.recvQ.OccupiedBytes() < wire.ExtensionSize {
				return false
			}
			var ext [wire.ExtensionSize]byte
			c.recvQ.CopyOutBytes(ext[:], wire.ExtensionSize)
			c.curHdr = wire.DecodeExtension(c.curHdr, ext[:])
		}
		c.msgHeaderAvailable = true
		c.curDataBytes = 0
	}

	postsize := int(c.curHdr.PostSize)
	max := c.ctx.LargeBufferSizeTCP()
	if postsize > max {
		c.logOversizeOnce(postsize, max)
		remaining := postsize - c.curDataBytes
		removed := c.recvQ.RemoveBytes(remaining)
		c.curDataBytes += removed
		if c.curDataBytes < postsize {
			return false
		}
		c.resetParserLocked()
		return true
	}

	if c.curBuf == nil {
		c.curBuf = c.ctx.AllocateLargeBufferTCP()
		c.curData = c.curBuf.Raw()
		c.usingLargeBuffer = true
	}
	want := postsize - c.curDataBytes
	got := c.recvQ.CopyOutBytes(c.curData[c.curDataBytes:postsize], want)
	c.curDataBytes += got
	if c.curDataBytes < postsize {
		return false
	}

	body := c.curData[:postsize]
	hdr := c.curHdr
	c.resetParserLocked()

	ok := c.ctx.ExecuteResponse(hdr, body)
	c.releaseCurBufLocked()
	metrics.FramesTotal.With(prometheus.Labels{"direction": "recv"}).Inc()
	c.framesRecv++
	if !ok {
		c.state = Disconnected
		return false
	}
	return true
}

func (c *Circuit) resetParserLocked() {
	c.oldMsgHeaderAvailable = false
	c.msgHeaderAvailable = false
	c.curDataBytes = 0
}

// releaseCurBufLocked returns the pooled large buffer backing c.curData to
// ctx, once ExecuteResponse is done reading from it (spec 4.H step 2's
// buffer-pool swap).
func (c *Circuit) releaseCurBufLocked() {
	if c.curBuf == nil {
		return
	}
	c.ctx.ReleaseLargeBufferTCP(c.curBuf)
	c.curBuf = nil
	c.curData = nil
	c.usingLargeBuffer = false
}

// bytesPending queries the socket for how many bytes are immediately
// available without blocking (FIONREAD), used by the burst loop to decide
// whether to keep reading or yield back to the outer recvLoop iteration.
func bytesPending(conn *net.TCPConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var n int
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		n, sockErr = unix.IoctlGetInt(int(fd), unix.FIONREAD)
	})
	if err != nil {
		return 0, err
	}
	return n, sockErr
}
