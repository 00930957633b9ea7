package circuit

import (
	"time"

	"github.com/channelaccess/catcp/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"
)

// stopThreadsBudget is the 15-second window stop_threads gives SendLoop to
// exit on its own before forcibly closing the socket and retrying (spec
// 4.J).
const stopThreadsBudget = 15 * time.Second

// sendBacklogPollInterval is how often stop_threads polls for
// blockingForFlush to drain while waiting on flushBlockEvent.
const sendBacklogPollInterval = 100 * time.Millisecond

// CleanShutdown requests a graceful teardown: the socket is closed but not
// forcibly reset, matching clean_shutdown/tcpCircuitShutdown(discard=false)
// in the original. It is idempotent.
func (c *Circuit) CleanShutdown() {
	c.shutdown(false, "clean")
}

// ForcedShutdown requests an abortive teardown (SO_LINGER{1,0}), matching
// forced_shutdown/tcpCircuitShutdown(discard=true). It is idempotent.
func (c *Circuit) ForcedShutdown() {
	c.shutdown(true, "forced")
}

func (c *Circuit) cleanShutdown() { c.CleanShutdown() }

// shutdown implements spec 4.J. It is idempotent via sockCloseCompleted:
// invoking it any number of times notifies the fd departure and closes the
// socket exactly once (property P7).
func (c *Circuit) shutdown(discard bool, reason string) {
	c.mu.Lock()
	if c.sockCloseCompleted {
		c.mu.Unlock()
		return
	}

	wasConnected := c.state == Connected
	conn := c.conn
	c.state = Disconnected

	if conn != nil {
		fd, err := socketFD(conn)
		if err == nil {
			c.ctx.NotifyDestroyFD(fd)
		}
	}

	if discard && conn != nil {
		raw, err := conn.SyscallConn()
		if err == nil {
			raw.Control(func(fd uintptr) {
				unix.SetsockoptLinger(int(fd), unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 0})
			})
		}
	}
	if wasConnected && conn != nil {
		conn.CloseRead()
		conn.CloseWrite()
	}
	if conn != nil {
		conn.Close()
	}
	c.sockCloseCompleted = true
	c.mu.Unlock()

	mode := "graceful"
	if discard {
		mode = "abortive"
	}
	metrics.ShutdownTotal.With(prometheus.Labels{"mode": mode, "reason": reason}).Inc()
	metrics.ActiveCircuits.Dec()

	c.signalSendThreadFlush()
}

// StopThreads orchestrates full circuit teardown: it runs CleanShutdown,
// cancels all three watchdogs, waits up to stopThreadsBudget for SendLoop
// to exit (forcibly closing the socket and retrying once if it does not),
// then waits for any blocked backpressured producers to drain, polling
// every 100ms (spec 4.J).
func (c *Circuit) StopThreads() {
	c.CleanShutdown()

	c.connectDog.Cancel()
	c.recvDog.Cancel()
	c.sendDog.Cancel()

	select {
	case <-c.sendThreadExit:
	case <-time.After(stopThreadsBudget):
		c.mu.Lock()
		closed := c.sockCloseCompleted
		conn := c.conn
		c.mu.Unlock()
		if !closed && conn != nil {
			conn.Close()
		}
		<-c.sendThreadExit
	}

	for {
		c.mu.Lock()
		draining := c.blockingForFlush > 0
		c.mu.Unlock()
		if !draining {
			break
		}
		c.flushBlockEvent.Broadcast()
		time.Sleep(sendBacklogPollInterval)
	}

	c.connectDog.Cancel()
	c.recvDog.Cancel()
	c.sendDog.Cancel()
}

func (c *Circuit) onConnectDogExpire() {
	metrics.WatchdogExpiryTotal.With(prometheus.Labels{"dog": "connect"}).Inc()
	c.ForcedShutdown()
}

func (c *Circuit) onSendDogExpire() {
	metrics.WatchdogExpiryTotal.With(prometheus.Labels{"dog": "send"}).Inc()
	c.ForcedShutdown()
}

func (c *Circuit) onRecvDogExpire() {
	metrics.WatchdogExpiryTotal.With(prometheus.Labels{"dog": "recv"}).Inc()
	c.CleanShutdown()
}
