// Package circuit implements the client-side TCP virtual circuit: the
// aggregate of FrameBuffer-backed send/receive queues, the header codec,
// three watchdogs, the flow-control heuristic, and the two cooperating
// goroutines (SendLoop, RecvLoop) that move bytes between the socket and
// the higher-layer ClientContext.
package circuit

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/channelaccess/catcp/circid"
	"github.com/channelaccess/catcp/flowcontrol"
	"github.com/channelaccess/catcp/framebuf"
	"github.com/channelaccess/catcp/metrics"
	"github.com/channelaccess/catcp/queue"
	"github.com/channelaccess/catcp/watchdog"
	"github.com/channelaccess/catcp/wire"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"
)

// State is the circuit's connection lifecycle state. Transitions are
// monotonic: Connecting -> Connected -> Disconnected, or Connecting ->
// Disconnected directly; Disconnected is terminal (invariant I1).
type State int

const (
	Connecting State = iota
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Config collects the tunables a Circuit needs at construction: timeouts
// for the three watchdogs, queue thresholds, and buffer sizing. The
// Connect/Recv/Send timeouts are separate fields; DefaultConfig gives all
// three the same value, as the original does. There are no per-request
// timeouts.
type Config struct {
	ConnectTimeout time.Duration
	RecvTimeout    time.Duration
	SendTimeout    time.Duration

	SendBufferCapacity int
	SendEarlyThreshold int
	SendBlockThreshold int

	FlowControlThreshold int

	Priority uint16
}

// DefaultConfig returns sane defaults modeled on the original
// implementation's tuned constants.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:       30 * time.Second,
		RecvTimeout:          30 * time.Second,
		SendTimeout:          30 * time.Second,
		SendBufferCapacity:   framebuf.DefaultCapacity,
		SendEarlyThreshold:   16 * 1024,
		SendBlockThreshold:   256 * 1024,
		FlowControlThreshold: flowcontrol.DefaultContiguousFullThreshold,
	}
}

// Circuit is one client-to-server TCP virtual circuit.
type Circuit struct {
	ctx  ClientContext
	addr *net.TCPAddr
	cfg  Config

	id circid.ID

	mu sync.Mutex // the primary lock (L1): protects every field below except bytesSent and framesSent, which are updated atomically

	conn  *net.TCPConn
	state State

	minorVersion uint16

	sendQ *queue.SendQueue
	recvQ *queue.RecvQueue

	// processIncoming parser state (spec 4.H).
	oldMsgHeaderAvailable bool
	msgHeaderAvailable    bool
	curHdr                wire.Header
	curDataBytes          int
	curData               []byte
	curBuf                *framebuf.FrameBuffer
	usingLargeBuffer      bool

	flow                   *flowcontrol.Detector
	flowControlActive      bool
	echoRequestPending     bool
	unacknowledgedSendBytes int

	sockCloseCompleted bool
	earlyFlush         bool

	blockingForFlush int
	flushBlockEvent  *sync.Cond

	socketSendBufferSize int

	connectDog *watchdog.ConnectDog
	recvDog    *watchdog.RecvDog
	sendDog    *watchdog.SendDog

	sendThreadFlush    chan struct{}
	sendThreadExit     chan struct{}
	recvLoopDone       chan struct{}

	oversizeWarned       bool
	maskTruncationWarned bool

	bytesSent     uint64
	bytesReceived uint64
	framesSent    uint64
	framesRecv    uint64

	labels prometheus.Labels
}

func flowControlLabel(state string) prometheus.Labels {
	return prometheus.Labels{"state": state}
}

// New creates a Circuit bound to addr, owned by ctx, but does not yet
// create its socket or start its goroutines; call Start for that.
func New(ctx ClientContext, addr *net.TCPAddr, cfg Config) *Circuit {
	c := &Circuit{
		ctx:             ctx,
		addr:            addr,
		cfg:             cfg,
		state:           Connecting,
		minorVersion:    wire.CAMinorProtocolRevision,
		sendQ:           queue.NewSendQueue(cfg.SendBufferCapacity, cfg.SendEarlyThreshold, cfg.SendBlockThreshold),
		recvQ:           &queue.RecvQueue{},
		flow:            flowcontrol.New(cfg.FlowControlThreshold),
		sendThreadFlush: make(chan struct{}, 1),
		sendThreadExit:  make(chan struct{}),
		recvLoopDone:    make(chan struct{}),
	}
	c.flushBlockEvent = sync.NewCond(&c.mu)
	c.connectDog = watchdog.NewConnectDog(cfg.ConnectTimeout, c.onConnectDogExpire)
	c.recvDog = watchdog.NewRecvDog(cfg.RecvTimeout, c.onRecvDogExpire)
	c.sendDog = watchdog.NewSendDog(cfg.SendTimeout, c.onSendDogExpire)
	return c
}

// State returns the circuit's current connection state. It acquires the
// primary lock, so callers must not hold it already.
func (c *Circuit) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ID returns the circuit's identity, valid once Start has completed the
// connect handshake (empty before then).
func (c *Circuit) ID() circid.ID { return c.id }

// Start queues the initial identity messages and launches RecvLoop, which
// itself creates and connects the socket and then starts SendLoop. It
// returns as soon as RecvLoop has been launched, before the socket exists
// and before SendLoop runs; use State or a higher-layer callback to
// observe the transition to Connected.
func (c *Circuit) Start(hostName, userName string) error {
	c.mu.Lock()
	c.queueHandshakeLocked(hostName, userName)
	c.mu.Unlock()

	metrics.ActiveCircuits.Inc()
	go c.recvLoop()
	return nil
}

// queueHandshakeLocked queues VERSION, then host/client name, for the
// initial flush, mirroring the original's handshake scenario (spec 8,
// scenario 1). minorVersion is preset to CAMinorProtocolRevision at
// construction (this module has no prior UDP-search negotiation step), so
// the v41 gate in requestHostNameLocked/requestClientNameLocked already
// passes at this point.
func (c *Circuit) queueHandshakeLocked(hostName, userName string) {
	c.requestVersionLocked()
	c.requestHostNameLocked(hostName)
	c.requestClientNameLocked(userName)
}

func (c *Circuit) connect() error {
	c.connectDog.Start()
	defer c.connectDog.Cancel()

	var conn *net.TCPConn
	var err error
	for {
		conn, err = net.DialTCP("tcp", nil, c.addr)
		if err == nil {
			break
		}
		if isEINTR(err) {
			continue
		}
		return err
	}

	if err := setSocketOptions(conn); err != nil {
		conn.Close()
		return err
	}
	sndBuf, err := querySendBufferSize(conn)
	if err != nil {
		conn.Close()
		return err
	}

	id, err := circid.FromTCPConn(conn)
	if err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.socketSendBufferSize = sndBuf
	c.id = id
	c.labels = prometheus.Labels{}
	c.state = Connected
	c.mu.Unlock()

	fd, err := socketFD(conn)
	if err == nil {
		c.ctx.NotifyNewFD(fd)
	}
	c.recvDog.ConnectNotify()
	return nil
}

// isEINTR reports whether err wraps EINTR, the one connect() error the
// original retries rather than surfacing.
func isEINTR(err error) bool {
	return errors.Is(err, syscall.EINTR)
}

// setSocketOptions applies TCP_NODELAY and SO_KEEPALIVE at circuit
// creation, as spec section 6 requires.
func setSocketOptions(conn *net.TCPConn) error {
	if err := conn.SetNoDelay(true); err != nil {
		return err
	}
	return conn.SetKeepAlive(true)
}

// querySendBufferSize reads SO_SNDBUF so the send-backlog watchdog poke
// (unacknowledgedSendBytes > socketLibrarySendBufferSize) has a baseline,
// exactly as the original constructor does.
func querySendBufferSize(conn *net.TCPConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var size int
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		size, sockErr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF)
	})
	if err != nil {
		return 0, err
	}
	return size, sockErr
}

func socketFD(conn *net.TCPConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	err = raw.Control(func(f uintptr) { fd = int(f) })
	return fd, err
}

// Dump writes a diagnostic summary of the circuit's identity, negotiated
// version, state, and queue occupancy, mirroring the original's
// tcpiiu::show at increasing verbosity levels (0: one line; >=1: adds
// queue depths and flags).
func (c *Circuit) Dump(w io.Writer, level int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(w, "circuit %s addr=%s version=%d state=%s\n", c.id, c.addr, c.minorVersion, c.state)
	if level < 1 {
		return
	}
	fmt.Fprintf(w, "  recvQueueBytes=%d unackedSendBytes=%d busy=%v flowControlActive=%v\n",
		c.recvQ.OccupiedBytes(), c.unacknowledgedSendBytes, c.flow.Busy(), c.flowControlActive)
	fmt.Fprintf(w, "  sockCloseCompleted=%v blockingForFlush=%d\n", c.sockCloseCompleted, c.blockingForFlush)
}

func (c *Circuit) logOversizeOnce(postsize, max int) {
	if c.oversizeWarned {
		return
	}
	c.oversizeWarned = true
	log.Printf("circuit %s: oversize message postsize=%d exceeds max=%d; draining and continuing", c.id, postsize, max)
}
