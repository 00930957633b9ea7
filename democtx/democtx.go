// Package democtx provides a minimal, in-module implementation of
// circuit.ClientContext, the external collaborator spec.md declares out
// of scope (the channel registry, buffer pools, and response dispatch a
// real higher layer would supply). It exists so the circuit package is
// independently testable and so the probe CLI has something to attach to
// without a real EPICS channel registry behind it.
package democtx

import (
	"log"
	"sync"

	"github.com/channelaccess/catcp/fdevents"
	"github.com/channelaccess/catcp/framebuf"
	"github.com/channelaccess/catcp/wire"
)

// ResponseHandler is called for every fully-parsed incoming message this
// context dispatches via ExecuteResponse. It should return false to
// signal a protocol violation and force the circuit to disconnect.
type ResponseHandler func(header wire.Header, body []byte) bool

// Context is a small, self-contained circuit.ClientContext. A zero Context
// is not usable; construct one with New.
type Context struct {
	callback sync.Mutex

	preemptive bool

	smallPool sync.Pool
	largePool sync.Pool
	largeSize int

	userName string
	hostName string

	handler ResponseHandler

	events *fdevents.Publisher

	mu       sync.Mutex
	channels map[uint32]string // outstanding cids, the current generation (names are not recorded; values are "")
	previous map[uint32]string // the prior generation, kept briefly for diagnostics
}

// Option configures a Context at construction.
type Option func(*Context)

// WithPreemptiveCallbacks enables the direct-fill RecvLoop strategy
// instead of the peek-then-lock strategy.
func WithPreemptiveCallbacks(enabled bool) Option {
	return func(c *Context) { c.preemptive = enabled }
}

// WithResponseHandler installs the callback ExecuteResponse dispatches to.
func WithResponseHandler(h ResponseHandler) Option {
	return func(c *Context) { c.handler = h }
}

// WithFDEvents wires a fdevents.Publisher so NotifyNewFD/NotifyDestroyFD
// fan out to external subscribers.
func WithFDEvents(p *fdevents.Publisher) Option {
	return func(c *Context) { c.events = p }
}

// New creates a Context with the given identity strings and large-buffer
// size, applying any options.
func New(userName, hostName string, largeSize int, opts ...Option) *Context {
	c := &Context{
		userName:  userName,
		hostName:  hostName,
		largeSize: largeSize,
		channels:  make(map[uint32]string),
		previous:  make(map[uint32]string),
	}
	c.smallPool.New = func() interface{} { return framebuf.New(framebuf.DefaultCapacity) }
	c.largePool.New = func() interface{} { return framebuf.New(largeSize) }
	for _, opt := range opts {
		opt(c)
	}
	if c.handler == nil {
		c.handler = func(wire.Header, []byte) bool { return true }
	}
	return c
}

// CallbackMutex implements circuit.ClientContext.
func (c *Context) CallbackMutex() *sync.Mutex { return &c.callback }

// PreemptiveCallbackEnabled implements circuit.ClientContext.
func (c *Context) PreemptiveCallbackEnabled() bool { return c.preemptive }

// NotifyNewFD implements circuit.ClientContext.
func (c *Context) NotifyNewFD(fd int) {
	if c.events != nil {
		c.events.FDOpened(fd)
	}
}

// NotifyDestroyFD implements circuit.ClientContext.
func (c *Context) NotifyDestroyFD(fd int) {
	if c.events != nil {
		c.events.FDClosed(fd)
	}
}

// AllocateSmallBufferTCP implements circuit.ClientContext.
func (c *Context) AllocateSmallBufferTCP() *framebuf.FrameBuffer {
	return c.smallPool.Get().(*framebuf.FrameBuffer)
}

// ReleaseSmallBufferTCP implements circuit.ClientContext.
func (c *Context) ReleaseSmallBufferTCP(fb *framebuf.FrameBuffer) {
	fb.Reset()
	c.smallPool.Put(fb)
}

// AllocateLargeBufferTCP implements circuit.ClientContext.
func (c *Context) AllocateLargeBufferTCP() *framebuf.FrameBuffer {
	return c.largePool.Get().(*framebuf.FrameBuffer)
}

// ReleaseLargeBufferTCP implements circuit.ClientContext.
func (c *Context) ReleaseLargeBufferTCP(fb *framebuf.FrameBuffer) {
	fb.Reset()
	c.largePool.Put(fb)
}

// LargeBufferSizeTCP implements circuit.ClientContext.
func (c *Context) LargeBufferSizeTCP() int { return c.largeSize }

// UserNamePointer implements circuit.ClientContext.
func (c *Context) UserNamePointer() string { return c.userName }

// HostName returns the client host name this Context was created with.
// Circuit does not call it: the host name queued by the initial handshake
// is the hostName argument of Circuit.Start.
func (c *Context) HostName() string { return c.hostName }

// ExecuteResponse implements circuit.ClientContext, tracking CLAIM_CIU
// replies in the outstanding-channel map (current/previous swap per the
// pattern a registry under load would use to bound memory) before handing
// the message to the installed handler.
func (c *Context) ExecuteResponse(header wire.Header, body []byte) bool {
	c.mu.Lock()
	if header.Cmd == wire.CmdClaimCIUReply {
		c.channels[header.CID] = ""
	}
	if header.Cmd == wire.CmdClearChannel {
		delete(c.channels, header.Available)
	}
	c.mu.Unlock()

	ok := c.handler(header, body)
	if !ok {
		log.Printf("democtx: protocol violation on cmd=%d cid=%d", header.Cmd, header.CID)
	}
	return ok
}

// Rotate swaps the current outstanding-channel generation into previous
// and starts a fresh one, so long-running demo processes do not retain
// every channel ever seen.
func (c *Context) Rotate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.previous = c.channels
	c.channels = make(map[uint32]string)
}
