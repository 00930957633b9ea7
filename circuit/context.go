package circuit

import (
	"sync"

	"github.com/channelaccess/catcp/framebuf"
	"github.com/channelaccess/catcp/wire"
)

// ClientContext is the higher-layer collaborator a Circuit is attached to.
// It owns the channel registry, buffer pools, and response dispatch that
// spec section 1 explicitly puts out of this package's scope; Circuit only
// reaches it through this interface.
//
// CallbackMutex is shared across every Circuit that belongs to the same
// ClientContext, serializing dispatch into ExecuteResponse across all of
// them; each Circuit's own fields remain protected by its private primary
// lock. Lock order, when both are held, is always callback then primary.
type ClientContext interface {
	// CallbackMutex returns the shared callback lock.
	CallbackMutex() *sync.Mutex

	// PreemptiveCallbackEnabled selects between the two RecvLoop framing
	// strategies: when true, RecvLoop fills directly; when false, it peeks
	// one byte before acquiring the callback lock so it does not block
	// while holding it.
	PreemptiveCallbackEnabled() bool

	// NotifyNewFD and NotifyDestroyFD register and unregister the
	// circuit's socket file descriptor with the higher layer's fd-tracking
	// mechanism (exposed in this module as the fdevents package).
	NotifyNewFD(fd int)
	NotifyDestroyFD(fd int)

	// AllocateSmallBufferTCP and AllocateLargeBufferTCP draw a FrameBuffer
	// from the respective pool; Release returns it. LargeBufferSize is the
	// capacity of buffers drawn from the large pool, needed to evaluate
	// whether an oversize message can be accommodated at all.
	AllocateSmallBufferTCP() *framebuf.FrameBuffer
	ReleaseSmallBufferTCP(*framebuf.FrameBuffer)
	AllocateLargeBufferTCP() *framebuf.FrameBuffer
	ReleaseLargeBufferTCP(*framebuf.FrameBuffer)
	LargeBufferSizeTCP() int

	// UserNamePointer returns the client identity string. Circuit does not
	// call it: the name queued by the initial handshake is the userName
	// argument of Circuit.Start.
	UserNamePointer() string

	// ExecuteResponse dispatches one fully-parsed incoming message to the
	// higher layer under the callback lock. It returns false to report a
	// protocol violation, which transitions the circuit to Disconnected.
	ExecuteResponse(header wire.Header, body []byte) bool
}
