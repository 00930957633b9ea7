// Package queue implements SendQueue and RecvQueue, the ordered sequences
// of framebuf.FrameBuffer that sit between the circuit's request APIs and
// its SendLoop, and between its RecvLoop and the incoming-message parser.
package queue

import (
	"github.com/channelaccess/catcp/framebuf"
)

// SendQueue is a FIFO of committed FrameBuffers plus, at most, one
// partially-built message spanning zero or more additional FrameBuffers.
// Message construction is a three-step protocol: BeginMsg, typed pushes,
// CommitMsg. Pop never returns a buffer containing an uncommitted tail.
type SendQueue struct {
	committed []*framebuf.FrameBuffer
	building  []*framebuf.FrameBuffer
	open      bool

	bufCapacity    int
	earlyThreshold int
	blockThreshold int
}

// NewSendQueue creates an empty SendQueue. bufCapacity sizes each
// FrameBuffer it allocates; earlyThreshold and blockThreshold are byte
// counts for FlushEarlyThreshold and FlushBlockThreshold.
func NewSendQueue(bufCapacity, earlyThreshold, blockThreshold int) *SendQueue {
	return &SendQueue{
		bufCapacity:    bufCapacity,
		earlyThreshold: earlyThreshold,
		blockThreshold: blockThreshold,
	}
}

// BeginMsg opens a new building region. It is a programming error to call
// BeginMsg twice without an intervening CommitMsg; callers (the request
// APIs) are expected to serialize message construction under the primary
// lock, so this is checked with a panic rather than an error return.
func (q *SendQueue) BeginMsg() {
	if q.open {
		panic("queue: BeginMsg called while a message is already open")
	}
	q.open = true
}

// tail returns the current building FrameBuffer, allocating a fresh one
// (and appending it to building) if none exists yet or the last one is
// full.
func (q *SendQueue) tail() *framebuf.FrameBuffer {
	if n := len(q.building); n > 0 && !q.building[n-1].Full() {
		return q.building[n-1]
	}
	fb := framebuf.New(q.bufCapacity)
	q.building = append(q.building, fb)
	return fb
}

// PushU8 appends a single byte to the open message, spilling into a new
// FrameBuffer if the current one is full.
func (q *SendQueue) PushU8(v uint8) {
	q.tail().PushU8(v)
}

// PushU16 appends v in network byte order, spilling across FrameBuffers a
// byte at a time if a 2-byte value straddles a boundary.
func (q *SendQueue) PushU16(v uint16) {
	q.PushU8(uint8(v >> 8))
	q.PushU8(uint8(v))
}

// PushU32 appends v in network byte order.
func (q *SendQueue) PushU32(v uint32) {
	q.PushU16(uint16(v >> 16))
	q.PushU16(uint16(v))
}

// PushF32 appends v as an IEEE-754 single-precision float in network byte
// order.
func (q *SendQueue) PushF32(v float32) {
	fb := framebuf.New(4)
	fb.PushF32(v)
	q.PushBytes(fb.Unread())
}

// PushBytes appends src to the open message, spilling into as many new
// FrameBuffers as necessary. A message legally crosses FrameBuffer
// boundaries.
func (q *SendQueue) PushBytes(src []byte) {
	for len(src) > 0 {
		n := q.tail().PushBytes(src)
		src = src[n:]
	}
}

// CommitMsg closes the open message, making its FrameBuffers (if any)
// eligible for transmission by appending them to the committed queue. It
// is a no-op, other than clearing the open flag, if the message was empty.
func (q *SendQueue) CommitMsg() {
	q.open = false
	if len(q.building) == 0 {
		return
	}
	q.committed = append(q.committed, q.building...)
	q.building = nil
}

// PopNextToSend returns the oldest fully-committed FrameBuffer, or
// (nil, false) if none is available. It never returns a buffer from the
// still-open building region.
func (q *SendQueue) PopNextToSend() (*framebuf.FrameBuffer, bool) {
	if len(q.committed) == 0 {
		return nil, false
	}
	fb := q.committed[0]
	q.committed = q.committed[1:]
	return fb, true
}

// committedBytes sums the occupied bytes across all committed FrameBuffers,
// the basis for both threshold checks.
func (q *SendQueue) committedBytes() int {
	total := 0
	for _, fb := range q.committed {
		total += fb.OccupiedBytes()
	}
	return total
}

// FlushEarlyThreshold reports whether queuing extra more bytes would cross
// the soft limit at which the SendLoop should be nudged to flush early.
func (q *SendQueue) FlushEarlyThreshold(extra int) bool {
	return q.committedBytes()+extra >= q.earlyThreshold
}

// FlushBlockThreshold reports whether the hard ceiling has been reached
// and callers must block until the SendLoop drains the queue.
func (q *SendQueue) FlushBlockThreshold(extra int) bool {
	return q.committedBytes()+extra >= q.blockThreshold
}

// Discard drops every committed and building FrameBuffer, used when a send
// failure or shutdown means the remaining queue will never reach the wire.
func (q *SendQueue) Discard() {
	q.committed = nil
	q.building = nil
	q.open = false
}
