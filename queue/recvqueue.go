package queue

import (
	"github.com/channelaccess/catcp/framebuf"
)

// RecvQueue is an append-only sequence of FrameBuffers, consumed
// left-to-right by the incoming-message parser. Bytes are never copied in
// on Append; they are consumed byte-granularly via PopU16/PopU32,
// CopyOutBytes, and RemoveBytes, all of which transparently span multiple
// FrameBuffers.
type RecvQueue struct {
	bufs []*framebuf.FrameBuffer
}

// Append adds fb to the tail of the queue. The RecvLoop appends a fresh,
// just-filled FrameBuffer on every successful socket read.
func (q *RecvQueue) Append(fb *framebuf.FrameBuffer) {
	q.bufs = append(q.bufs, fb)
}

// OccupiedBytes sums the unread bytes across every FrameBuffer currently
// queued.
func (q *RecvQueue) OccupiedBytes() int {
	total := 0
	for _, fb := range q.bufs {
		total += fb.OccupiedBytes()
	}
	return total
}

// dropExhausted removes FrameBuffers from the front of the queue once
// their unread region is empty, so OccupiedBytes and the pop/copy
// operations never have to skip over dead buffers.
func (q *RecvQueue) dropExhausted() {
	i := 0
	for i < len(q.bufs) && q.bufs[i].OccupiedBytes() == 0 {
		i++
	}
	if i > 0 {
		q.bufs = q.bufs[i:]
	}
}

// CopyOutBytes copies up to n bytes, spanning FrameBuffers, into dst (which
// must have length >= n) and returns the number of bytes actually copied;
// fewer than n are copied only if fewer than n are available.
func (q *RecvQueue) CopyOutBytes(dst []byte, n int) int {
	copied := 0
	for copied < n && len(q.bufs) > 0 {
		fb := q.bufs[0]
		chunk := fb.Unread()
		want := n - copied
		if want > len(chunk) {
			want = len(chunk)
		}
		copy(dst[copied:], chunk[:want])
		fb.Advance(want)
		copied += want
		q.dropExhausted()
	}
	return copied
}

// RemoveBytes discards up to n bytes without copying them out, spanning
// FrameBuffers, and returns the number of bytes actually discarded. It is
// used to skip the body of an oversize message the higher layer has
// decided to ignore.
func (q *RecvQueue) RemoveBytes(n int) int {
	removed := 0
	for removed < n && len(q.bufs) > 0 {
		fb := q.bufs[0]
		avail := fb.OccupiedBytes()
		want := n - removed
		if want > avail {
			want = avail
		}
		fb.Advance(want)
		removed += want
		q.dropExhausted()
	}
	return removed
}

// PopU16 pops a big-endian uint16, spanning FrameBuffers if necessary, and
// reports whether 2 bytes were actually available. If fewer than 2 bytes
// are available, nothing is consumed, so the caller can suspend and retry
// once more bytes have arrived.
func (q *RecvQueue) PopU16() (uint16, bool) {
	if q.OccupiedBytes() < 2 {
		return 0, false
	}
	var b [2]byte
	q.CopyOutBytes(b[:], 2)
	return uint16(b[0])<<8 | uint16(b[1]), true
}

// PopU32 pops a big-endian uint32, spanning FrameBuffers if necessary, and
// reports whether 4 bytes were actually available, with the same
// all-or-nothing consumption behavior as PopU16.
func (q *RecvQueue) PopU32() (uint32, bool) {
	if q.OccupiedBytes() < 4 {
		return 0, false
	}
	var b [4]byte
	q.CopyOutBytes(b[:], 4)
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), true
}
