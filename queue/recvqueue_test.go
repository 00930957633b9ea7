package queue_test

import (
	"bytes"
	"testing"

	"github.com/channelaccess/catcp/framebuf"
	"github.com/channelaccess/catcp/queue"
)

func fill(t *testing.T, capacity int, data []byte) *framebuf.FrameBuffer {
	t.Helper()
	fb := framebuf.New(capacity)
	if n := fb.PushBytes(data); n != len(data) {
		t.Fatalf("test fixture: could not fit %d bytes in a %d-capacity buffer", len(data), capacity)
	}
	return fb
}

func TestPopU16SpansFrameBuffers(t *testing.T) {
	var q queue.RecvQueue
	q.Append(fill(t, 1, []byte{0xBE}))
	q.Append(fill(t, 1, []byte{0xEF}))

	v, ok := q.PopU16()
	if !ok || v != 0xBEEF {
		t.Fatalf("PopU16() = (%#x, %v), want (0xbeef, true)", v, ok)
	}
}

func TestPopU16InsufficientBytesConsumesNothing(t *testing.T) {
	var q queue.RecvQueue
	q.Append(fill(t, 4, []byte{0x01}))

	if _, ok := q.PopU16(); ok {
		t.Fatal("expected PopU16 to fail with only 1 byte queued")
	}
	if q.OccupiedBytes() != 1 {
		t.Errorf("OccupiedBytes() = %d after failed pop, want 1 (untouched)", q.OccupiedBytes())
	}
}

func TestCopyOutBytesSpansAndDropsExhausted(t *testing.T) {
	var q queue.RecvQueue
	q.Append(fill(t, 2, []byte{1, 2}))
	q.Append(fill(t, 2, []byte{3, 4}))
	q.Append(fill(t, 2, []byte{5, 6}))

	dst := make([]byte, 5)
	n := q.CopyOutBytes(dst, 5)
	if n != 5 {
		t.Fatalf("CopyOutBytes returned %d, want 5", n)
	}
	if !bytes.Equal(dst, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("dst = %v", dst)
	}
	if q.OccupiedBytes() != 1 {
		t.Errorf("OccupiedBytes() = %d, want 1 remaining", q.OccupiedBytes())
	}
}

func TestRemoveBytesDiscardsWithoutCopy(t *testing.T) {
	var q queue.RecvQueue
	q.Append(fill(t, 4, []byte{1, 2, 3, 4}))
	q.Append(fill(t, 4, []byte{5, 6, 7, 8}))

	n := q.RemoveBytes(6)
	if n != 6 {
		t.Fatalf("RemoveBytes returned %d, want 6", n)
	}
	dst := make([]byte, 2)
	q.CopyOutBytes(dst, 2)
	if !bytes.Equal(dst, []byte{7, 8}) {
		t.Errorf("dst = %v, want [7 8]", dst)
	}
}
