package framebuf_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/channelaccess/catcp/framebuf"
)

func TestPushTypedValuesNetworkOrder(t *testing.T) {
	fb := framebuf.New(32)
	if err := fb.PushU16(0x1234); err != nil {
		t.Fatal(err)
	}
	if err := fb.PushU32(0x89ABCDEF); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x12, 0x34, 0x89, 0xAB, 0xCD, 0xEF}
	if got := fb.Unread(); !bytes.Equal(got, want) {
		t.Errorf("Unread() = % x, want % x", got, want)
	}
}

func TestPushBytesSpillReturnsPartialCount(t *testing.T) {
	fb := framebuf.New(4)
	n := fb.PushBytes([]byte{1, 2, 3, 4, 5, 6})
	if n != 4 {
		t.Errorf("PushBytes returned %d, want 4", n)
	}
	if !fb.Full() {
		t.Error("buffer should report full after exhausting capacity")
	}
}

func TestFillFromSocketZeroSignalsEOF(t *testing.T) {
	fb := framebuf.New(16)
	n, err := fb.FillFromSocket(bytes.NewReader(nil))
	if n != 0 || err != nil && err != io.EOF {
		t.Errorf("FillFromSocket on empty reader = (%d, %v), want (0, nil-or-EOF)", n, err)
	}
}

func TestFlushToSocketWritesOccupiedBytesOnly(t *testing.T) {
	fb := framebuf.New(16)
	fb.PushBytes([]byte("hello"))
	var out bytes.Buffer
	if err := fb.FlushToSocket(&out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hello" {
		t.Errorf("FlushToSocket wrote %q, want %q", out.String(), "hello")
	}
	if fb.OccupiedBytes() != 0 {
		t.Errorf("OccupiedBytes() = %d after full flush, want 0", fb.OccupiedBytes())
	}
}

func TestAdvanceTracksConsumeCursor(t *testing.T) {
	fb := framebuf.New(16)
	fb.PushBytes([]byte("abcdef"))
	fb.Advance(2)
	if got := fb.Unread(); !bytes.Equal(got, []byte("cdef")) {
		t.Errorf("Unread() after Advance(2) = %q, want %q", got, "cdef")
	}
	if fb.OccupiedBytes() != 4 {
		t.Errorf("OccupiedBytes() = %d, want 4", fb.OccupiedBytes())
	}
}
