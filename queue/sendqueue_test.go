package queue_test

import (
	"bytes"
	"testing"

	"github.com/channelaccess/catcp/queue"
)

func TestCommitMsgMakesBuffersPoppable(t *testing.T) {
	q := queue.NewSendQueue(16, 1<<20, 1<<20)
	if _, ok := q.PopNextToSend(); ok {
		t.Fatal("expected empty queue before any message is built")
	}

	q.BeginMsg()
	q.PushU16(0xBEEF)
	q.PushBytes([]byte("hello world"))
	q.CommitMsg()

	var got bytes.Buffer
	for {
		fb, ok := q.PopNextToSend()
		if !ok {
			break
		}
		fb.FlushToSocket(&got)
	}
	want := append([]byte{0xBE, 0xEF}, []byte("hello world")...)
	if !bytes.Equal(got.Bytes(), want) {
		t.Errorf("got % x, want % x", got.Bytes(), want)
	}
}

func TestPopNeverReturnsUncommittedTail(t *testing.T) {
	q := queue.NewSendQueue(16, 1<<20, 1<<20)
	q.BeginMsg()
	q.PushBytes([]byte("not committed yet"))
	if _, ok := q.PopNextToSend(); ok {
		t.Fatal("PopNextToSend must not return a buffer from an open message")
	}
}

func TestMessageSpansFrameBufferBoundary(t *testing.T) {
	q := queue.NewSendQueue(4, 1<<20, 1<<20)
	q.BeginMsg()
	q.PushBytes([]byte("this is longer than four bytes"))
	q.CommitMsg()

	var got bytes.Buffer
	for {
		fb, ok := q.PopNextToSend()
		if !ok {
			break
		}
		fb.FlushToSocket(&got)
	}
	if got.String() != "this is longer than four bytes" {
		t.Errorf("got %q", got.String())
	}
}

func TestFlushEarlyAndBlockThresholds(t *testing.T) {
	q := queue.NewSendQueue(64, 10, 20)
	q.BeginMsg()
	q.PushBytes(make([]byte, 15))
	q.CommitMsg()

	if !q.FlushEarlyThreshold(0) {
		t.Error("expected early threshold crossed at 15 queued bytes with a cap of 10")
	}
	if q.FlushBlockThreshold(0) {
		t.Error("did not expect the block threshold (20) crossed yet")
	}
	if !q.FlushBlockThreshold(10) {
		t.Error("expected block threshold crossed when considering 10 more bytes")
	}
}

func TestDiscardClearsEverything(t *testing.T) {
	q := queue.NewSendQueue(16, 1<<20, 1<<20)
	q.BeginMsg()
	q.PushBytes([]byte("abc"))
	q.CommitMsg()
	q.Discard()
	if _, ok := q.PopNextToSend(); ok {
		t.Fatal("expected nothing poppable after Discard")
	}
}
