package fdevents

import (
	"bufio"
	"context"
	"encoding/json"
	"io/ioutil"
	"log"
	"net"
	"os"
	"testing"
	"time"
)

func TestPublisher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir, err := ioutil.TempDir("", "TestFDEventsPublisher")
	if err != nil {
		t.Fatalf("Could not create tempdir: %v", err)
	}
	defer os.RemoveAll(dir)

	pub := New(dir + "/fdevents.sock")
	if err := pub.Listen(); err != nil {
		t.Fatal(err)
	}
	go pub.Serve(ctx)
	log.Println("About to dial")
	c, err := net.Dial("unix", dir+"/fdevents.sock")
	if err != nil {
		t.Fatalf("Could not open UNIX domain socket: %v", err)
	}

	for {
		pub.mutex.Lock()
		length := len(pub.clients)
		pub.mutex.Unlock()
		if length > 0 {
			break
		}
	}

	pub.FDClosed(42)
	r := bufio.NewScanner(c)
	if !r.Scan() {
		t.Fatal("should have been able to scan until the next newline")
	}
	var event FDEvent
	if err := json.Unmarshal(r.Bytes(), &event); err != nil {
		t.Fatal(err)
	}
	if event.Kind != Closed || event.FD != 42 {
		t.Errorf("event = %+v, want {Closed, _, 42}", event)
	}

	before := time.Now()
	pub.FDOpened(7)
	if !r.Scan() {
		t.Fatal("should have been able to scan until the next newline")
	}
	if err := json.Unmarshal(r.Bytes(), &event); err != nil {
		t.Fatal(err)
	}
	after := time.Now()
	if before.After(event.Timestamp) || after.Before(event.Timestamp) {
		t.Errorf("expected %v < %v < %v", before, event.Timestamp, after)
	}
	if event.Kind != Opened || event.FD != 7 {
		t.Errorf("event = %+v, want {Opened, _, 7}", event)
	}

	c.Close()
	pub.eventC <- nil
	pub.removeClient(nil) // no SIGSEGV == success

	pub.FDClosed(42)
	for {
		pub.mutex.Lock()
		length := len(pub.clients)
		pub.mutex.Unlock()
		if length == 0 {
			break
		}
	}

	cancel()
	pub.servingWG.Wait()
}

func TestKindString(t *testing.T) {
	tests := []struct {
		want string
		k    Kind
	}{
		{"Opened", Opened},
		{"Closed", Closed},
		{"Unknown", Kind(9)},
	}
	for _, tt := range tests {
		if got := tt.k.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %v, want %v", tt.k, got, tt.want)
		}
	}
}
