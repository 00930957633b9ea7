// Package fdevents fans out circuit file-descriptor lifecycle events
// (notify_new_fd / notify_destroy_fd, spec.md section 6) over a Unix
// domain socket as newline-delimited JSON, so an external supervisor
// process can track live circuit sockets without polling /proc.
package fdevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

//go:generate stringer -type=Kind

// Kind distinguishes fd lifecycle events.
type Kind int

const (
	// Opened is sent when a circuit's socket file descriptor is
	// registered with NotifyNewFD.
	Opened = Kind(iota)
	// Closed is sent when a circuit's socket file descriptor is
	// unregistered with NotifyDestroyFD.
	Closed
)

// FDEvent is the JSONL payload sent to subscribers.
type FDEvent struct {
	Kind      Kind
	Timestamp time.Time
	FD        int
}

// Publisher serves fd events over a Unix domain socket to any number of
// connected clients. Construct one with New unless you really know what
// you are doing (e.g. unit tests).
type Publisher struct {
	eventC       chan *FDEvent
	filename     string
	clients      map[net.Conn]struct{}
	unixListener net.Listener
	mutex        sync.Mutex
	servingWG    sync.WaitGroup
}

// New makes a new Publisher that will serve clients on the provided Unix
// domain socket once Listen and Serve are called.
func New(filename string) *Publisher {
	return &Publisher{
		filename: filename,
		eventC:   make(chan *FDEvent, 100),
		clients:  make(map[net.Conn]struct{}),
	}
}

// FDOpened should be called whenever a circuit registers a new socket fd.
func (p *Publisher) FDOpened(fd int) {
	p.eventC <- &FDEvent{Kind: Opened, Timestamp: time.Now(), FD: fd}
}

// FDClosed should be called whenever a circuit's socket fd is retired.
func (p *Publisher) FDClosed(fd int) {
	p.eventC <- &FDEvent{Kind: Closed, Timestamp: time.Now(), FD: fd}
}

func (p *Publisher) addClient(c net.Conn) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.clients[c] = struct{}{}
}

func (p *Publisher) removeClient(c net.Conn) {
	p.servingWG.Add(1)
	defer p.servingWG.Done()
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if _, ok := p.clients[c]; !ok {
		return
	}
	delete(p.clients, c)
}

func (p *Publisher) sendToAllListeners(data string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for c := range p.clients {
		if _, err := fmt.Fprintln(c, data); err != nil {
			log.Println("fdevents: write to client", c, "failed:", err, "- removing")
			go p.removeClient(c)
			go c.Close()
		}
	}
}

func (p *Publisher) notifyClients(ctx context.Context) {
	p.servingWG.Add(1)
	defer p.servingWG.Done()
	for ctx.Err() == nil {
		event := <-p.eventC
		if event == nil {
			continue
		}
		b, err := json.Marshal(*event)
		if err != nil {
			log.Printf("fdevents: could not marshal event %+v: %v", event, err)
			continue
		}
		p.sendToAllListeners(string(b))
	}
}

// Listen opens the Unix domain socket. Connections will not succeed until
// Serve is also called. Call this only once per Publisher.
func (p *Publisher) Listen() error {
	p.servingWG.Add(1)
	var err error
	p.unixListener, err = net.Listen("unix", p.filename)
	return err
}

// Serve accepts and serves clients until ctx is canceled. It is expected
// to run in its own goroutine after Listen has succeeded, and should only
// be called once per Publisher.
func (p *Publisher) Serve(ctx context.Context) error {
	defer p.servingWG.Done()
	derivedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go p.notifyClients(derivedCtx)

	p.servingWG.Add(1)
	go func() {
		<-derivedCtx.Done()
		p.unixListener.Close()
		close(p.eventC)
		p.servingWG.Done()
	}()

	var err error
	for derivedCtx.Err() == nil {
		var conn net.Conn
		conn, err = p.unixListener.Accept()
		if err != nil {
			log.Printf("fdevents: Accept on %q failed: %s\n", p.filename, err)
			break
		}
		p.addClient(conn)
	}
	return err
}
