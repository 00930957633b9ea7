package fdevents

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"net"
	"strings"
	"time"

	"github.com/m-lab/go/rtx"
)

// Handler is the interface subscribers of a Publisher's socket implement:
// one method per fd lifecycle event.
type Handler interface {
	Opened(ctx context.Context, timestamp time.Time, fd int)
	Closed(ctx context.Context, timestamp time.Time, fd int)
}

// MustRun reads from socket until ctx is canceled, dispatching each
// decoded FDEvent to handler. It panics on any error other than the
// connection closing as part of shutdown.
func MustRun(ctx context.Context, socket string, handler Handler) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c, err := net.Dial("unix", socket)
	rtx.Must(err, "Could not connect to %q", socket)
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	s := bufio.NewScanner(c)
	for s.Scan() {
		var event FDEvent
		if err := json.Unmarshal(s.Bytes(), &event); err != nil {
			log.Println("fdevents: could not unmarshal event:", err)
			continue
		}
		switch event.Kind {
		case Opened:
			handler.Opened(ctx, event.Timestamp, event.FD)
		case Closed:
			handler.Closed(ctx, event.Timestamp, event.FD)
		default:
			log.Println("fdevents: unknown event kind:", event.Kind)
		}
	}

	err = s.Err()
	if err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
		rtx.Must(err, "fdevents client scan failed")
	}
}
