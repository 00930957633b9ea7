// Command fdevents-client is a minimal reference implementation of a
// ca-circuit-probe fdevents subscriber: it connects to the Unix domain
// socket a probe publishes circuit fd lifecycle events on and logs them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/channelaccess/catcp/fdevents"
)

var (
	socket = flag.String("fdevents.socket", "", "Unix domain socket to subscribe to")

	mainCtx, mainCancel = context.WithCancel(context.Background())
)

// handler implements the fdevents.Handler interface.
type handler struct {
	events chan fdevents.FDEvent
}

// Opened is called synchronously, blocking, for every fd-open event.
func (h *handler) Opened(ctx context.Context, timestamp time.Time, fd int) {
	log.Println("opened", fd, timestamp)
	h.events <- fdevents.FDEvent{Kind: fdevents.Opened, Timestamp: timestamp, FD: fd}
}

// Closed is called synchronously, blocking, for every fd-close event.
func (h *handler) Closed(ctx context.Context, timestamp time.Time, fd int) {
	log.Println("closed", fd, timestamp)
	h.events <- fdevents.FDEvent{Kind: fdevents.Closed, Timestamp: timestamp, FD: fd}
}

// processEvents drains the events channel until ctx is canceled.
func (h *handler) processEvents(ctx context.Context) {
	for {
		select {
		case e := <-h.events:
			log.Println("processing", e)
		case <-ctx.Done():
			log.Println("shutdown")
			return
		}
	}
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from environment variables")
	defer mainCancel()

	if *socket == "" {
		panic("-fdevents.socket path is required")
	}

	h := &handler{events: make(chan fdevents.FDEvent)}

	go h.processEvents(mainCtx)
	go fdevents.MustRun(mainCtx, *socket, h)

	<-mainCtx.Done()
	fmt.Println("ok")
}
