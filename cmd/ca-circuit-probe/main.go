// Command ca-circuit-probe opens a single Channel Access virtual circuit to
// a configured server, logs every incoming message, and periodically
// archives circuit statistics to CSV, exposing the same prometheus metrics
// a real CA client library process would.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/channelaccess/catcp/archive"
	"github.com/channelaccess/catcp/circuit"
	"github.com/channelaccess/catcp/democtx"
	"github.com/channelaccess/catcp/fdevents"
	"github.com/channelaccess/catcp/snapshot"
	"github.com/channelaccess/catcp/wire"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	serverAddr  = flag.String("server", "127.0.0.1:5064", "Host:port of the CA server to connect to")
	promPort    = flag.String("prom", ":9090", "Prometheus metrics export address and port")
	fdSocket    = flag.String("fdevents.socket", "", "Unix domain socket to publish fd lifecycle events on, empty disables it")
	archiveDir  = flag.String("archive.dir", "", "Directory to write CSV circuit-statistics snapshots to, empty disables archival")
	rotateEvery = flag.Duration("archive.rotate", 10*time.Minute, "How often to rotate archive output files")
	snapEvery   = flag.Duration("snapshot.interval", 10*time.Second, "How often to snapshot circuit statistics")

	ctx, cancel = context.WithCancel(context.Background())
)

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	promSrv := prometheusx.MustStartPrometheus(*promPort)
	defer promSrv.Shutdown(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var opts []democtx.Option
	opts = append(opts, democtx.WithResponseHandler(func(h wire.Header, body []byte) bool {
		log.Printf("recv cmd=%d cid=%d postsize=%d", h.Cmd, h.CID, h.PostSize)
		return true
	}))

	if *fdSocket != "" {
		pub := fdevents.New(*fdSocket)
		rtx.Must(pub.Listen(), "Could not listen on %s", *fdSocket)
		go pub.Serve(ctx)
		opts = append(opts, democtx.WithFDEvents(pub))
	}

	hostName, err := os.Hostname()
	rtx.Must(err, "Could not determine hostname")
	dctx := democtx.New("ca-circuit-probe", hostName, 16*1024, opts...)

	addr, err := net.ResolveTCPAddr("tcp", *serverAddr)
	rtx.Must(err, "Could not resolve %s", *serverAddr)

	cir := circuit.New(dctx, addr, circuit.DefaultConfig())
	rtx.Must(cir.Start(hostName, "ca-circuit-probe"), "Could not start circuit to %s", *serverAddr)

	var arc *archive.Archiver
	if *archiveDir != "" {
		arc, err = archive.New(archive.RotationPolicy{
			Dir:      *archiveDir,
			Prefix:   "ca-circuit-probe",
			Interval: *rotateEvery,
		}, 2)
		rtx.Must(err, "Could not create archiver")
	}

	ticker := time.NewTicker(*snapEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap := cir.Snapshot()
			if arc != nil {
				if err := arc.Append([]*snapshot.Snapshot{&snap}); err != nil {
					log.Println("archive append failed:", err)
				}
			}
			dctx.Rotate()
		case <-ctx.Done():
			cir.StopThreads()
			if arc != nil {
				arc.Close()
			}
			cancel()
			return
		}
	}
}
