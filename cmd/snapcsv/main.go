// Command snapcsv reads circuit-statistics snapshot archives (plain or
// zstd-compressed CSV, as written by the archive package) and re-emits
// them as CSV on stdout, useful for concatenating or re-validating
// archived files offline.
package main

import (
	"io"
	"log"
	"os"
	"strings"

	"github.com/m-lab/go/rtx"

	"github.com/channelaccess/catcp/snapshot"
	"github.com/channelaccess/catcp/zstd"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	// A variable to enable mocking for testing.
	logFatal = log.Fatal
)

// openFile either opens a file, or opens and unzips a file that ends with .zst
func openFile(fn string) (io.ReadCloser, error) {
	if strings.HasSuffix(fn, ".zst") {
		return zstd.NewReader(fn), nil
	}
	return os.Open(fn)
}

func toCSV(snaps []*snapshot.Snapshot, wtr io.Writer) error {
	return snapshot.WriteCSV(wtr, snaps)
}

func main() {
	args := os.Args[1:]

	var source io.ReadCloser
	var err error
	source = os.Stdin
	if len(args) == 1 {
		source, err = openFile(args[0])
		rtx.Must(err, "Could not open file %q", args[0])
	} else if len(args) > 1 {
		logFatal("Too many command-line arguments.")
	}
	defer source.Close()

	snaps, err := snapshot.ReadCSV(source)
	rtx.Must(err, "Could not read snapshots")
	rtx.Must(toCSV(snaps, os.Stdout), "Could not convert input to CSV")
}
