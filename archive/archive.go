// Package archive drains a stream of circuit statistics snapshots into
// rotating, optionally zstd-compressed CSV files on disk.
package archive

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/channelaccess/catcp/snapshot"
	"github.com/channelaccess/catcp/zstd"
)

// ErrNoMarshallers is returned when an Archiver is constructed with zero
// marshalling goroutines.
var ErrNoMarshallers = errors.New("archive: Archiver has zero marshallers")

// Task is a single marshalling task: write snapshots to writer, or (if
// snapshots is nil) close writer. One archive file may receive many Tasks
// over its lifetime, one per batch flushed to it. FreshFile marks the
// first batch written to a given writer, so the marshaller knows to emit
// a CSV header row.
type Task struct {
	Snapshots []*snapshot.Snapshot
	Writer    io.WriteCloser
	FreshFile bool
}

// MarshalChan is a channel of marshalling tasks, the send-only handle a
// caller uses to queue work for a marshaller goroutine.
type MarshalChan chan<- Task

func runMarshaller(taskChan <-chan Task, wg *sync.WaitGroup) {
	for task := range taskChan {
		if task.Snapshots == nil {
			task.Writer.Close()
			continue
		}
		if task.Writer == nil {
			log.Println("archive: nil writer for non-nil batch, dropping it")
			continue
		}
		var err error
		if task.FreshFile {
			err = snapshot.WriteCSV(task.Writer, task.Snapshots)
		} else {
			err = snapshot.AppendCSV(task.Writer, task.Snapshots)
		}
		if err != nil {
			log.Println("archive: CSV marshal failed:", err)
		}
	}
	wg.Done()
}

// NewMarshaller starts a marshalling goroutine reading from a new channel
// and registers it with wg so callers can wait for it to drain on Close.
func NewMarshaller(wg *sync.WaitGroup) MarshalChan {
	taskChan := make(chan Task, 100)
	wg.Add(1)
	go runMarshaller(taskChan, wg)
	return taskChan
}

// RotationPolicy decides when an output file should be closed and a new
// one opened, and how the new one should be named.
type RotationPolicy struct {
	// Interval is how often a file is rotated; zero disables rotation
	// (a single file is used for the Archiver's entire lifetime).
	Interval time.Duration

	// Dir is the directory new archive files are created in.
	Dir string

	// Prefix names the circuit or client this archiver serves, used in
	// generated filenames.
	Prefix string

	// Compress selects the zstd-piped writer over a plain file when true.
	Compress bool
}

func (p RotationPolicy) newWriter(seq int, now time.Time) (io.WriteCloser, error) {
	name := fmt.Sprintf("%s/%s_%s_%05d.csv", p.Dir, p.Prefix, now.UTC().Format("20060102T150405.000"), seq)
	if p.Compress {
		return zstd.NewWriter(name + ".zst")
	}
	return osCreate(name)
}

// osCreate is a var so tests can substitute it without touching the
// filesystem, matching the teacher's osPipe mocking idiom in zstd.go.
var osCreate = func(name string) (io.WriteCloser, error) {
	return os.Create(name)
}

// Archiver fans batches of snapshots out to a pool of marshaller
// goroutines, rotating the output file on the configured interval.
type Archiver struct {
	policy    RotationPolicy
	chans     []MarshalChan
	wg        *sync.WaitGroup
	mu        sync.Mutex
	writer    io.WriteCloser
	freshFile bool
	seq       int
	deadline  time.Time
}

// New creates an Archiver with numMarshaller marshalling goroutines
// draining into files managed per policy.
func New(policy RotationPolicy, numMarshaller int) (*Archiver, error) {
	if numMarshaller < 1 {
		return nil, ErrNoMarshallers
	}
	wg := &sync.WaitGroup{}
	chans := make([]MarshalChan, 0, numMarshaller)
	for i := 0; i < numMarshaller; i++ {
		chans = append(chans, NewMarshaller(wg))
	}
	return &Archiver{policy: policy, chans: chans, wg: wg}, nil
}

// Append queues a batch of snapshots for archival, rotating the output
// file first if the rotation interval has elapsed.
func (a *Archiver) Append(batch []*snapshot.Snapshot) error {
	if len(batch) == 0 {
		return nil
	}
	a.mu.Lock()
	now := time.Now()
	if a.writer == nil || (a.policy.Interval > 0 && now.After(a.deadline)) {
		if a.writer != nil {
			a.chans[a.seq%len(a.chans)] <- Task{Writer: a.writer}
		}
		w, err := a.policy.newWriter(a.seq, now)
		if err != nil {
			a.mu.Unlock()
			return err
		}
		a.writer = w
		a.freshFile = true
		a.seq++
		a.deadline = now.Add(a.policy.Interval)
	}
	q := a.chans[a.seq%len(a.chans)]
	writer := a.writer
	fresh := a.freshFile
	a.freshFile = false
	a.mu.Unlock()

	q <- Task{Snapshots: batch, Writer: writer, FreshFile: fresh}
	return nil
}

// Close flushes and closes the current output file and waits for every
// marshalling goroutine to drain.
func (a *Archiver) Close() {
	a.mu.Lock()
	if a.writer != nil {
		a.chans[a.seq%len(a.chans)] <- Task{Writer: a.writer}
		a.writer = nil
	}
	a.mu.Unlock()

	for _, c := range a.chans {
		close(c)
	}
	a.wg.Wait()
}
