// Package snapshot contains the CSV-archivable statistics snapshot taken
// from a circuit.Circuit, and utilities to marshal/unmarshal batches of them.
package snapshot

import (
	"io"
	"time"

	"github.com/gocarina/gocsv"
)

// Snapshot is a point-in-time summary of one circuit's bookkeeping state,
// suitable for periodic CSV archival. It intentionally carries only the
// counters and latches a circuit already maintains (spec.md section 3); it
// never copies message payload bytes.
type Snapshot struct {
	// Timestamp this snapshot was taken.
	Timestamp time.Time

	// CircuitID is the circid.ID string naming the circuit this snapshot
	// describes.
	CircuitID string

	// Addr is the server endpoint the circuit is (or was) connected to.
	Addr string

	// State is the circuit's connection state at snapshot time
	// (Connecting, Connected, or Disconnected).
	State string

	// MinorVersion is the circuit's CA minor protocol version.
	// circuit.Circuit presets it to wire.CAMinorProtocolRevision at
	// construction, so it is never 0 in a snapshot taken from a Circuit.
	MinorVersion uint16

	BytesSent     uint64
	BytesReceived uint64
	FramesSent    uint64
	FramesRecv    uint64

	// UnacknowledgedSendBytes mirrors the circuit's own counter: bytes
	// queued and sent since the last confirmed receive.
	UnacknowledgedSendBytes uint64

	// ContiguousFullReceives is the current run length of full-capacity
	// reads driving the flow-control heuristic.
	ContiguousFullReceives int

	FlowControlActive bool
	EchoPending       bool
	SockCloseComplete bool
}

// Source produces the Snapshots that feed archival. circuit.Circuit
// implements it directly with its Snapshot method, so this package does
// not need to import circuit.
type Source interface {
	Snapshot() Snapshot
}

// WriteCSV marshals snapshots to w as CSV with a header row. The fields
// above carry no csv struct tags, so each column is named after its field.
func WriteCSV(w io.Writer, snapshots []*Snapshot) error {
	return gocsv.Marshal(snapshots, w)
}

// AppendCSV marshals snapshots to w as CSV without a header row, for
// appending to an already-headered file.
func AppendCSV(w io.Writer, snapshots []*Snapshot) error {
	return gocsv.MarshalWithoutHeaders(snapshots, w)
}

// ReadCSV unmarshals a CSV stream (with header row) back into Snapshots,
// for offline analysis tools that consume archived circuit statistics.
func ReadCSV(r io.Reader) ([]*Snapshot, error) {
	var out []*Snapshot
	if err := gocsv.Unmarshal(r, &out); err != nil {
		return nil, err
	}
	return out, nil
}
