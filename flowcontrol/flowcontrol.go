// Package flowcontrol implements the receive-burst heuristic that decides
// when a circuit should ask its peer to stop pushing subscription events
// (EVENTS_OFF) because the client cannot keep up, and when it is safe to
// resume (EVENTS_ON).
package flowcontrol

// DefaultContiguousFullThreshold is the number of consecutive full-capacity
// receives that must be observed before busy is declared, matching the
// original's tuned default of 2.
const DefaultContiguousFullThreshold = 2

// Detector tracks contiguous full-capacity receives and derives a busy
// latch from them. It holds no locks of its own; the circuit serializes
// calls to it under the primary lock, the same lock that guards
// busyStateDetected in the data model.
type Detector struct {
	threshold int
	contig    int
	busy      bool
}

// New creates a Detector that declares busy after threshold consecutive
// full receives. A threshold <= 0 is replaced with
// DefaultContiguousFullThreshold.
func New(threshold int) *Detector {
	if threshold <= 0 {
		threshold = DefaultContiguousFullThreshold
	}
	return &Detector{threshold: threshold}
}

// RecordFull registers a receive that filled its FrameBuffer to capacity.
// Once the contiguous count reaches the threshold, busy is latched and
// stays latched until a non-full receive is recorded.
func (d *Detector) RecordFull() {
	d.contig++
	if d.contig >= d.threshold {
		d.busy = true
	}
}

// RecordPartial registers a receive that did not fill its FrameBuffer,
// which resets the contiguous counter and clears busy immediately.
func (d *Detector) RecordPartial() {
	d.contig = 0
	d.busy = false
}

// Busy reports the current busy latch: true means the circuit should be
// asking its peer for EVENTS_OFF, false means EVENTS_ON.
func (d *Detector) Busy() bool {
	return d.busy
}

// Contiguous reports the current run length of consecutive full-capacity
// receives, for diagnostics and archival snapshots.
func (d *Detector) Contiguous() int {
	return d.contig
}
