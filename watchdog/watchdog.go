// Package watchdog implements the three timer-driven liveness observers a
// circuit arms against its socket: ConnectDog and SendDog guard individual
// blocking syscalls, RecvDog guards overall peer responsiveness.
package watchdog

import (
	"sync"
	"time"
)

// Dog is a single timer-driven expiry observer. Start arms (or re-arms) it
// for its configured duration; Poke resets an already-running timer
// without changing its callback; Cancel disarms it.
//
// Cancel blocks until any expire callback already in flight has returned,
// which means callers must not hold a lock that the expire callback itself
// needs to acquire — doing so deadlocks. Circuit call sites always invoke
// Cancel with neither the primary nor the callback lock held, per the
// concurrency model this package was built for.
type Dog struct {
	duration time.Duration
	onExpire func()

	mu    sync.Mutex // guards timer
	timer *time.Timer

	firing sync.Mutex // held for the duration of an in-flight onExpire call
}

// New creates a Dog that calls onExpire, in its own goroutine, duration
// after the most recent Start or Poke call, unless Cancel or another Poke
// intervenes first.
func New(duration time.Duration, onExpire func()) *Dog {
	return &Dog{duration: duration, onExpire: onExpire}
}

func (d *Dog) fire() {
	d.firing.Lock()
	defer d.firing.Unlock()
	d.onExpire()
}

// Start arms the dog, replacing any timer already running.
func (d *Dog) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.fire)
}

// Poke resets an already-armed dog's deadline without invoking onExpire,
// arming it for the first time if it was not already running.
func (d *Dog) Poke() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		d.timer = time.AfterFunc(d.duration, d.fire)
		return
	}
	d.timer.Reset(d.duration)
}

// Cancel disarms the dog. If an expire callback is already running, Cancel
// blocks until it completes before returning.
func (d *Dog) Cancel() {
	d.mu.Lock()
	t := d.timer
	d.timer = nil
	d.mu.Unlock()
	if t == nil {
		return
	}
	if !t.Stop() {
		// The timer already fired (or is about to); wait for fire to finish
		// running onExpire before returning, as promised above.
		d.firing.Lock()
		d.firing.Unlock()
	}
}
