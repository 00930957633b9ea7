package watchdog

import "time"

// ConnectDog is armed before connect() and before each send system call in
// the original design; in this port a circuit uses one ConnectDog across
// the initial connect attempt only. Expiry while armed marks the socket
// unhealthy and triggers a forced (abortive) shutdown of the circuit.
type ConnectDog struct{ *Dog }

// NewConnectDog creates a ConnectDog with the given connection timeout.
func NewConnectDog(timeout time.Duration, onExpire func()) *ConnectDog {
	return &ConnectDog{New(timeout, onExpire)}
}

// SendDog is armed before each send and disarmed on success. Expiry marks
// the socket unhealthy and triggers a forced shutdown, the same as
// ConnectDog.
type SendDog struct{ *Dog }

// NewSendDog creates a SendDog using the same deadline as the circuit's
// configured send timeout.
func NewSendDog(timeout time.Duration, onExpire func()) *SendDog {
	return &SendDog{New(timeout, onExpire)}
}

// RecvDog is poked by every successful receive and by send-backlog
// progress checks; its expiry indicates peer silence and schedules a
// graceful shutdown rather than an abortive one.
type RecvDog struct{ *Dog }

// NewRecvDog creates a RecvDog using the expected-activity deadline.
func NewRecvDog(timeout time.Duration, onExpire func()) *RecvDog {
	return &RecvDog{New(timeout, onExpire)}
}

// ConnectNotify arms the RecvDog on the Connecting -> Connected
// transition.
func (r *RecvDog) ConnectNotify() {
	r.Start()
}

// MessageArrivalNotify pokes the RecvDog on every successful receive. It
// must be called without the primary lock held: Cancel (invoked from
// shutdown paths) can block on an in-flight expire callback that itself
// needs both locks.
func (r *RecvDog) MessageArrivalNotify() {
	r.Poke()
}

// SendBacklogProgressNotify pokes the RecvDog when unacknowledged send
// bytes exceed the socket's send buffer size, treating outbound progress
// as evidence the peer is still alive even absent inbound traffic.
func (r *RecvDog) SendBacklogProgressNotify() {
	r.Poke()
}
