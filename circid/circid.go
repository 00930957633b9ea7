// Package circid derives a stable, globally-unique identifier for a
// Channel Access virtual circuit from the underlying TCP socket, so that
// log lines and metrics emitted by the two circuit goroutines (and by any
// external fd-event subscriber) can be correlated back to the same circuit
// even across reconnects.
package circid

import (
	"fmt"
	"net"

	"github.com/m-lab/uuid"
)

// ID is the textual identifier assigned to one circuit's lifetime. It is
// derived from the connected socket's SO_COOKIE, which the kernel
// guarantees is unique for the lifetime of the host (see uuid.FromTCPConn),
// prefixed so it reads unambiguously in logs shared with other subsystems.
type ID string

// FromTCPConn derives a circuit ID from an already-connected TCP socket.
// It must be called after the three-way handshake completes, since the
// socket cookie is only meaningful for an established connection.
func FromTCPConn(conn *net.TCPConn) (ID, error) {
	raw, err := uuid.FromTCPConn(conn)
	if err != nil {
		return "", fmt.Errorf("circid: could not derive id from socket: %w", err)
	}
	return ID("circ_" + raw), nil
}

// String implements fmt.Stringer so an ID can be used directly as a log
// field or a prometheus label value.
func (id ID) String() string {
	return string(id)
}
