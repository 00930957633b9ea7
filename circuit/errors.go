package circuit

import "errors"

// Request-API faults, the taxonomy named in the fault handling design.
var (
	ErrNotConnected         = errors.New("circuit: channel is not connected")
	ErrUnsupportedByService = errors.New("circuit: request unsupported by the negotiated protocol version")
	ErrBadType              = errors.New("circuit: unsupported DBR type")
	ErrOutOfBounds          = errors.New("circuit: element count exceeds native count")
	ErrMsgBodyCacheTooSmall = errors.New("circuit: response would exceed the peer-reported large-buffer size")
)
