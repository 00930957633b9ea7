// Package wire implements the on-the-wire framing for the Channel Access
// virtual circuit protocol: the message header (short and extended forms),
// command codes, data type codes, and the minor-version gates that decide
// which optional requests a negotiated circuit may use.
package wire

// Command codes, as carried in the header's cmmd field. Only the commands
// this client originates are named; server-to-client commands the circuit
// must recognize while parsing incoming traffic are named too, but this
// package does not attempt to enumerate the full protocol.
const (
	CmdVersion       = uint16(0)
	CmdEventAdd      = uint16(1)
	CmdEventCancel   = uint16(2)
	CmdRead          = uint16(3)
	CmdWrite         = uint16(4)
	CmdSearch        = uint16(6)
	CmdEventsOff     = uint16(8)
	CmdEventsOn      = uint16(9)
	CmdReadNotify    = uint16(15)
	CmdClearChannel  = uint16(12)
	CmdException     = uint16(11)
	CmdClaimCIU      = uint16(18)
	CmdClaimCIUReply = uint16(18)
	CmdWriteNotify   = uint16(19)
	CmdClientName    = uint16(20)
	CmdHostName      = uint16(21)
	CmdAccessRights  = uint16(22)
	CmdEcho          = uint16(23)
)

// DBR (data base request) field type codes. Only the numeric scalar types
// and STRING, which this circuit's request APIs actually serialize, are
// named.
const (
	DBRString = uint16(0)
	DBRInt16  = uint16(1) // aka DBR_SHORT/DBR_ENUM family member
	DBRFloat  = uint16(2)
	DBREnum   = uint16(3)
	DBRChar   = uint16(4)
	DBRInt32  = uint16(5) // DBR_LONG
	DBRDouble = uint16(6)
)

// dbrSize gives the wire size in bytes of a single element of the given
// DBR type. dbr_type_ok in the original validates against this table before
// any payload is serialized.
var dbrSize = map[uint16]int{
	DBRString: 40,
	DBRInt16:  2,
	DBRFloat:  4,
	DBREnum:   2,
	DBRChar:   1,
	DBRInt32:  4,
	DBRDouble: 8,
}

// DBRTypeOK reports whether t is a data type this circuit knows how to
// serialize, mirroring the original's dbr_type_ok gate in
// insert_request_with_payload.
func DBRTypeOK(t uint16) bool {
	_, ok := dbrSize[t]
	return ok
}

// ElementSize returns the wire size in bytes of one element of DBR type t.
// Callers must check DBRTypeOK first.
func ElementSize(t uint16) int {
	return dbrSize[t]
}

// Protocol-wide limits and minor version floors. CAMinorProtocolRevision is
// the minor version this client announces in its own VERSION frame.
const (
	// CAMinorProtocolRevision is the minor protocol version this
	// implementation announces and mirrors in CLAIM_CIU.available.
	CAMinorProtocolRevision = 13

	// ExtendedHeaderSentinel marks a short-form postsize/count field as
	// "see the extended header that follows".
	ExtendedHeaderSentinel = uint16(0xFFFF)

	// MaxStringSize bounds a single DBR_STRING element, including its
	// terminating NUL.
	MaxStringSize = 40

	// ShortHeaderSize is the length in bytes of the fixed-form header.
	ShortHeaderSize = 16
	// ExtensionSize is the length in bytes of the extended-header
	// continuation (postsize, count as u32).
	ExtensionSize = 8
	// Alignment is the byte boundary every payload, including its zero
	// padding, is aligned to.
	Alignment = 8
)

// Minor-version floors gating optional requests, named after the macros
// they replace in the original implementation (CA_V41, CA_V42, ...).
const (
	v41HostNameFloor     = 1
	v42ExtendedReadFloor = 2
	v43EchoFloor         = 3
	v44ClaimNameFloor    = 4
	v49ExtendedHdrFloor  = 9
)

// AtLeastV41 reports whether minor announces host/client-name support.
func AtLeastV41(minor uint16) bool { return minor >= v41HostNameFloor }

// AtLeastV42 reports whether minor announces the v42 extended-read floor.
func AtLeastV42(minor uint16) bool { return minor >= v42ExtendedReadFloor }

// AtLeastV43 reports whether minor announces ECHO support.
func AtLeastV43(minor uint16) bool { return minor >= v43EchoFloor }

// AtLeastV44 reports whether minor announces create_channel-with-name
// support.
func AtLeastV44(minor uint16) bool { return minor >= v44ClaimNameFloor }

// AtLeastV49 reports whether minor announces extended-header support.
func AtLeastV49(minor uint16) bool { return minor >= v49ExtendedHdrFloor }
