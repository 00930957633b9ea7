package wire

import (
	"encoding/binary"
	"errors"
)

// ErrOutOfBounds is returned when a header cannot be represented even in
// extended form (the caller's v49Ok gate was false but the sizes demand
// it), mirroring the original's OutOfBounds fault.
var ErrOutOfBounds = errors.New("wire: payload or element count exceeds protocol limits")

// Header is the decoded form of a CA message header: six fixed fields,
// always present, whose postsize/count are either the short-form values
// directly or (when the short form carries the extended-header sentinel)
// overridden by a following 8-byte extension.
type Header struct {
	Cmd       uint16
	PostSize  uint32
	DataType  uint16
	Count     uint32
	CID       uint32
	Available uint32

	// Extended records whether this header was carried with the
	// extended-header continuation. DecodeExtension sets it and tests read
	// it; EncodeHeader ignores it and decides the form from the sizes.
	Extended bool
}

// byteOrder is the wire byte order for every multi-byte field in the
// protocol: network (big-endian).
var byteOrder = binary.BigEndian

// EncodeHeader appends the wire representation of h to dst and returns the
// extended slice. It chooses the short or extended form itself: callers
// supply the true PostSize/Count and EncodeHeader decides whether those
// values fit in the short 16-bit fields.
//
// v49Ok gates whether the extended form may be used at all; if the sizes
// require it and v49Ok is false, ErrOutOfBounds is returned.
func EncodeHeader(dst []byte, h Header, v49Ok bool) ([]byte, error) {
	shortFits := h.PostSize < uint32(ExtendedHeaderSentinel) && h.Count < uint32(ExtendedHeaderSentinel)

	if shortFits {
		return appendShort(dst, h.Cmd, uint16(h.PostSize), h.DataType, uint16(h.Count), h.CID, h.Available), nil
	}
	if !v49Ok {
		return dst, ErrOutOfBounds
	}
	dst = appendShort(dst, h.Cmd, ExtendedHeaderSentinel, h.DataType, 0, h.CID, h.Available)
	var ext [ExtensionSize]byte
	byteOrder.PutUint32(ext[0:4], h.PostSize)
	byteOrder.PutUint32(ext[4:8], h.Count)
	return append(dst, ext[:]...), nil
}

func appendShort(dst []byte, cmd, postsize, dtype, count uint16, cid, available uint32) []byte {
	var b [ShortHeaderSize]byte
	byteOrder.PutUint16(b[0:2], cmd)
	byteOrder.PutUint16(b[2:4], postsize)
	byteOrder.PutUint16(b[4:6], dtype)
	byteOrder.PutUint16(b[6:8], count)
	byteOrder.PutUint32(b[8:12], cid)
	byteOrder.PutUint32(b[12:16], available)
	return append(dst, b[:]...)
}

// DecodeShort parses the fixed 16-byte short form out of b, which must
// contain at least ShortHeaderSize bytes. It does not resolve the
// extended-header continuation; callers check NeedsExtension and, if true,
// feed the following 8 bytes to DecodeExtension.
func DecodeShort(b []byte) Header {
	_ = b[ShortHeaderSize-1] // bounds check hint, mirrors the caller's precondition
	h := Header{
		Cmd:       byteOrder.Uint16(b[0:2]),
		DataType:  byteOrder.Uint16(b[4:6]),
		CID:       byteOrder.Uint32(b[8:12]),
		Available: byteOrder.Uint32(b[12:16]),
	}
	h.PostSize = uint32(byteOrder.Uint16(b[2:4]))
	h.Count = uint32(byteOrder.Uint16(b[6:8]))
	return h
}

// NeedsExtension reports whether a header decoded by DecodeShort carries
// the extended-header sentinel and must be completed by DecodeExtension.
func NeedsExtension(h Header) bool {
	return h.PostSize == uint32(ExtendedHeaderSentinel) && h.Count == 0
}

// DecodeExtension completes a header previously decoded by DecodeShort,
// overriding PostSize and Count with the 8-byte extension in b (which must
// contain at least ExtensionSize bytes).
func DecodeExtension(h Header, b []byte) Header {
	_ = b[ExtensionSize-1]
	h.PostSize = byteOrder.Uint32(b[0:4])
	h.Count = byteOrder.Uint32(b[4:8])
	h.Extended = true
	return h
}

// PaddedSize rounds n up to the next multiple of Alignment, the size every
// payload occupies on the wire once its zero padding is included.
func PaddedSize(n int) int {
	if rem := n % Alignment; rem != 0 {
		return n + (Alignment - rem)
	}
	return n
}
