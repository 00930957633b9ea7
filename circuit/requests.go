package circuit

import (
	"encoding/binary"
	"log"
	"math"

	"github.com/channelaccess/catcp/metrics"
	"github.com/channelaccess/catcp/wire"
)

func putF32(dst []byte, v float32) {
	binary.BigEndian.PutUint32(dst, math.Float32bits(v))
}

// insertRequestHeaderLocked implements HeaderCodec.insert_request_header
// (spec 4.D): it chooses the short or extended form based on payloadSize
// and nElem, or returns ErrOutOfBounds if the extended form would be
// required but v49Ok is false. The header is written directly into the
// send queue's open message; callers must have called BeginMsg first.
func (c *Circuit) insertRequestHeaderLocked(cmd uint16, payloadSize int, dtype uint16, nElem uint32, cid, reqDep uint32, v49Ok bool) error {
	h := wire.Header{
		Cmd:       cmd,
		PostSize:  uint32(payloadSize),
		DataType:  dtype,
		Count:     nElem,
		CID:       cid,
		Available: reqDep,
	}
	buf, err := wire.EncodeHeader(nil, h, v49Ok)
	if err != nil {
		return err
	}
	c.sendQ.PushBytes(buf)
	return nil
}

// insertRequestWithPayloadLocked implements
// HeaderCodec.insert_request_with_payload: it validates dtype, computes
// the serialized payload size (with the DBR_STRING/n_elem==1 strlen
// optimization), emits the header, the payload, and zero padding up to the
// 8-byte alignment boundary.
func (c *Circuit) insertRequestWithPayloadLocked(cmd uint16, dtype uint16, nElem uint32, cid, reqDep uint32, payload []byte, v49Ok bool) error {
	if !wire.DBRTypeOK(dtype) {
		return ErrBadType
	}
	size := len(payload)
	if dtype == wire.DBRString && nElem == 1 {
		n := 0
		for n < len(payload) && payload[n] != 0 {
			n++
		}
		if n+1 <= wire.MaxStringSize {
			size = n + 1
		} else {
			size = wire.MaxStringSize
		}
	}
	padded := wire.PaddedSize(size)

	c.sendQ.BeginMsg()
	if err := c.insertRequestHeaderLocked(cmd, padded, dtype, nElem, cid, reqDep, v49Ok); err != nil {
		c.sendQ.CommitMsg()
		return err
	}
	c.sendQ.PushBytes(payload[:size])
	if pad := padded - size; pad > 0 {
		c.sendQ.PushBytes(wire.ZeroPad(pad))
	}
	c.sendQ.CommitMsg()
	return nil
}

// flushRequestLocked nudges SendLoop to flush early if the queue has
// crossed its soft threshold; every request API calls this after
// committing its message.
func (c *Circuit) flushRequestLocked(justQueued int) {
	if c.sendQ.FlushEarlyThreshold(justQueued) {
		c.signalSendThreadFlush()
	}
}

func (c *Circuit) signalSendThreadFlush() {
	select {
	case c.sendThreadFlush <- struct{}{}:
	default:
	}
}

func (c *Circuit) requestVersionLocked() {
	c.sendQ.BeginMsg()
	c.insertRequestHeaderLocked(wire.CmdVersion, 0, c.cfg.Priority, wire.CAMinorProtocolRevision, 0, 0, true)
	c.sendQ.CommitMsg()
	c.flushRequestLocked(wire.ShortHeaderSize)
}

func (c *Circuit) requestHostNameLocked(hostName string) {
	if !wire.AtLeastV41(c.minorVersion) {
		return
	}
	payload := append([]byte(hostName), 0)
	c.insertRequestWithPayloadLocked(wire.CmdHostName, wire.DBRString, 1, 0, 0, payload, true)
	c.flushRequestLocked(len(payload) + wire.ShortHeaderSize)
}

func (c *Circuit) requestClientNameLocked(userName string) {
	if !wire.AtLeastV41(c.minorVersion) {
		return
	}
	payload := append([]byte(userName), 0)
	c.insertRequestWithPayloadLocked(wire.CmdClientName, wire.DBRString, 1, 0, 0, payload, true)
	c.flushRequestLocked(len(payload) + wire.ShortHeaderSize)
}

// enableFlowControlLocked queues CA_PROTO_EVENTS_OFF, used by SendLoop when
// it observes busyStateDetected diverge from flowControlActive.
func (c *Circuit) enableFlowControlLocked() {
	c.sendQ.BeginMsg()
	c.insertRequestHeaderLocked(wire.CmdEventsOff, 0, 0, 0, 0, 0, true)
	c.sendQ.CommitMsg()
	metrics.FlowControlToggleTotal.With(flowControlLabel("off")).Inc()
}

func (c *Circuit) disableFlowControlLocked() {
	c.sendQ.BeginMsg()
	c.insertRequestHeaderLocked(wire.CmdEventsOn, 0, 0, 0, 0, 0, true)
	c.sendQ.CommitMsg()
	metrics.FlowControlToggleTotal.With(flowControlLabel("on")).Inc()
}

func (c *Circuit) echoLocked() {
	if wire.AtLeastV43(c.minorVersion) {
		c.sendQ.BeginMsg()
		c.insertRequestHeaderLocked(wire.CmdEcho, 0, 0, 0, 0, 0, true)
		c.sendQ.CommitMsg()
		return
	}
	// Below the echo floor, a VERSION frame is sent as a NOOP surrogate.
	c.requestVersionLocked()
}

// Write queues a CA_PROTO_WRITE request addressed to sid (the server-side
// id, carried in the wire cid slot) with available carrying cid (the
// client-side channel id), matching spec §8 scenario 2; it fails
// ErrNotConnected if the circuit is not Connected.
func (c *Circuit) Write(cid, sid uint32, dtype uint16, nElem uint32, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return ErrNotConnected
	}
	if err := c.insertRequestWithPayloadLocked(wire.CmdWrite, dtype, nElem, sid, cid, payload, wire.AtLeastV49(c.minorVersion)); err != nil {
		return err
	}
	c.flushRequestLocked(len(payload) + wire.ShortHeaderSize)
	return nil
}

// WriteNotify queues a CA_PROTO_WRITE_NOTIFY request; it requires v41+.
func (c *Circuit) WriteNotify(cid, sid uint32, dtype uint16, nElem uint32, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return ErrNotConnected
	}
	if !wire.AtLeastV41(c.minorVersion) {
		return ErrUnsupportedByService
	}
	if err := c.insertRequestWithPayloadLocked(wire.CmdWriteNotify, dtype, nElem, sid, cid, payload, wire.AtLeastV49(c.minorVersion)); err != nil {
		return err
	}
	c.flushRequestLocked(len(payload) + wire.ShortHeaderSize)
	return nil
}

// ReadNotify queues a CA_PROTO_READ_NOTIFY request for nElem elements of
// dtype, failing ErrBadType, ErrOutOfBounds (nElem exceeds nativeCount), or
// ErrMsgBodyCacheTooSmall (the response would exceed the peer's
// large-buffer size).
func (c *Circuit) ReadNotify(cid, sid uint32, dtype uint16, nElem, nativeCount uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return ErrNotConnected
	}
	if !wire.DBRTypeOK(dtype) {
		return ErrBadType
	}
	if nElem > nativeCount {
		return ErrOutOfBounds
	}
	respSize := wire.ElementSize(dtype) * int(nElem)
	if respSize > c.ctx.LargeBufferSizeTCP() {
		return ErrMsgBodyCacheTooSmall
	}
	c.sendQ.BeginMsg()
	c.insertRequestHeaderLocked(wire.CmdReadNotify, 0, dtype, nElem, sid, cid, wire.AtLeastV49(c.minorVersion))
	c.sendQ.CommitMsg()
	c.flushRequestLocked(wire.ShortHeaderSize)
	return nil
}

// CreateChannel queues CA_PROTO_CLAIM_CIU for name, keyed by cid, with
// available mirroring CAMinorProtocolRevision (spec.md:183). With v44+ the
// channel name is carried as payload; below that floor, the caller is
// expected to already know the server-side id and the payload is empty.
func (c *Circuit) CreateChannel(cid uint32, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return ErrNotConnected
	}
	if wire.AtLeastV44(c.minorVersion) {
		payload := append([]byte(name), 0)
		padded := wire.PaddedSize(len(payload))
		c.sendQ.BeginMsg()
		c.insertRequestHeaderLocked(wire.CmdClaimCIU, padded, 0, 0, cid, wire.CAMinorProtocolRevision, true)
		c.sendQ.PushBytes(payload)
		if pad := padded - len(payload); pad > 0 {
			c.sendQ.PushBytes(wire.ZeroPad(pad))
		}
		c.sendQ.CommitMsg()
		c.flushRequestLocked(padded + wire.ShortHeaderSize)
		return nil
	}
	c.sendQ.BeginMsg()
	c.insertRequestHeaderLocked(wire.CmdClaimCIU, 0, 0, 0, cid, wire.CAMinorProtocolRevision, true)
	c.sendQ.CommitMsg()
	c.flushRequestLocked(wire.ShortHeaderSize)
	return nil
}

// ClearChannel queues CA_PROTO_CLEAR_CHANNEL, with cid carrying sid and
// available carrying cid, per spec 4.I.
func (c *Circuit) ClearChannel(cid, sid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return ErrNotConnected
	}
	c.sendQ.BeginMsg()
	c.insertRequestHeaderLocked(wire.CmdClearChannel, 0, 0, 0, sid, cid, true)
	c.sendQ.CommitMsg()
	c.flushRequestLocked(wire.ShortHeaderSize)
	return nil
}

// SubscriptionAdd queues CA_PROTO_EVENT_ADD with its 16-byte filter
// extension, addressed to sid with available carrying cid (the
// subscription's client-side id). mask is truncated to 16 bits; a
// truncation is logged once per circuit rather than per call.
func (c *Circuit) SubscriptionAdd(cid, sid uint32, dtype uint16, nElem uint32, low, high, to float32, mask uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return ErrNotConnected
	}
	if mask > 0xFFFF && !c.maskTruncationWarned {
		c.maskTruncationWarned = true
		log.Printf("circuit %s: subscription mask %#x truncated to 16 bits", c.id, mask)
	}
	ext := make([]byte, 0, 16)
	var fb [4]byte
	putF32(fb[:], low)
	ext = append(ext, fb[:]...)
	putF32(fb[:], high)
	ext = append(ext, fb[:]...)
	putF32(fb[:], to)
	ext = append(ext, fb[:]...)
	ext = append(ext, byte(mask>>8), byte(mask), 0, 0)

	c.sendQ.BeginMsg()
	c.insertRequestHeaderLocked(wire.CmdEventAdd, len(ext), dtype, nElem, sid, cid, true)
	c.sendQ.PushBytes(ext)
	c.sendQ.CommitMsg()
	c.flushRequestLocked(len(ext) + wire.ShortHeaderSize)
	return nil
}

// SubscriptionCancel queues CA_PROTO_EVENT_CANCEL with an empty payload,
// addressed to sid with available carrying cid.
func (c *Circuit) SubscriptionCancel(cid, sid uint32, dtype uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return ErrNotConnected
	}
	c.sendQ.BeginMsg()
	c.insertRequestHeaderLocked(wire.CmdEventCancel, 0, dtype, 0, sid, cid, true)
	c.sendQ.CommitMsg()
	c.flushRequestLocked(wire.ShortHeaderSize)
	return nil
}
