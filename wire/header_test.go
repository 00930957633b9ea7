package wire_test

import (
	"testing"

	"github.com/go-test/deep"

	"github.com/channelaccess/catcp/wire"
)

func TestEncodeDecodeShortRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		h    wire.Header
	}{
		{"version", wire.Header{Cmd: wire.CmdVersion, Count: wire.CAMinorProtocolRevision}},
		{"write", wire.Header{Cmd: wire.CmdWrite, PostSize: 32, DataType: wire.DBRDouble, Count: 4, CID: 7, Available: 7}},
		{"zero-postsize", wire.Header{Cmd: wire.CmdEventsOff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := wire.EncodeHeader(nil, tt.h, true)
			if err != nil {
				t.Fatalf("EncodeHeader: %v", err)
			}
			if len(buf) != wire.ShortHeaderSize {
				t.Fatalf("expected short form, got %d bytes", len(buf))
			}
			got := wire.DecodeShort(buf)
			if wire.NeedsExtension(got) {
				t.Fatalf("short-form message incorrectly flagged as needing extension")
			}
			if diff := deep.Equal(got, tt.h); diff != nil {
				t.Error(diff)
			}
		})
	}
}

func TestEncodeDecodeExtendedRoundTrip(t *testing.T) {
	h := wire.Header{Cmd: wire.CmdWrite, PostSize: 0x80000, DataType: wire.DBRInt32, Count: 0x20000, CID: 3, Available: 3}
	buf, err := wire.EncodeHeader(nil, h, true)
	if err != nil {
		t.Fatalf("EncodeHeader: %v", err)
	}
	if len(buf) != wire.ShortHeaderSize+wire.ExtensionSize {
		t.Fatalf("expected extended form, got %d bytes", len(buf))
	}
	short := wire.DecodeShort(buf[:wire.ShortHeaderSize])
	if short.PostSize != uint32(wire.ExtendedHeaderSentinel) || short.Count != 0 {
		t.Fatalf("short form should carry the sentinel, got postsize=%d count=%d", short.PostSize, short.Count)
	}
	if !wire.NeedsExtension(short) {
		t.Fatal("expected NeedsExtension to report true")
	}
	full := wire.DecodeExtension(short, buf[wire.ShortHeaderSize:])
	if !full.Extended {
		t.Error("DecodeExtension should mark the header as Extended")
	}
	full.Extended = false // asserted separately above
	want := h
	want.Extended = false
	if diff := deep.Equal(full, want); diff != nil {
		t.Error(diff)
	}
}

func TestEncodeHeaderOutOfBoundsWithoutV49(t *testing.T) {
	h := wire.Header{Cmd: wire.CmdWrite, PostSize: 0x80000, Count: 0x20000}
	if _, err := wire.EncodeHeader(nil, h, false); err != wire.ErrOutOfBounds {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestPaddedSize(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, 0},
		{1, 8},
		{7, 8},
		{8, 8},
		{9, 16},
		{32, 32},
	}
	for _, tt := range tests {
		if got := wire.PaddedSize(tt.n); got != tt.want {
			t.Errorf("PaddedSize(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestVersionGates(t *testing.T) {
	if wire.AtLeastV41(0) {
		t.Error("v0 should not satisfy v41 floor")
	}
	if !wire.AtLeastV41(1) || !wire.AtLeastV44(13) || !wire.AtLeastV49(13) {
		t.Error("current protocol revision should satisfy all floors")
	}
	if wire.AtLeastV49(8) {
		t.Error("v8 should not satisfy the v49 extended-header floor")
	}
}

func TestDBRTypeOK(t *testing.T) {
	if !wire.DBRTypeOK(wire.DBRDouble) || !wire.DBRTypeOK(wire.DBRString) {
		t.Error("known DBR types must validate")
	}
	if wire.DBRTypeOK(0xBEEF) {
		t.Error("unknown DBR type must not validate")
	}
	if wire.ElementSize(wire.DBRDouble) != 8 {
		t.Errorf("DBR_DOUBLE element size = %d, want 8", wire.ElementSize(wire.DBRDouble))
	}
}
