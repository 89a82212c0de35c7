package netlinkw

import (
	"encoding/binary"
	"testing"

	"golang.org/x/sys/unix"
)

func TestBuilderBasicMessage(t *testing.T) {
	b := NewBuilder()
	b.Begin(unix.RTM_GETLINK, unix.NLM_F_DUMP, 7)

	msg, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	if len(msg) != nlmsgHdrLen {
		t.Fatalf("expected header-only message of %d bytes, got %d", nlmsgHdrLen, len(msg))
	}

	gotLen := binary.LittleEndian.Uint32(msg[0:4])
	if int(gotLen) != len(msg) {
		t.Fatalf("nlmsg_len = %d, want %d", gotLen, len(msg))
	}
	gotType := binary.LittleEndian.Uint16(msg[4:6])
	if gotType != unix.RTM_GETLINK {
		t.Fatalf("nlmsg_type = %d, want %d", gotType, unix.RTM_GETLINK)
	}
	gotFlags := binary.LittleEndian.Uint16(msg[6:8])
	if gotFlags&unix.NLM_F_REQUEST == 0 {
		t.Fatal("NLM_F_REQUEST was not set")
	}
	if gotFlags&unix.NLM_F_DUMP == 0 {
		t.Fatal("caller-supplied NLM_F_DUMP flag was dropped")
	}
	gotSeq := binary.LittleEndian.Uint32(msg[8:12])
	if gotSeq != 7 {
		t.Fatalf("nlmsg_seq = %d, want 7", gotSeq)
	}
}

func TestBuilderLeafAttribute(t *testing.T) {
	b := NewBuilder()
	b.Begin(unix.RTM_NEWLINK, 0, 1)

	if err := b.PutAttr(unix.IFLA_IFNAME, []byte("veth0\x00")); err != nil {
		t.Fatal(err)
	}

	msg, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	attr := msg[nlmsgHdrLen:]
	rtaLen := binary.LittleEndian.Uint16(attr[0:2])
	rtaType := binary.LittleEndian.Uint16(attr[2:4])
	if rtaType != unix.IFLA_IFNAME {
		t.Fatalf("rta_type = %d, want %d", rtaType, unix.IFLA_IFNAME)
	}
	wantLen := rtaHdrLen + len("veth0\x00")
	if int(rtaLen) != wantLen {
		t.Fatalf("rta_len = %d, want %d", rtaLen, wantLen)
	}

	// message must be padded to a 4-byte boundary
	if len(msg)%4 != 0 {
		t.Fatalf("message length %d not 4-byte aligned", len(msg))
	}
}

func TestBuilderNestedAttributes(t *testing.T) {
	b := NewBuilder()
	b.Begin(unix.RTM_NEWLINK, 0, 1)

	if err := b.PushAttr(unix.IFLA_LINKINFO); err != nil {
		t.Fatal(err)
	}
	if err := b.PutAttr(unix.IFLA_INFO_KIND, []byte("veth\x00")); err != nil {
		t.Fatal(err)
	}
	if err := b.PushAttr(unix.IFLA_INFO_DATA); err != nil {
		t.Fatal(err)
	}
	if err := b.PutAttr(1 /* VETH_INFO_PEER */, []byte{0, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := b.PopAttr(); err != nil { // INFO_DATA
		t.Fatal(err)
	}
	if err := b.PopAttr(); err != nil { // LINKINFO
		t.Fatal(err)
	}

	msg, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	outer := msg[nlmsgHdrLen:]
	outerLen := binary.LittleEndian.Uint16(outer[0:2])
	if int(outerLen) != len(outer) {
		t.Fatalf("outer rta_len = %d, want %d (no trailing siblings)", outerLen, len(outer))
	}
}

func TestBuilderRejectsUnpoppedAttribute(t *testing.T) {
	b := NewBuilder()
	b.Begin(unix.RTM_NEWLINK, 0, 1)
	if err := b.PushAttr(unix.IFLA_LINKINFO); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Bytes(); err == nil {
		t.Fatal("expected error for unpopped attribute")
	}
}

func TestBuilderRejectsPopWithoutPush(t *testing.T) {
	b := NewBuilder()
	b.Begin(unix.RTM_NEWLINK, 0, 1)
	if err := b.PopAttr(); err == nil {
		t.Fatal("expected error popping with no open attribute")
	}
}

func TestBuilderRejectsExcessiveNesting(t *testing.T) {
	b := NewBuilder()
	b.Begin(unix.RTM_NEWLINK, 0, 1)
	for i := 0; i < maxNestDepth; i++ {
		if err := b.PushAttr(uint16(i + 1)); err != nil {
			t.Fatalf("unexpected error at depth %d: %v", i, err)
		}
	}
	if err := b.PushAttr(99); err == nil {
		t.Fatal("expected error exceeding max nesting depth")
	}
}

func TestBuilderResetReusable(t *testing.T) {
	b := NewBuilder()
	b.Begin(unix.RTM_NEWLINK, 0, 1)
	_ = b.PutAttr(unix.IFLA_IFNAME, []byte("a\x00"))
	b.Reset()

	if _, err := b.Bytes(); err == nil {
		t.Fatal("expected error calling Bytes before Begin after Reset")
	}

	b.Begin(unix.RTM_DELLINK, 0, 2)
	msg, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if len(msg) != nlmsgHdrLen {
		t.Fatalf("expected clean header-only message after reset, got %d bytes", len(msg))
	}
}
