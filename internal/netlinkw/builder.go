// Package netlinkw is a minimal streaming encoder/decoder over
// AF_NETLINK/NETLINK_ROUTE. It builds rtnetlink request messages with
// nested attributes (back-patching rta_len on pop, the way the kernel
// expects), sends them, and demultiplexes the response stream by sequence
// number. Callers create a Builder per request, and every Socket carries
// its own receive buffer, so a worker process holds one buffer per open
// Socket. Neither type is safe for concurrent use: building a message and
// sending it must never be interleaved across goroutines.
package netlinkw

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	nlmsgHdrLen = 16 // sizeof(struct nlmsghdr)
	rtaHdrLen   = 4  // sizeof(struct rtattr)
	alignTo     = 4

	// maxNestDepth bounds the attribute stack; attempting to nest more
	// deeply than this is a programming error, not a runtime condition.
	maxNestDepth = 10
)

func align(n int) int {
	return (n + alignTo - 1) &^ (alignTo - 1)
}

// Builder encodes a single rtnetlink request message, including nested
// attributes, into a growable byte buffer.
type Builder struct {
	buf        []byte
	attrStack  [maxNestDepth]int
	attrDepth  int
	headerOpen bool
}

// NewBuilder returns an empty Builder ready for Begin.
func NewBuilder() *Builder {
	return &Builder{buf: make([]byte, 0, 256)}
}

// Reset discards any in-progress message, allowing the Builder to be
// reused for the next request.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.attrDepth = 0
	b.headerOpen = false
}

// Begin starts a new nlmsghdr with the given type. REQUEST and the
// caller-supplied flags are ORed in automatically; seq is the sequence
// number the caller will match the response against.
func (b *Builder) Begin(msgType uint16, flags uint16, seq uint32) {
	b.Reset()
	b.headerOpen = true

	var hdr [nlmsgHdrLen]byte
	// nlmsg_len is back-patched in Bytes().
	binary.LittleEndian.PutUint16(hdr[4:6], msgType)
	binary.LittleEndian.PutUint16(hdr[6:8], flags|unix.NLM_F_REQUEST)
	binary.LittleEndian.PutUint32(hdr[8:12], seq)
	binary.LittleEndian.PutUint32(hdr[12:16], 0) // pid: let the kernel fill it in

	b.buf = append(b.buf, hdr[:]...)
}

// Append writes raw bytes (e.g. a fixed-size family struct such as ifinfomsg
// or ifaddrmsg) directly into the message body.
func (b *Builder) Append(p []byte) {
	b.buf = append(b.buf, p...)
}

// PutUint32 appends a little-endian uint32.
func (b *Builder) PutUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.Append(tmp[:])
}

// PadTo4 appends zero bytes until the buffer length is 4-byte aligned.
// Used after fixed headers shorter than a multiple of 4.
func (b *Builder) PadTo4() {
	for len(b.buf)%alignTo != 0 {
		b.buf = append(b.buf, 0)
	}
}

// PushAttr opens a nested rta attribute of the given type, recording the
// header offset so PopAttr can back-patch its length. Returns an error if
// the nesting depth bound is exceeded.
func (b *Builder) PushAttr(attrType uint16) error {
	if b.attrDepth >= maxNestDepth {
		return fmt.Errorf("netlinkw: attribute nesting exceeds bound of %d", maxNestDepth)
	}

	offset := len(b.buf)
	var hdr [rtaHdrLen]byte
	binary.LittleEndian.PutUint16(hdr[2:4], attrType)
	b.buf = append(b.buf, hdr[:]...)

	b.attrStack[b.attrDepth] = offset
	b.attrDepth++
	return nil
}

// PutAttr appends a complete leaf attribute (type + value) in one call.
func (b *Builder) PutAttr(attrType uint16, value []byte) error {
	if err := b.PushAttr(attrType); err != nil {
		return err
	}
	b.Append(value)
	return b.PopAttr()
}

// PopAttr closes the most recently opened attribute, back-patching its
// rta_len and writing alignment padding. Popping with no open attribute is
// a programming error.
func (b *Builder) PopAttr() error {
	if b.attrDepth == 0 {
		return fmt.Errorf("netlinkw: PopAttr with no open attribute")
	}
	b.attrDepth--
	offset := b.attrStack[b.attrDepth]

	rtaLen := len(b.buf) - offset
	binary.LittleEndian.PutUint16(b.buf[offset:offset+2], uint16(rtaLen))

	b.PadTo4()
	return nil
}

// Bytes finalises nlmsg_len and returns the encoded message. It is a
// programming error to call Bytes with unpopped attributes.
func (b *Builder) Bytes() ([]byte, error) {
	if b.attrDepth != 0 {
		return nil, fmt.Errorf("netlinkw: Bytes called with %d unpopped attribute(s)", b.attrDepth)
	}
	if !b.headerOpen {
		return nil, fmt.Errorf("netlinkw: Bytes called before Begin")
	}

	binary.LittleEndian.PutUint32(b.buf[0:4], uint32(len(b.buf)))
	return b.buf, nil
}
