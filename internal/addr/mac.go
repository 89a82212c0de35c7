package addr

import (
	"encoding/binary"
	"fmt"
)

// MAC is a 48-bit Ethernet hardware address.
type MAC [6]byte

// String renders the MAC in standard colon-hex notation.
func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsZero reports whether m is the reserved all-zero address.
func (m MAC) IsZero() bool {
	return m == MAC{}
}

func macToUint64(m MAC) uint64 {
	var buf [8]byte
	copy(buf[2:], m[:])
	return binary.BigEndian.Uint64(buf[:])
}

func uint64ToMAC(v uint64) MAC {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	var m MAC
	copy(m[:], buf[2:])
	return m
}

// MACIterator hands out consecutive MAC addresses starting from a seed,
// skipping the all-zero address and detecting 48-bit counter rollover.
type MACIterator struct {
	current uint64
	wrapped bool
}

// NewMACIterator returns an iterator that will first yield start.
func NewMACIterator(start MAC) *MACIterator {
	return &MACIterator{current: macToUint64(start)}
}

const mac48Max = uint64(1)<<48 - 1

// Next returns the next MAC address, skipping the all-zero address. Once
// the 48-bit counter has passed ff:ff:ff:ff:ff:ff it errors, whatever
// address the iterator started from.
func (it *MACIterator) Next() (MAC, error) {
	if it.wrapped {
		return MAC{}, fmt.Errorf("addr: mac address space exhausted")
	}

	for {
		m := uint64ToMAC(it.current)

		if it.current == mac48Max {
			it.current = 0
			it.wrapped = true
		} else {
			it.current++
		}

		if m.IsZero() {
			if it.wrapped {
				return MAC{}, fmt.Errorf("addr: mac address space exhausted")
			}
			continue
		}

		return m, nil
	}
}

// NextBatch returns n consecutive MAC addresses as a single allocation.
func (it *MACIterator) NextBatch(n int) ([]MAC, error) {
	out := make([]MAC, 0, n)
	for i := 0; i < n; i++ {
		m, err := it.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
