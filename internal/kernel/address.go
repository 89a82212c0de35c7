package kernel

import (
	"encoding/binary"

	"github.com/netmirage/netmirage-core/internal/addr"
	"github.com/netmirage/netmirage-core/internal/netlinkw"
	"golang.org/x/sys/unix"
)

// AddAddress adds an IPv4 address to an interface, with an optional
// broadcast address (zero value means "none").
func (k *Interface) AddAddress(ns *Namespace, ifIndex int, ip addr.IPv4, prefixLen uint8, broadcast addr.IPv4) error {
	b := netlinkw.NewBuilder()
	seq := ns.Netlink().NextSeq()
	b.Begin(unix.RTM_NEWADDR, unix.NLM_F_CREATE|unix.NLM_F_REPLACE|unix.NLM_F_ACK, seq)

	// struct ifaddrmsg
	var ifa [8]byte
	ifa[0] = unix.AF_INET
	ifa[1] = prefixLen
	binary.LittleEndian.PutUint32(ifa[4:8], uint32(ifIndex))
	b.Append(ifa[:])

	ipBytes := ipToBytes(ip)
	if err := b.PutAttr(unix.IFA_LOCAL, ipBytes); err != nil {
		return err
	}
	if err := b.PutAttr(unix.IFA_ADDRESS, ipBytes); err != nil {
		return err
	}
	if broadcast != 0 {
		if err := b.PutAttr(unix.IFA_BROADCAST, ipToBytes(broadcast)); err != nil {
			return err
		}
	}

	return ns.Netlink().Send(b, seq, true, nil)
}

// DeleteAddress removes an IPv4 address from an interface.
func (k *Interface) DeleteAddress(ns *Namespace, ifIndex int, ip addr.IPv4, prefixLen uint8) error {
	b := netlinkw.NewBuilder()
	seq := ns.Netlink().NextSeq()
	b.Begin(unix.RTM_DELADDR, unix.NLM_F_ACK, seq)

	var ifa [8]byte
	ifa[0] = unix.AF_INET
	ifa[1] = prefixLen
	binary.LittleEndian.PutUint32(ifa[4:8], uint32(ifIndex))
	b.Append(ifa[:])

	if err := b.PutAttr(unix.IFA_LOCAL, ipToBytes(ip)); err != nil {
		return err
	}

	return ns.Netlink().Send(b, seq, true, nil)
}

// EnumerateAddresses dumps every IPv4 address known to the namespace,
// invoking fn once per address found.
func (k *Interface) EnumerateAddresses(ns *Namespace, fn func(ifIndex int, ip addr.IPv4, prefixLen uint8) error) error {
	b := netlinkw.NewBuilder()
	seq := ns.Netlink().NextSeq()
	b.Begin(unix.RTM_GETADDR, unix.NLM_F_DUMP, seq)

	var ifa [8]byte
	ifa[0] = unix.AF_INET
	b.Append(ifa[:])

	var fnErr error
	err := ns.Netlink().Send(b, seq, true, func(msgType uint16, data []byte) error {
		if msgType != unix.RTM_NEWADDR || len(data) < 8 {
			return nil
		}
		prefixLen := data[1]
		ifIndex := int(binary.LittleEndian.Uint32(data[4:8]))

		for rest := data[8:]; len(rest) >= rtaHdrLenLocal(); {
			attrLen := int(binary.LittleEndian.Uint16(rest[0:2]))
			attrType := binary.LittleEndian.Uint16(rest[2:4])
			if attrLen < rtaHdrLenLocal() || attrLen > len(rest) {
				break
			}
			value := rest[rtaHdrLenLocal():attrLen]
			if attrType == unix.IFA_LOCAL && len(value) == 4 {
				ip := bytesToIP(value)
				if fnErr = fn(ifIndex, ip, prefixLen); fnErr != nil {
					return fnErr
				}
			}
			adv := (attrLen + 3) &^ 3
			rest = rest[adv:]
		}
		return nil
	})
	if err != nil {
		return err
	}
	return fnErr
}

func rtaHdrLenLocal() int { return 4 }

func ipToBytes(ip addr.IPv4) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(ip))
	return b[:]
}

func bytesToIP(b []byte) addr.IPv4 {
	return addr.IPv4(binary.BigEndian.Uint32(b))
}
