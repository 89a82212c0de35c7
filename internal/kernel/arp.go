package kernel

import (
	"encoding/binary"
	"errors"

	"github.com/netmirage/netmirage-core/internal/addr"
	"github.com/netmirage/netmirage-core/internal/netlinkw"
	"golang.org/x/sys/unix"
)

// ErrAgainNotCached is returned by ReadARPEntry when no ARP entry exists
// yet for the requested address; the caller is expected to trigger a
// warm-up (e.g. an ICMP echo) and retry.
var ErrAgainNotCached = errors.New("kernel: arp entry not yet cached")

const nudReachable = 0x02 // NUD_REACHABLE
const nudPermanent = 0x80 // NUD_PERMANENT

// AddStaticARPEntry installs a permanent ARP entry mapping ip to mac on
// ifIndex.
func (k *Interface) AddStaticARPEntry(ns *Namespace, ifIndex int, ip addr.IPv4, mac addr.MAC) error {
	b := netlinkw.NewBuilder()
	seq := ns.Netlink().NextSeq()
	b.Begin(unix.RTM_NEWNEIGH, unix.NLM_F_CREATE|unix.NLM_F_REPLACE|unix.NLM_F_ACK, seq)

	var ndm [12]byte
	ndm[0] = unix.AF_INET
	binary.LittleEndian.PutUint32(ndm[4:8], uint32(ifIndex))
	ndm[8] = nudPermanent
	b.Append(ndm[:])

	if err := b.PutAttr(unix.NDA_DST, ipToBytes(ip)); err != nil {
		return err
	}
	if err := b.PutAttr(unix.NDA_LLADDR, mac[:]); err != nil {
		return err
	}

	return ns.Netlink().Send(b, seq, true, nil)
}

// ReadARPEntry looks up the ARP entry for ip on ifIndex. It returns
// ErrAgainNotCached if no matching entry currently exists.
func (k *Interface) ReadARPEntry(ns *Namespace, ifIndex int, ip addr.IPv4) (addr.MAC, error) {
	b := netlinkw.NewBuilder()
	seq := ns.Netlink().NextSeq()
	b.Begin(unix.RTM_GETNEIGH, unix.NLM_F_DUMP, seq)

	var ndm [12]byte
	ndm[0] = unix.AF_INET
	b.Append(ndm[:])

	var found addr.MAC
	var ok bool
	err := ns.Netlink().Send(b, seq, true, func(msgType uint16, data []byte) error {
		if msgType != unix.RTM_NEWNEIGH || len(data) < 12 {
			return nil
		}
		entryIfIndex := int(binary.LittleEndian.Uint32(data[4:8]))
		if entryIfIndex != ifIndex {
			return nil
		}

		var gotIP addr.IPv4
		var gotMAC addr.MAC
		var haveIP, haveMAC bool

		for rest := data[12:]; len(rest) >= 4; {
			attrLen := int(binary.LittleEndian.Uint16(rest[0:2]))
			attrType := binary.LittleEndian.Uint16(rest[2:4])
			if attrLen < 4 || attrLen > len(rest) {
				break
			}
			value := rest[4:attrLen]
			switch attrType {
			case unix.NDA_DST:
				if len(value) == 4 {
					gotIP = bytesToIP(value)
					haveIP = true
				}
			case unix.NDA_LLADDR:
				if len(value) == 6 {
					copy(gotMAC[:], value)
					haveMAC = true
				}
			}
			adv := (attrLen + 3) &^ 3
			rest = rest[adv:]
		}

		if haveIP && haveMAC && gotIP == ip {
			found = gotMAC
			ok = true
		}
		return nil
	})
	if err != nil {
		return addr.MAC{}, err
	}
	if !ok {
		return addr.MAC{}, ErrAgainNotCached
	}
	return found, nil
}

// ReadLocalMAC reads the hardware address currently assigned to ifIndex.
func (k *Interface) ReadLocalMAC(ns *Namespace, ifIndex int) (addr.MAC, error) {
	b := netlinkw.NewBuilder()
	seq := ns.Netlink().NextSeq()
	b.Begin(unix.RTM_GETLINK, unix.NLM_F_DUMP, seq)

	var ifi [16]byte
	ifi[0] = unix.AF_UNSPEC
	b.Append(ifi[:])

	var found addr.MAC
	var ok bool
	err := ns.Netlink().Send(b, seq, true, func(msgType uint16, data []byte) error {
		if msgType != unix.RTM_NEWLINK || len(data) < 16 {
			return nil
		}
		entryIndex := int(binary.LittleEndian.Uint32(data[4:8]))
		if entryIndex != ifIndex {
			return nil
		}
		for rest := data[16:]; len(rest) >= 4; {
			attrLen := int(binary.LittleEndian.Uint16(rest[0:2]))
			attrType := binary.LittleEndian.Uint16(rest[2:4])
			if attrLen < 4 || attrLen > len(rest) {
				break
			}
			value := rest[4:attrLen]
			if attrType == unix.IFLA_ADDRESS && len(value) == 6 {
				copy(found[:], value)
				ok = true
			}
			adv := (attrLen + 3) &^ 3
			rest = rest[adv:]
		}
		return nil
	})
	if err != nil {
		return addr.MAC{}, err
	}
	if !ok {
		return addr.MAC{}, errors.New("kernel: interface has no hardware address")
	}
	return found, nil
}
