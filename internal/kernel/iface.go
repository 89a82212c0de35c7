package kernel

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/netmirage/netmirage-core/internal/netlinkw"
	"golang.org/x/sys/unix"
)

const (
	ifNameSize = unix.IFNAMSIZ

	vethInfoPeer = 1 // VETH_INFO_PEER

	ethtoolGGRO = 0x00000024 // ETHTOOL_GGRO
	ethtoolSGRO = 0x00000025 // ETHTOOL_SGRO
)

// struct ifreq is 16 bytes of interface name followed by a union; the
// union is at least as large as a pointer, so reserve room for one on any
// platform this ever targets.
const ifreqUnionSize = 16

type ifreqIndex struct {
	Name  [ifNameSize]byte
	union [ifreqUnionSize]byte
}

type ifreqFlags struct {
	Name  [ifNameSize]byte
	union [ifreqUnionSize]byte
}

type ifreqData struct {
	Name  [ifNameSize]byte
	union [ifreqUnionSize]byte
}

func setIfName(buf *[ifNameSize]byte, name string) error {
	if len(name) >= ifNameSize {
		return fmt.Errorf("kernel: interface name %q too long", name)
	}
	copy(buf[:], name)
	return nil
}

// InterfaceIndex looks up an interface's index by name via SIOCGIFINDEX in
// the namespace ns.
func (k *Interface) InterfaceIndex(ns *Namespace, name string) (int, error) {
	var req ifreqIndex
	if err := setIfName(&req.Name, name); err != nil {
		return 0, err
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(ns.IoctlFD()), unix.SIOCGIFINDEX, uintptr(unsafe.Pointer(&req))); errno != 0 {
		return 0, wrapErrno("SIOCGIFINDEX", errno)
	}
	index := *(*int32)(unsafe.Pointer(&req.union[0]))
	return int(index), nil
}

// setFlags performs a SIOCGIFFLAGS/modify/SIOCSIFFLAGS round trip.
func (k *Interface) setFlags(ns *Namespace, name string, set, clear int16) error {
	var req ifreqFlags
	if err := setIfName(&req.Name, name); err != nil {
		return err
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(ns.IoctlFD()), unix.SIOCGIFFLAGS, uintptr(unsafe.Pointer(&req))); errno != 0 {
		return wrapErrno("SIOCGIFFLAGS", errno)
	}

	flagsPtr := (*int16)(unsafe.Pointer(&req.union[0]))
	*flagsPtr = (*flagsPtr &^ clear) | set

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(ns.IoctlFD()), unix.SIOCSIFFLAGS, uintptr(unsafe.Pointer(&req))); errno != 0 {
		return wrapErrno("SIOCSIFFLAGS", errno)
	}
	return nil
}

// SetInterfaceUp brings an interface up (IFF_UP).
func (k *Interface) SetInterfaceUp(ns *Namespace, name string) error {
	return k.setFlags(ns, name, unix.IFF_UP, 0)
}

// SetInterfaceDown takes an interface down.
func (k *Interface) SetInterfaceDown(ns *Namespace, name string) error {
	return k.setFlags(ns, name, 0, unix.IFF_UP)
}

// ethtoolGro is the fixed struct ethtool_value layout.
type ethtoolGro struct {
	Cmd  uint32
	Data uint32
}

// SetGRO enables or disables generic receive offload on an interface via
// SIOCETHTOOL/ETHTOOL_SGRO.
func (k *Interface) SetGRO(ns *Namespace, name string, enabled bool) error {
	var val ethtoolGro
	val.Cmd = ethtoolSGRO
	if enabled {
		val.Data = 1
	}

	var req ifreqData
	if err := setIfName(&req.Name, name); err != nil {
		return err
	}
	dataPtr := (*uintptr)(unsafe.Pointer(&req.union[0]))
	*dataPtr = uintptr(unsafe.Pointer(&val))

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(ns.IoctlFD()), unix.SIOCETHTOOL, uintptr(unsafe.Pointer(&req))); errno != 0 {
		return wrapErrno("SIOCETHTOOL SGRO", errno)
	}
	return nil
}

// CreateVethPair creates a veth pair in a single netlink message using
// nested IFLA_LINKINFO/IFLA_INFO_DATA/VETH_INFO_PEER attributes, with the
// peer end placed directly into the namespace identified by peerNsFD. name
// is the local end's name; peerName is the peer end's name.
func (k *Interface) CreateVethPair(ns *Namespace, name, peerName string, peerNsFD int) error {
	b := netlinkw.NewBuilder()
	seq := ns.Netlink().NextSeq()
	b.Begin(unix.RTM_NEWLINK, unix.NLM_F_CREATE|unix.NLM_F_EXCL|unix.NLM_F_ACK, seq)

	// struct ifinfomsg
	var ifi [16]byte
	ifi[0] = unix.AF_UNSPEC
	b.Append(ifi[:])

	if err := b.PutAttr(unix.IFLA_IFNAME, nullTerminated(name)); err != nil {
		return err
	}

	if err := b.PushAttr(unix.IFLA_LINKINFO); err != nil {
		return err
	}
	if err := b.PutAttr(unix.IFLA_INFO_KIND, nullTerminated("veth")); err != nil {
		return err
	}
	if err := b.PushAttr(unix.IFLA_INFO_DATA); err != nil {
		return err
	}
	if err := b.PushAttr(vethInfoPeer); err != nil {
		return err
	}

	// Peer's own ifinfomsg, followed by its IFLA_IFNAME and, if it should
	// land directly in another namespace, IFLA_NET_NS_FD.
	b.Append(ifi[:])
	if err := b.PutAttr(unix.IFLA_IFNAME, nullTerminated(peerName)); err != nil {
		return err
	}
	if peerNsFD >= 0 {
		var fdBuf [4]byte
		binary.LittleEndian.PutUint32(fdBuf[:], uint32(peerNsFD))
		if err := b.PutAttr(unix.IFLA_NET_NS_FD, fdBuf[:]); err != nil {
			return err
		}
	}

	if err := b.PopAttr(); err != nil { // VETH_INFO_PEER
		return err
	}
	if err := b.PopAttr(); err != nil { // IFLA_INFO_DATA
		return err
	}
	if err := b.PopAttr(); err != nil { // IFLA_LINKINFO
		return err
	}

	return ns.Netlink().Send(b, seq, true, nil)
}

// MoveInterface moves an existing interface into another namespace via
// IFLA_NET_NS_FD.
func (k *Interface) MoveInterface(ns *Namespace, ifIndex int, targetNsFD int) error {
	b := netlinkw.NewBuilder()
	seq := ns.Netlink().NextSeq()
	b.Begin(unix.RTM_NEWLINK, unix.NLM_F_ACK, seq)

	var ifi [16]byte
	ifi[0] = unix.AF_UNSPEC
	binary.LittleEndian.PutUint32(ifi[4:8], uint32(ifIndex))
	b.Append(ifi[:])

	var fdBuf [4]byte
	binary.LittleEndian.PutUint32(fdBuf[:], uint32(targetNsFD))
	if err := b.PutAttr(unix.IFLA_NET_NS_FD, fdBuf[:]); err != nil {
		return err
	}

	return ns.Netlink().Send(b, seq, true, nil)
}

func nullTerminated(s string) []byte {
	return append([]byte(s), 0)
}
