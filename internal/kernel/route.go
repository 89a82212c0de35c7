package kernel

import (
	"encoding/binary"

	"github.com/netmirage/netmirage-core/internal/addr"
	"github.com/netmirage/netmirage-core/internal/netlinkw"
	"golang.org/x/sys/unix"
)

// RouteTable identifies a routing table: either one of the two well-known
// tables or an arbitrary custom id.
type RouteTable uint32

const (
	TableMain  RouteTable = unix.RT_TABLE_MAIN
	TableLocal RouteTable = unix.RT_TABLE_LOCAL
)

// RouteScope mirrors the rtnetlink scope byte.
type RouteScope uint8

const (
	ScopeGlobal RouteScope = unix.RT_SCOPE_UNIVERSE
	ScopeLink   RouteScope = unix.RT_SCOPE_LINK
)

// RouteCreator is the rtnetlink "protocol" field, identifying who installed
// a route.
type RouteCreator uint8

const (
	CreatorAny    RouteCreator = unix.RTPROT_UNSPEC
	CreatorICMP   RouteCreator = unix.RTPROT_REDIRECT
	CreatorKernel RouteCreator = unix.RTPROT_KERNEL
	CreatorBoot   RouteCreator = unix.RTPROT_BOOT
	CreatorAdmin  RouteCreator = unix.RTPROT_STATIC
)

// Route describes a single route entry.
type Route struct {
	Table     RouteTable
	Scope     RouteScope
	Creator   RouteCreator
	Dest      addr.Subnet // PrefixLen 0 means the default route
	Gateway   addr.IPv4   // zero means no gateway
	OutIfIndex int
}

func (k *Interface) routeMessage(ns *Namespace, msgType uint16, flags uint16, r Route) error {
	b := netlinkw.NewBuilder()
	seq := ns.Netlink().NextSeq()
	b.Begin(msgType, flags, seq)

	// struct rtmsg
	var rtm [12]byte
	rtm[0] = unix.AF_INET
	rtm[1] = r.Dest.PrefixLen
	rtm[3] = byte(r.Table)
	rtm[4] = byte(r.Creator)
	rtm[5] = byte(r.Scope)
	rtm[6] = unix.RTN_UNICAST
	b.Append(rtm[:])

	if r.Dest.PrefixLen > 0 {
		if err := b.PutAttr(unix.RTA_DST, ipToBytes(r.Dest.Base)); err != nil {
			return err
		}
	}
	if r.Gateway != 0 {
		if err := b.PutAttr(unix.RTA_GATEWAY, ipToBytes(r.Gateway)); err != nil {
			return err
		}
	}
	if r.OutIfIndex != 0 {
		var oif [4]byte
		binary.LittleEndian.PutUint32(oif[:], uint32(r.OutIfIndex))
		if err := b.PutAttr(unix.RTA_OIF, oif[:]); err != nil {
			return err
		}
	}
	if uint32(r.Table) > 0xFF {
		var tbl [4]byte
		binary.LittleEndian.PutUint32(tbl[:], uint32(r.Table))
		if err := b.PutAttr(unix.RTA_TABLE, tbl[:]); err != nil {
			return err
		}
	}

	return ns.Netlink().Send(b, seq, true, nil)
}

// AddRoute installs a route. Re-adding an identical route replaces it.
func (k *Interface) AddRoute(ns *Namespace, r Route) error {
	return k.routeMessage(ns, unix.RTM_NEWROUTE, unix.NLM_F_CREATE|unix.NLM_F_REPLACE|unix.NLM_F_ACK, r)
}

// DeleteRoute removes a route. Removing an already-absent route (e.g. a
// default route cleaned up during rollback) is treated as a best-effort,
// non-fatal operation by callers per the propagation policy for cleanup
// paths; this method still surfaces the kernel error so the caller can
// decide whether to log and continue.
func (k *Interface) DeleteRoute(ns *Namespace, r Route) error {
	return k.routeMessage(ns, unix.RTM_DELROUTE, unix.NLM_F_ACK, r)
}
