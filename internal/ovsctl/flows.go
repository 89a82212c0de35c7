package ovsctl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/netmirage/netmirage-core/internal/addr"
)

// AddARPResponderFlow installs a flow that rewrites an incoming ARP
// request targeting ip into a reply claiming mac, using explicit NXM
// field moves/loads rather than a userspace controller round trip.
func (o *Instance) AddARPResponderFlow(inPort int, ip addr.IPv4, mac addr.MAC, priority int) error {
	actions := strings.Join([]string{
		"move:NXM_OF_ETH_SRC[]->NXM_OF_ETH_DST[]",
		fmt.Sprintf("mod_dl_src:%s", mac.String()),
		"load:0x2->NXM_OF_ARP_OP[]",
		"move:NXM_NX_ARP_SHA[]->NXM_NX_ARP_THA[]",
		fmt.Sprintf("load:0x%012x->NXM_NX_ARP_SHA[]", macToUint64(mac)),
		"move:NXM_OF_ARP_SPA[]->NXM_OF_ARP_TPA[]",
		fmt.Sprintf("load:0x%08x->NXM_OF_ARP_SPA[]", uint32(ip)),
		"in_port",
	}, ",")

	match := fmt.Sprintf("priority=%d,in_port=%d,arp,arp_op=1,arp_tpa=%s", priority, inPort, ip.String())

	_, err := o.ofctl("add-flow", o.Bridge, fmt.Sprintf("%s,actions=%s", match, actions))
	return err
}

// L3Rule selects traffic by an optional input port, source subnet, and
// destination subnet, rewriting source and/or destination MAC addresses
// before delivering it to OutPort.
type L3Rule struct {
	InPort    int // 0 means unset
	SrcSubnet *addr.Subnet
	DstSubnet *addr.Subnet
	RewriteSrcMAC *addr.MAC
	RewriteDstMAC *addr.MAC
	OutPort   int
	Priority  int
}

// AddL3Flow installs a match/rewrite flow per L3Rule.
func (o *Instance) AddL3Flow(r L3Rule) error {
	matches := []string{fmt.Sprintf("priority=%d", r.Priority), "ip"}
	if r.InPort != 0 {
		matches = append(matches, fmt.Sprintf("in_port=%d", r.InPort))
	}
	if r.SrcSubnet != nil {
		matches = append(matches, "nw_src="+cidrString(*r.SrcSubnet))
	}
	if r.DstSubnet != nil {
		matches = append(matches, "nw_dst="+cidrString(*r.DstSubnet))
	}

	var actions []string
	if r.RewriteSrcMAC != nil {
		actions = append(actions, "mod_dl_src:"+r.RewriteSrcMAC.String())
	}
	if r.RewriteDstMAC != nil {
		actions = append(actions, "mod_dl_dst:"+r.RewriteDstMAC.String())
	}
	actions = append(actions, "output:"+strconv.Itoa(r.OutPort))

	flow := strings.Join(matches, ",") + ",actions=" + strings.Join(actions, ",")
	_, err := o.ofctl("add-flow", o.Bridge, flow)
	return err
}

func cidrString(s addr.Subnet) string {
	return fmt.Sprintf("%s/%d", s.Network().String(), s.PrefixLen)
}

func macToUint64(m addr.MAC) uint64 {
	var v uint64
	for _, b := range m {
		v = v<<8 | uint64(b)
	}
	return v
}
