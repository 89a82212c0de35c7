package worker

import (
	"fmt"
	"time"

	"github.com/netmirage/netmirage-core/internal/addr"
	"github.com/netmirage/netmirage-core/internal/kernel"
	"github.com/netmirage/netmirage-core/internal/ovsctl"
	"github.com/netmirage/netmirage-core/internal/pipeline"
	log "github.com/netmirage/netmirage-core/pkg/minilog"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

const rootNamespaceID = ^uint32(0) - 1
const rootNamespaceName = "root"
const rootBridgeName = "netmirage-br0"

func (b *Body) ns(id uint32, create bool) (*kernel.Namespace, error) {
	name := fmt.Sprintf("%d", id)
	if id == rootNamespaceID {
		name = rootNamespaceName
	}
	return b.cache.Open(id, name, create, false)
}

// getEdgeRemoteMac resolves o.Iface/o.IP's hardware address via the ARP
// cache, issuing an ICMP echo warm-up and retrying up to 3 attempts with a
// 1s sleep between, per the pre-flight phase.
func (b *Body) getEdgeRemoteMac(o pipeline.Order) pipeline.Response {
	ns, err := b.ns(rootNamespaceID, false)
	if err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}

	ifIndex, err := b.kernel.InterfaceIndex(ns, o.Iface)
	if err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}

	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		mac, err := b.kernel.ReadARPEntry(ns, ifIndex, o.IP)
		if err == nil {
			return pipeline.Response{Tag: pipeline.RespGotMac, MAC: mac}
		}
		if err != kernel.ErrAgainNotCached {
			return errorResponse(pipeline.ErrKernel, err.Error())
		}

		if attempt < maxAttempts-1 {
			sendEchoWarmup(o.IP)
			time.Sleep(time.Second)
		}
	}
	return errorResponse(pipeline.ErrConfigInvalid, fmt.Sprintf("could not resolve MAC for %v after %d attempts", o.IP, maxAttempts))
}

// sendEchoWarmup issues a best-effort ICMP echo to ip to refresh the
// kernel's ARP cache; failures are not fatal since this is only a warm-up
// helper, not a protocol-level action.
func sendEchoWarmup(ip addr.IPv4) {
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return
	}
	defer conn.Close()

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho, Code: 0,
		Body: &icmp.Echo{ID: 1, Seq: 1, Data: []byte("netmirage")},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return
	}
	conn.WriteTo(wb, &addrIPv4{ip: ip})
}

// addrIPv4 adapts an addr.IPv4 to net.Addr for icmp.PacketConn.WriteTo.
type addrIPv4 struct{ ip addr.IPv4 }

func (a *addrIPv4) Network() string { return "ip4" }
func (a *addrIPv4) String() string  { return a.ip.String() }

func (b *Body) getEdgeLocalMac(o pipeline.Order) pipeline.Response {
	ns, err := b.ns(rootNamespaceID, false)
	if err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}
	ifIndex, err := b.kernel.InterfaceIndex(ns, o.Iface)
	if err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}
	mac, err := b.kernel.ReadLocalMAC(ns, ifIndex)
	if err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}
	return pipeline.Response{Tag: pipeline.RespGotMac, MAC: mac}
}

// addRoot creates (or, if Existing, merely attaches to) the root namespace
// and its OVS bridge. The two root addresses carried by the order are not
// assigned to any interface.
func (b *Body) addRoot(o pipeline.Order) pipeline.Response {
	ns, err := b.ns(rootNamespaceID, !o.Existing)
	if err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}

	if !o.Existing {
		if b.ovs, err = ovsctl.Start(b.ovsDir(), b.ovsSchema, rootBridgeName); err != nil {
			return errorResponse(pipeline.ErrOvsFailed, err.Error())
		}
	} else if b.ovs == nil {
		if b.ovs, err = ovsctl.Attach(b.ovsDir(), rootBridgeName); err != nil {
			return errorResponse(pipeline.ErrOvsFailed, err.Error())
		}
	}

	_ = ns
	return pipeline.Response{Tag: pipeline.RespPong}
}

func (b *Body) ovsDir() string { return b.ovsDirPath }

// addEdgeInterface brings up an external interface that is already in the
// root namespace, attaches it to the bridge, and returns its OVS port
// number. It does not move the interface out of the default namespace and
// installs no ARP-responder flows. Re-requesting the same interface name is
// a no-op at the OVS layer (AddPort is idempotent).
func (b *Body) addEdgeInterface(o pipeline.Order) pipeline.Response {
	rootNs, err := b.ns(rootNamespaceID, false)
	if err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}

	if err := b.kernel.SetInterfaceUp(rootNs, o.Iface); err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}
	if err := b.ovs.AddPort(rootBridgeName, o.Iface); err != nil {
		return errorResponse(pipeline.ErrOvsFailed, err.Error())
	}
	port, err := b.ovs.PortNumber(o.Iface)
	if err != nil {
		return errorResponse(pipeline.ErrOvsFailed, err.Error())
	}

	return pipeline.Response{Tag: pipeline.RespAddedEdgeInterface, Port: port}
}

// addHost creates a node's namespace. For a client it also builds the
// self (reflection) and up (cross-client) veth pairs through root, each
// with static ARP bindings and shaping from the node's parameters.
func (b *Body) addHost(o pipeline.Order) pipeline.Response {
	hostNs, err := b.ns(o.ID, true)
	if err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}

	if !o.Node.Client {
		return pipeline.Response{Tag: pipeline.RespPong}
	}

	rootNs, err := b.ns(rootNamespaceID, false)
	if err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}

	selfName := fmt.Sprintf("self%d", o.ID)
	selfRootName := fmt.Sprintf("self%d-r", o.ID)
	if err := b.kernel.CreateVethPair(hostNs, selfName, selfRootName, rootNs.FD()); err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}

	upName := fmt.Sprintf("up%d", o.ID)
	upRootName := fmt.Sprintf("up%d-r", o.ID)
	if err := b.kernel.CreateVethPair(hostNs, upName, upRootName, rootNs.FD()); err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}

	shaping := kernel.Shaping{
		PacketLoss: o.Node.PacketLoss,
		RateMbps:   o.Node.BandwidthDown,
	}
	if selfIdx, err := b.kernel.InterfaceIndex(hostNs, selfName); err == nil {
		b.kernel.SetShaping(hostNs, selfIdx, shaping)
		b.kernel.SetInterfaceUp(hostNs, selfName)
		if !o.MACs[0].IsZero() {
			b.kernel.AddStaticARPEntry(hostNs, selfIdx, o.IP, o.MACs[0])
		}
	}
	if upIdx, err := b.kernel.InterfaceIndex(hostNs, upName); err == nil {
		upShaping := shaping
		upShaping.RateMbps = o.Node.BandwidthUp
		b.kernel.SetShaping(hostNs, upIdx, upShaping)
		b.kernel.SetInterfaceUp(hostNs, upName)
		if !o.MACs[1].IsZero() {
			b.kernel.AddStaticARPEntry(hostNs, upIdx, o.IP, o.MACs[1])
		}
	}

	return pipeline.Response{Tag: pipeline.RespPong}
}

// setSelfLink applies a reflexive link's shaping to a client's self
// interface, one-sided to preserve jitter semantics.
func (b *Body) setSelfLink(o pipeline.Order) pipeline.Response {
	hostNs, err := b.ns(o.ID, false)
	if err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}
	selfName := fmt.Sprintf("self%d", o.ID)
	idx, err := b.kernel.InterfaceIndex(hostNs, selfName)
	if err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}
	shaping := kernel.Shaping{
		LatencyMs:  o.Link.LatencyMs,
		JitterMs:   o.Link.JitterMs,
		PacketLoss: o.Link.PacketLoss,
		QueueLen:   o.Link.QueueLen,
	}
	if err := b.kernel.SetShaping(hostNs, idx, shaping); err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}
	return pipeline.Response{Tag: pipeline.RespPong}
}

// ensureSystemScaling widens ARP GC thresholds if the projected per-node
// neighbour table entries (roughly proportional to clients) exceed the
// current gc_thresh2.
func (b *Body) ensureSystemScaling(o pipeline.Order) pipeline.Response {
	if _, _, err := b.kernel.WidenARPGCThresholds(o.Clients*4, 2); err != nil {
		return errorResponse(pipeline.ErrResourceExhausted, err.Error())
	}
	return pipeline.Response{Tag: pipeline.RespPong}
}

// addLink creates a veth pair between two node namespaces, applies netem
// on both ends, and adds /32 link-scope routes pointing at each peer.
func (b *Body) addLink(o pipeline.Order) pipeline.Response {
	srcNs, err := b.ns(o.ID, false)
	if err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}
	dstNs, err := b.ns(o.DstID, false)
	if err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}

	srcName := fmt.Sprintf("l%d-%d", o.ID, o.DstID)
	dstName := fmt.Sprintf("l%d-%d", o.DstID, o.ID)
	if err := b.kernel.CreateVethPair(srcNs, srcName, dstName, dstNs.FD()); err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}

	shaping := kernel.Shaping{
		LatencyMs:  o.Link.LatencyMs,
		JitterMs:   o.Link.JitterMs,
		PacketLoss: o.Link.PacketLoss,
		QueueLen:   o.Link.QueueLen,
	}
	if idx, err := b.kernel.InterfaceIndex(srcNs, srcName); err == nil {
		b.kernel.SetShaping(srcNs, idx, shaping)
		b.kernel.SetInterfaceUp(srcNs, srcName)
		b.kernel.AddRoute(srcNs, kernel.Route{
			Table: kernel.TableMain, Scope: kernel.ScopeLink, Creator: kernel.CreatorBoot,
			Dest: addr.Subnet{Base: o.DstIP, PrefixLen: 32}, OutIfIndex: idx,
		})
	}
	if idx, err := b.kernel.InterfaceIndex(dstNs, dstName); err == nil {
		b.kernel.SetShaping(dstNs, idx, shaping)
		b.kernel.SetInterfaceUp(dstNs, dstName)
		b.kernel.AddRoute(dstNs, kernel.Route{
			Table: kernel.TableMain, Scope: kernel.ScopeLink, Creator: kernel.CreatorBoot,
			Dest: addr.Subnet{Base: o.SrcIP, PrefixLen: 32}, OutIfIndex: idx,
		})
	}

	return pipeline.Response{Tag: pipeline.RespPong}
}

// addInternalRoutes programs p->subnet_b via q and q->subnet_a via p in
// each namespace's main table for one hop of a multi-hop client path.
func (b *Body) addInternalRoutes(o pipeline.Order) pipeline.Response {
	ns1, err := b.ns(o.ID1, false)
	if err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}
	ns2, err := b.ns(o.ID2, false)
	if err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}

	if err := b.kernel.AddRoute(ns1, kernel.Route{
		Table: kernel.TableMain, Scope: kernel.ScopeGlobal, Creator: kernel.CreatorAdmin,
		Dest: o.Subnet2, Gateway: o.IP2,
	}); err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}
	if err := b.kernel.AddRoute(ns2, kernel.Route{
		Table: kernel.TableMain, Scope: kernel.ScopeGlobal, Creator: kernel.CreatorAdmin,
		Dest: o.Subnet1, Gateway: o.IP1,
	}); err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}
	return pipeline.Response{Tag: pipeline.RespPong}
}

// addClientRoutes installs in-namespace routes through root plus OVS flow
// rules pairing the client with its edge port, allocating two new OVS
// ports per client (self and up).
func (b *Body) addClientRoutes(o pipeline.Order) pipeline.Response {
	clientNs, err := b.ns(o.ClientID, false)
	if err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}

	if err := b.kernel.AddRoute(clientNs, kernel.Route{
		Table: kernel.TableMain, Scope: kernel.ScopeGlobal, Creator: kernel.CreatorAdmin,
		Dest: addr.Subnet{PrefixLen: 0},
	}); err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}

	selfRootName := fmt.Sprintf("self%d-r", o.ClientID)
	upRootName := fmt.Sprintf("up%d-r", o.ClientID)
	if err := b.ovs.AddPort(rootBridgeName, selfRootName); err != nil {
		return errorResponse(pipeline.ErrOvsFailed, err.Error())
	}
	if err := b.ovs.AddPort(rootBridgeName, upRootName); err != nil {
		return errorResponse(pipeline.ErrOvsFailed, err.Error())
	}
	upPort, err := b.ovs.PortNumber(upRootName)
	if err != nil {
		return errorResponse(pipeline.ErrOvsFailed, err.Error())
	}

	if err := b.ovs.AddL3Flow(ovsctl.L3Rule{
		DstSubnet: &o.Subnet, OutPort: upPort, Priority: 100,
	}); err != nil {
		return errorResponse(pipeline.ErrOvsFailed, err.Error())
	}
	if err := b.ovs.AddL3Flow(ovsctl.L3Rule{
		InPort: upPort, OutPort: o.EdgePort, Priority: 100,
	}); err != nil {
		return errorResponse(pipeline.ErrOvsFailed, err.Error())
	}

	return pipeline.Response{Tag: pipeline.RespPong}
}

// addEdgeRoutes installs an ARP-responder flow on the edge's port that
// answers for the network address of its advertised subnet with the local
// MAC. The order's RemoteMAC is not used.
func (b *Body) addEdgeRoutes(o pipeline.Order) pipeline.Response {
	port, err := b.ovs.PortNumber(o.Iface)
	if err != nil {
		return errorResponse(pipeline.ErrOvsFailed, err.Error())
	}
	if err := b.ovs.AddARPResponderFlow(port, o.EdgeSubnet.Network(), o.LocalMAC, 100); err != nil {
		return errorResponse(pipeline.ErrOvsFailed, err.Error())
	}
	return pipeline.Response{Tag: pipeline.RespPong}
}

// destroyHosts moves every edge interface named in the order out of the
// root namespace back to the default namespace, deletes every non-root
// namespace under the configured prefix whose name is a node id (cached by
// this worker or not), and tears down the OVS bridge, per the destroy pass
// in §7.
func (b *Body) destroyHosts(o pipeline.Order) pipeline.Response {
	if rootNs, err := b.ns(rootNamespaceID, false); err == nil {
		defaultFD, dferr := b.kernel.OpenDefaultNamespaceFD()
		if dferr == nil {
			defer unix.Close(defaultFD)
			for _, iface := range o.Ifaces {
				ifIndex, ierr := b.kernel.InterfaceIndex(rootNs, iface)
				if ierr != nil {
					continue // already gone or never on this worker
				}
				if b.ovs != nil {
					if perr := b.ovs.DeletePort(rootBridgeName, iface); perr != nil {
						log.Error("destroyHosts: removing port %s: %v", iface, perr)
					}
				}
				if merr := b.kernel.MoveInterface(rootNs, ifIndex, defaultFD); merr != nil {
					log.Error("destroyHosts: restoring %s to default namespace: %v", iface, merr)
				}
			}
		} else {
			log.Error("destroyHosts: opening default namespace: %v", dferr)
		}
	}

	if err := b.kernel.EnumerateNamespaces(b.nsPrefix, func(name string) error {
		if name == rootNamespaceName {
			return nil
		}
		var id uint32
		if _, err := fmt.Sscanf(name, "%d", &id); err != nil {
			return nil // not one of ours
		}
		if err := b.cache.Invalidate(id); err != nil {
			return err
		}
		return b.kernel.DeleteNamespace(b.nsPrefix, name)
	}); err != nil {
		return errorResponse(pipeline.ErrKernel, err.Error())
	}

	if b.ovs != nil {
		if err := b.ovs.Destroy(); err != nil {
			return errorResponse(pipeline.ErrOvsFailed, err.Error())
		}
	}
	return pipeline.Response{Tag: pipeline.RespPong}
}
