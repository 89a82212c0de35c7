package builder

import (
	"fmt"

	"github.com/netmirage/netmirage-core/internal/pipeline"
)

// rootSetup generates the root namespace's address pair, has one elected
// worker create the root namespace and OVS bridge, has every worker
// attach to it, then for each edge interface has a worker bring it up in
// the root namespace and attach it to the bridge (AddEdgeInterface) and
// install its ARP-responder flow (AddEdgeRoutes). No order moves the
// interface into the root namespace.
func (b *Builder) rootSetup() error {
	selfIP, err := b.allocIP()
	if err != nil {
		return err
	}
	b.rootSelfIP = selfIP

	if b.cfg.SingleRootAddress {
		b.rootOtherIP = selfIP
	} else {
		otherIP, err := b.allocIP()
		if err != nil {
			return err
		}
		b.rootOtherIP = otherIP
	}

	if err := b.pl.Submit(pipeline.Order{
		Tag: pipeline.OrderAddRoot, SelfIP: b.rootSelfIP, OtherIP: b.rootOtherIP, Existing: false,
	}); err != nil {
		return err
	}
	if err := b.pl.Join(false); err != nil {
		return fmt.Errorf("builder: creating root namespace: %w", err)
	}
	// The root namespace and its OVS bridge now exist on the kernel side;
	// any failure from here on must trigger a DestroyHosts rollback.
	b.reachedCleanupPoint = true

	if err := b.pl.Broadcast(pipeline.Order{
		Tag: pipeline.OrderAddRoot, SelfIP: b.rootSelfIP, OtherIP: b.rootOtherIP, Existing: true,
	}); err != nil {
		return err
	}
	if err := b.pl.Join(false); err != nil {
		return fmt.Errorf("builder: attaching workers to root namespace: %w", err)
	}

	lastIface := ""
	lastPort := 0
	for i := range b.cfg.Edges {
		e := &b.cfg.Edges[i]

		if lastIface == e.Iface {
			// Scenario 5: a repeated AddEdgeInterface for the same
			// interface is collapsed; the port is already known.
			e.port = lastPort
		} else {
			if err := b.pl.Submit(pipeline.Order{Tag: pipeline.OrderAddEdgeInterface, Iface: e.Iface}); err != nil {
				return err
			}
			if err := b.pl.Join(false); err != nil {
				return fmt.Errorf("builder: attaching edge interface %s: %w", e.Iface, err)
			}
			resp, err := b.pl.AwaitMailbox(0)
			if err != nil {
				return err
			}
			if resp.Tag != pipeline.RespAddedEdgeInterface {
				return fmt.Errorf("builder: unexpected response attaching edge interface %s", e.Iface)
			}
			e.port = resp.Port
			lastIface = e.Iface
			lastPort = resp.Port
		}

		if err := b.pl.Submit(pipeline.Order{Tag: pipeline.OrderGetEdgeLocalMac, Iface: e.Iface}); err != nil {
			return err
		}
		if err := b.pl.Join(false); err != nil {
			return fmt.Errorf("builder: resolving local MAC for edge %s: %w", e.Iface, err)
		}
		resp, err := b.pl.AwaitMailbox(0)
		if err != nil {
			return err
		}
		if resp.Tag != pipeline.RespGotMac {
			return fmt.Errorf("builder: unexpected response resolving local MAC for edge %s", e.Iface)
		}

		if err := b.pl.Submit(pipeline.Order{
			Tag:        pipeline.OrderAddEdgeRoutes,
			Iface:      e.Iface,
			EdgeSubnet: *e.VirtualSubnet,
			LocalMAC:   resp.MAC,
			RemoteMAC:  e.resolvedMAC,
		}); err != nil {
			return err
		}
		if err := b.pl.Join(false); err != nil {
			return fmt.Errorf("builder: installing ARP responder for edge %s: %w", e.Iface, err)
		}
	}

	return nil
}
