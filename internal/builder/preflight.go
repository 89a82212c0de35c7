package builder

import (
	"fmt"

	"github.com/netmirage/netmirage-core/internal/addr"
	"github.com/netmirage/netmirage-core/internal/pipeline"
)

// preflight validates and completes edge-node descriptors: it fills in
// the default interface where blank, resolves unknown MAC addresses via
// GetEdgeRemoteMac, and auto-assigns missing virtual client subnets by
// fragmenting the global subnet across every edge.
func (b *Builder) preflight() error {
	if len(b.cfg.Edges) == 0 {
		return fmt.Errorf("builder: no edge descriptors configured")
	}

	missingSubnets := 0
	for i := range b.cfg.Edges {
		e := &b.cfg.Edges[i]
		if e.Iface == "" {
			e.Iface = b.cfg.DefaultEdgeIface
		}
		if e.VirtualSubnet == nil {
			missingSubnets++
		}
	}

	if missingSubnets > 0 {
		frags, err := addr.Fragment(b.cfg.GlobalSubnet, len(b.cfg.Edges))
		if err != nil {
			return fmt.Errorf("builder: cannot fragment global subnet %s into %d edges: %w", b.cfg.GlobalSubnet, len(b.cfg.Edges), err)
		}
		for i := range b.cfg.Edges {
			if b.cfg.Edges[i].VirtualSubnet == nil {
				b.cfg.Edges[i].VirtualSubnet = &frags[i]
			}
		}
	}

	for i := range b.cfg.Edges {
		e := &b.cfg.Edges[i]
		if e.RealMAC != nil {
			e.resolvedMAC = *e.RealMAC
			continue
		}

		if err := b.pl.Submit(pipeline.Order{Tag: pipeline.OrderGetEdgeRemoteMac, Iface: e.Iface}); err != nil {
			return err
		}
		if err := b.pl.Join(false); err != nil {
			return fmt.Errorf("builder: resolving MAC for edge %s: %w", e.Iface, err)
		}
		resp, err := b.pl.AwaitMailbox(0)
		if err != nil {
			return err
		}
		if resp.Tag != pipeline.RespGotMac {
			return fmt.Errorf("builder: unexpected response resolving MAC for edge %s", e.Iface)
		}
		e.resolvedMAC = resp.MAC
	}

	return nil
}
