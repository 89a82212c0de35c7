package builder

import (
	"fmt"

	"github.com/netmirage/netmirage-core/internal/addr"
	"github.com/netmirage/netmirage-core/internal/graphml"
	"github.com/netmirage/netmirage-core/internal/pipeline"
	"github.com/netmirage/netmirage-core/internal/routeplan"
)

// linkStream consumes the link phase. On the first link event it closes
// the node phase: validates clients >= edge count, allocates the route
// planner sized to the total node count, and widens ARP GC thresholds if
// required. Each link then allocates two MACs, issues AddLink, records
// both directed weights on the planner, and (for a reflexive link on a
// client) issues SetSelfLink.
func (b *Builder) linkStream(dec graphml.Decoder) error {
	closed := false

	for {
		l, ok, err := dec.NextLink()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if !closed {
			if err := b.closeNodePhase(); err != nil {
				return err
			}
			closed = true
		}

		if l.Weight < 0 {
			return fmt.Errorf("builder: link %s-%s has negative weight %f", l.SourceName, l.TargetName, l.Weight)
		}

		srcID, ok := b.nodeID[l.SourceName]
		if !ok {
			return fmt.Errorf("builder: link references unknown node %q", l.SourceName)
		}
		dstID, ok := b.nodeID[l.TargetName]
		if !ok {
			return fmt.Errorf("builder: link references unknown node %q", l.TargetName)
		}

		link := pipeline.LinkParams{
			LatencyMs:  l.LatencyMs,
			JitterMs:   l.JitterMs,
			PacketLoss: l.PacketLoss,
			QueueLen:   l.QueueLen,
			Weight:     l.Weight,
		}

		if srcID == dstID {
			if !b.nodeIsClient[srcID] {
				return fmt.Errorf("builder: reflexive link on non-client node %q", l.SourceName)
			}
			if err := b.pl.Submit(pipeline.Order{Tag: pipeline.OrderSetSelfLink, ID: srcID, Link: link}); err != nil {
				return err
			}
			b.planner.SetWeight(int(srcID), int(srcID), float32(l.Weight))
			continue
		}

		var macs [4]addr.MAC
		if b.macIter == nil {
			b.macIter = addr.NewMACIterator(addr.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x01})
		}
		batch, err := b.macIter.NextBatch(2)
		if err != nil {
			return err
		}
		copy(macs[:], batch)

		if err := b.pl.Submit(pipeline.Order{
			Tag:   pipeline.OrderAddLink,
			ID:    srcID,
			DstID: dstID,
			SrcIP: b.nodeIP[srcID],
			DstIP: b.nodeIP[dstID],
			MACs:  macs,
			Link:  link,
		}); err != nil {
			return err
		}

		b.planner.SetWeight(int(srcID), int(dstID), float32(l.Weight))
		b.planner.SetWeight(int(dstID), int(srcID), float32(l.Weight))
	}
}

// closeNodePhase runs the step-4 preamble exactly once, at the first link
// event: clients must at least cover the edge count, the planner is sized
// to the already-known node count, and ARP GC thresholds are widened
// proportionally to the projected per-node neighbour-table load.
func (b *Builder) closeNodePhase() error {
	if len(b.clients) < len(b.cfg.Edges) {
		return fmt.Errorf("builder: %d clients cannot cover %d edges", len(b.clients), len(b.cfg.Edges))
	}

	b.planner = routeplan.New(int(b.nextNodeID))

	if err := b.pl.Broadcast(pipeline.Order{
		Tag:     pipeline.OrderEnsureSystemScaling,
		Nodes:   int(b.nextNodeID),
		Clients: len(b.clients),
	}); err != nil {
		return err
	}
	return b.pl.Join(false)
}
