package builder

import (
	"fmt"

	"github.com/netmirage/netmirage-core/internal/addr"
	"github.com/netmirage/netmirage-core/internal/pipeline"
	log "github.com/netmirage/netmirage-core/pkg/minilog"
)

// staticRouting runs the step-5 pass: plans all-pairs shortest paths,
// assigns each client a virtual sub-subnet from its edge's fragment
// (round-robin, proportional to clients-per-edge), issues
// AddClientRoutes per client, then for every unordered client pair walks
// the planned path issuing AddInternalRoutes per hop. OVS-touching order
// batches are separated by Join, since ovsdb-server serialises commands.
func (b *Builder) staticRouting() error {
	if b.planner == nil {
		if err := b.closeNodePhase(); err != nil {
			return err
		}
	}
	b.planner.Plan()

	if err := b.assignClientSubnets(); err != nil {
		return err
	}

	for _, clientID := range b.clients {
		e, fragIdx := b.clientEdgeFragment(clientID)
		subnet := b.cfg.Edges[e].fragments[fragIdx]

		if err := b.pl.Submit(pipeline.Order{
			Tag:      pipeline.OrderAddClientRoutes,
			ClientID: clientID,
			Subnet:   subnet,
			EdgePort: b.cfg.Edges[e].port,
		}); err != nil {
			return err
		}
	}
	if err := b.pl.Join(false); err != nil {
		return fmt.Errorf("builder: installing client routes: %w", err)
	}

	warnedUnreachable := false
	for i := 0; i < len(b.clients); i++ {
		for j := i + 1; j < len(b.clients); j++ {
			a, c := b.clients[i], b.clients[j]

			path, ok := b.planner.Route(int(a), int(c))
			if !ok {
				if !warnedUnreachable {
					log.Warn("builder: no path between some client pairs (first: %d, %d); skipping", a, c)
					warnedUnreachable = true
				}
				continue
			}

			subnetA := b.cfg.Edges[b.clientEdgeFragmentIdx(a)].fragments[b.clientFragIdx(a)]
			subnetC := b.cfg.Edges[b.clientEdgeFragmentIdx(c)].fragments[b.clientFragIdx(c)]

			for h := 0; h+1 < len(path); h++ {
				p := uint32(path[h])
				q := uint32(path[h+1])
				if err := b.pl.Submit(pipeline.Order{
					Tag:     pipeline.OrderAddInternalRoutes,
					ID1:     p,
					ID2:     q,
					IP1:     b.nodeIP[p],
					IP2:     b.nodeIP[q],
					Subnet1: subnetA,
					Subnet2: subnetC,
				}); err != nil {
					return err
				}
			}
		}
	}
	if err := b.pl.Join(false); err != nil {
		return fmt.Errorf("builder: installing internal routes: %w", err)
	}

	return nil
}

// assignClientSubnets fragments each edge's virtual subnet into
// clients-per-edge pieces and records, per client, which edge and
// fragment it was assigned, walking clients in id order and distributing
// them round-robin across edges using rounded markers to avoid drift.
func (b *Builder) assignClientSubnets() error {
	numEdges := len(b.cfg.Edges)
	numClients := len(b.clients)

	counts := make([]int, numEdges)
	assigned := 0
	for i := range counts {
		target := (numClients*(i+1))/numEdges - assigned
		counts[i] = target
		assigned += target
	}

	for i := range b.cfg.Edges {
		e := &b.cfg.Edges[i]
		if counts[i] == 0 {
			continue
		}
		frags, err := addr.Fragment(*e.VirtualSubnet, counts[i])
		if err != nil {
			return fmt.Errorf("builder: cannot fragment edge %s's subnet into %d clients: %w", e.Iface, counts[i], err)
		}
		e.fragments = frags
		e.clientShare = counts[i]
	}

	b.clientEdge = make(map[uint32]int, numClients)
	b.clientFrag = make(map[uint32]int, numClients)
	cursor := 0
	for e := range b.cfg.Edges {
		for f := 0; f < b.cfg.Edges[e].clientShare && cursor < numClients; f++ {
			client := b.clients[cursor]
			b.clientEdge[client] = e
			b.clientFrag[client] = f
			cursor++
		}
	}
	return nil
}

func (b *Builder) clientEdgeFragment(id uint32) (int, int) {
	return b.clientEdge[id], b.clientFrag[id]
}

func (b *Builder) clientEdgeFragmentIdx(id uint32) int { return b.clientEdge[id] }
func (b *Builder) clientFragIdx(id uint32) int          { return b.clientFrag[id] }
