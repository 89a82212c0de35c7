package builder

import (
	"github.com/netmirage/netmirage-core/internal/addr"
	"github.com/netmirage/netmirage-core/internal/graphml"
	"github.com/netmirage/netmirage-core/internal/pipeline"
)

// hostStream consumes the node phase of the GraphML stream, allocating an
// internal IP (and, for clients, four consecutive MAC addresses) per node
// and issuing AddHost.
func (b *Builder) hostStream(dec graphml.Decoder) error {
	for {
		n, ok, err := dec.NextNode()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		id := b.allocNodeID(n.Name)
		ip, err := b.allocIP()
		if err != nil {
			return err
		}
		b.nodeIP[id] = ip
		b.nodeIsClient[id] = n.Client

		var macs [4]addr.MAC
		if n.Client {
			if b.macIter == nil {
				b.macIter = addr.NewMACIterator(addr.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x01})
			}
			batch, err := b.macIter.NextBatch(4)
			if err != nil {
				return err
			}
			copy(macs[:], batch)
			b.clients = append(b.clients, id)
		}

		if err := b.pl.Submit(pipeline.Order{
			Tag: pipeline.OrderAddHost,
			ID:  id,
			IP:  ip,
			MACs: macs,
			Node: pipeline.NodeParams{
				Client:        n.Client,
				PacketLoss:    n.PacketLoss,
				BandwidthUp:   n.BandwidthUp,
				BandwidthDown: n.BandwidthDown,
			},
		}); err != nil {
			return err
		}
	}
}
