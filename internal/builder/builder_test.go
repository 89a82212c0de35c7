package builder

import (
	"testing"

	"github.com/netmirage/netmirage-core/internal/addr"
	"github.com/netmirage/netmirage-core/internal/graphml"
	"github.com/netmirage/netmirage-core/internal/pipeline"
)

// fakePipeline is a synchronous, single-worker stand-in for
// *pipeline.Driver: every Submit/Broadcast is recorded immediately, Join
// is always satisfied, and AwaitMailbox replies based on the most
// recently recorded order's tag.
type fakePipeline struct {
	orders []pipeline.Order
	lastTag pipeline.OrderTag
	nextPort int
}

func (p *fakePipeline) Submit(o pipeline.Order) error {
	p.orders = append(p.orders, o)
	p.lastTag = o.Tag
	return nil
}

func (p *fakePipeline) Broadcast(o pipeline.Order) error {
	p.orders = append(p.orders, o)
	p.lastTag = o.Tag
	return nil
}

func (p *fakePipeline) Join(resetError bool) error { return nil }

func (p *fakePipeline) AwaitMailbox(workerIndex int) (pipeline.Response, error) {
	switch p.lastTag {
	case pipeline.OrderGetEdgeRemoteMac, pipeline.OrderGetEdgeLocalMac:
		return pipeline.Response{Tag: pipeline.RespGotMac, MAC: addr.MAC{0x02, 0, 0, 0, 0, 0x09}}, nil
	case pipeline.OrderAddEdgeInterface:
		p.nextPort++
		return pipeline.Response{Tag: pipeline.RespAddedEdgeInterface, Port: p.nextPort}, nil
	}
	return pipeline.Response{Tag: pipeline.RespPong}, nil
}

func (p *fakePipeline) WorkerCount() int { return 1 }
func (p *fakePipeline) LatchedError() error { return nil }

func (p *fakePipeline) ordersWithTag(tag pipeline.OrderTag) []pipeline.Order {
	var out []pipeline.Order
	for _, o := range p.orders {
		if o.Tag == tag {
			out = append(out, o)
		}
	}
	return out
}

func mustSubnet(s string) addr.Subnet {
	sub, err := addr.ParseSubnet(s)
	if err != nil {
		panic(err)
	}
	return sub
}

func testConfig() Config {
	globalSubnet := mustSubnet("10.1.0.0/24")
	internalPool := mustSubnet("10.0.0.0/24")
	edgeSubnet := mustSubnet("10.1.0.0/24")
	mac := addr.MAC{0x02, 0, 0, 0, 0, 0x01}

	return Config{
		DefaultEdgeIface: "eth0",
		GlobalSubnet:     globalSubnet,
		InternalPool:     internalPool,
		Edges: []EdgeDescriptor{
			{Iface: "eth0", RealMAC: &mac, VirtualSubnet: &edgeSubnet, RemoteApps: 4},
		},
	}
}

func TestThreeNodeTopologyIssuesRoutesPerScenario3(t *testing.T) {
	pl := &fakePipeline{}
	b := New(testConfig(), pl)

	dec := &graphml.SliceDecoder{
		Nodes: []graphml.NodeEvent{
			{Name: "R", Client: false},
			{Name: "A", Client: true},
			{Name: "B", Client: true},
		},
		Links: []graphml.LinkEvent{
			{SourceName: "A", TargetName: "R", Weight: 1},
			{SourceName: "R", TargetName: "B", Weight: 1},
		},
	}

	if err := b.Run(dec); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	clientRoutes := pl.ordersWithTag(pipeline.OrderAddClientRoutes)
	if len(clientRoutes) != 2 {
		t.Fatalf("expected 2 AddClientRoutes orders, got %d", len(clientRoutes))
	}

	internalRoutes := pl.ordersWithTag(pipeline.OrderAddInternalRoutes)
	if len(internalRoutes) != 2 {
		t.Fatalf("expected 2 AddInternalRoutes orders (one per hop), got %d", len(internalRoutes))
	}

	for _, o := range internalRoutes {
		if o.Subnet1 == (addr.Subnet{}) || o.Subnet2 == (addr.Subnet{}) {
			t.Errorf("AddInternalRoutes order missing subnet pair: %+v", o)
		}
	}
}

func TestEdgeInterfaceCollapsedOnRepeat(t *testing.T) {
	pl := &fakePipeline{}
	cfg := testConfig()
	// Simulate two edge descriptors sharing the same interface name.
	cfg.Edges = append(cfg.Edges, cfg.Edges[0])
	b := New(cfg, pl)

	dec := &graphml.SliceDecoder{
		Nodes: []graphml.NodeEvent{
			{Name: "A", Client: true},
			{Name: "B", Client: true},
		},
		Links: []graphml.LinkEvent{
			{SourceName: "A", TargetName: "B", Weight: 1},
		},
	}

	if err := b.Run(dec); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	addIface := pl.ordersWithTag(pipeline.OrderAddEdgeInterface)
	if len(addIface) != 1 {
		t.Fatalf("expected the repeated AddEdgeInterface to collapse to 1 call, got %d", len(addIface))
	}
}
