// Package builder drives the GraphML-to-kernel-configuration state
// machine: it streams topology events, allocates identifiers, IP and MAC
// addresses, and edge subnets, issues work orders through the pipeline,
// and consults the route planner to realise static routing (§4.I).
package builder

import (
	"fmt"

	"github.com/netmirage/netmirage-core/internal/addr"
	"github.com/netmirage/netmirage-core/internal/graphml"
	"github.com/netmirage/netmirage-core/internal/pipeline"
	"github.com/netmirage/netmirage-core/internal/routeplan"
	log "github.com/netmirage/netmirage-core/pkg/minilog"
)

// Pipeline is the subset of *pipeline.Driver the builder drives. Defined
// here so tests can substitute a fake without spawning real worker
// processes.
type Pipeline interface {
	Submit(o pipeline.Order) error
	Broadcast(o pipeline.Order) error
	Join(resetError bool) error
	AwaitMailbox(workerIndex int) (pipeline.Response, error)
	WorkerCount() int
	LatchedError() error
}

// EdgeDescriptor describes one external edge machine, pre-flight input
// the builder validates and completes.
type EdgeDescriptor struct {
	Iface          string     // empty means "use the global default"
	RealMAC        *addr.MAC  // nil means "resolve via GetEdgeRemoteMac"
	VirtualSubnet  *addr.Subnet // nil means "auto-fragment the global subnet"
	RemoteApps     int

	resolvedMAC addr.MAC
	port        int
	fragments   []addr.Subnet
	clientShare int
}

// Config carries the parameters the out-of-scope setup-file parser would
// otherwise supply.
type Config struct {
	DefaultEdgeIface string
	GlobalSubnet     addr.Subnet // virtual client address space, fragmented across edges
	InternalPool     addr.Subnet // real address space for root/internal addressing

	NSPrefix  string
	OVSDir    string
	OVSSchema string

	LogThreshold int
	LogColorize  bool
	SoftMemCap   uint64

	// SingleRootAddress collapses the root's two addresses (self-link and
	// up-link) into one, per the Design Note in §9.
	SingleRootAddress bool

	Edges []EdgeDescriptor
}

// Builder holds the allocation state for one construction run.
type Builder struct {
	cfg Config
	pl  Pipeline

	ipIter  *addr.Iterator
	macIter *addr.MACIterator

	planner *routeplan.Planner

	nodeID       map[string]uint32
	nodeIsClient map[uint32]bool
	nodeIP       map[uint32]addr.IPv4
	nextNodeID   uint32

	clients    []uint32 // in id order
	clientEdge map[uint32]int
	clientFrag map[uint32]int

	rootSelfIP  addr.IPv4
	rootOtherIP addr.IPv4

	firstErr error
	reachedCleanupPoint bool
}

// New allocates a Builder over an already-configured Pipeline. The
// pipeline's workers must already have received Configure and acked it
// (the caller does this once per process, not per construction run).
func New(cfg Config, pl Pipeline) *Builder {
	avoid := []addr.Subnet{
		addr.NewSubnet(0, 8),                                       // 0.0.0.0/8
		addr.NewSubnet(addr.IPv4(127)<<24, 8),                      // 127.0.0.0/8
		addr.NewSubnet(addr.IPv4(0xFFFFFFFF), 32),                  // 255.255.255.255/32
	}
	for _, e := range cfg.Edges {
		if e.VirtualSubnet != nil {
			avoid = append(avoid, *e.VirtualSubnet)
		}
	}

	return &Builder{
		cfg:          cfg,
		pl:           pl,
		ipIter:       addr.NewIterator(cfg.InternalPool, avoid, true),
		nodeID:       make(map[string]uint32),
		nodeIsClient: make(map[uint32]bool),
		nodeIP:       make(map[uint32]addr.IPv4),
	}
}

func (b *Builder) fail(err error) error {
	if b.firstErr == nil {
		b.firstErr = err
	}
	return err
}

// Run drives the full construction pass described by §4.I. On any fatal
// error after the cleanup point has been reached, it issues a destroy
// pass before returning.
func (b *Builder) Run(dec graphml.Decoder) error {
	if err := b.preflight(); err != nil {
		return b.fail(err)
	}

	if err := b.rootSetup(); err != nil {
		return b.failWithRollback(err)
	}

	if err := b.hostStream(dec); err != nil {
		return b.failWithRollback(err)
	}

	if err := b.linkStream(dec); err != nil {
		return b.failWithRollback(err)
	}

	if err := b.staticRouting(); err != nil {
		return b.failWithRollback(err)
	}

	return nil
}

func (b *Builder) failWithRollback(err error) error {
	b.fail(err)
	if b.reachedCleanupPoint {
		ifaces := make([]string, 0, len(b.cfg.Edges))
		seen := make(map[string]bool, len(b.cfg.Edges))
		for _, e := range b.cfg.Edges {
			if e.Iface != "" && !seen[e.Iface] {
				seen[e.Iface] = true
				ifaces = append(ifaces, e.Iface)
			}
		}
		if rerr := b.pl.Broadcast(pipeline.Order{Tag: pipeline.OrderDestroyHosts, Ifaces: ifaces}); rerr != nil {
			log.Error("builder: rollback broadcast failed: %v", rerr)
		} else if jerr := b.pl.Join(true); jerr != nil {
			log.Error("builder: rollback join failed: %v", jerr)
		}
	}
	return err
}

func (b *Builder) allocNodeID(name string) uint32 {
	id := b.nextNodeID
	b.nextNodeID++
	b.nodeID[name] = id
	return id
}

func (b *Builder) allocIP() (addr.IPv4, error) {
	ip, ok := b.ipIter.Next()
	if !ok {
		return 0, fmt.Errorf("builder: internal address pool exhausted")
	}
	return ip, nil
}
