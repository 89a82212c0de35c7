package pipeline

import "github.com/netmirage/netmirage-core/internal/addr"

// OrderTag identifies the kind of work order carried by an Order record.
type OrderTag int

const (
	OrderPing OrderTag = iota
	OrderTerminate
	OrderConfigure
	OrderGetEdgeRemoteMac
	OrderGetEdgeLocalMac
	OrderAddRoot
	OrderAddEdgeInterface
	OrderAddHost
	OrderSetSelfLink
	OrderEnsureSystemScaling
	OrderAddLink
	OrderAddInternalRoutes
	OrderAddClientRoutes
	OrderAddEdgeRoutes
	OrderDestroyHosts
)

// LinkParams mirrors the topology link fields relevant to shaping and
// routing (§3 DATA MODEL).
type LinkParams struct {
	LatencyMs  float64
	JitterMs   float64
	PacketLoss float64
	QueueLen   uint32
	Weight     float64
}

// NodeParams mirrors the topology node fields relevant to shaping.
type NodeParams struct {
	Client        bool
	PacketLoss    float64
	BandwidthUp   float64
	BandwidthDown float64
}

// Order is a tagged record describing one privileged operation. It carries
// every field any order kind might need; unused fields for a given Tag are
// zero. The order carries all data the worker needs: no shared memory
// crosses the process boundary.
type Order struct {
	Tag OrderTag

	// Configure
	LogThreshold int
	LogColorize  bool
	SoftMemCap   uint64
	NSPrefix     string
	OVSDir       string
	OVSSchema    string

	// GetEdgeRemoteMac / GetEdgeLocalMac / AddEdgeInterface / AddEdgeRoutes
	Iface string
	IP    addr.IPv4

	// AddRoot
	SelfIP   addr.IPv4
	OtherIP  addr.IPv4
	Existing bool

	// AddHost / SetSelfLink / AddLink
	ID     uint32
	DstID  uint32
	SrcIP  addr.IPv4
	DstIP  addr.IPv4
	MACs   [4]addr.MAC
	Node   NodeParams
	Link   LinkParams

	// EnsureSystemScaling
	Links, Nodes, Clients int

	// AddInternalRoutes
	ID1, ID2       uint32
	IP1, IP2       addr.IPv4
	Subnet1, Subnet2 addr.Subnet

	// AddClientRoutes
	ClientID uint32
	Subnet   addr.Subnet
	EdgePort int

	// AddEdgeRoutes
	EdgeSubnet addr.Subnet
	LocalMAC, RemoteMAC addr.MAC

	// DestroyHosts: every edge interface name that was moved into the root
	// namespace during root setup, so rollback can move each back out.
	Ifaces []string
}

// ResponseTag identifies the kind of response a worker sends back.
type ResponseTag int

const (
	RespPong ResponseTag = iota
	RespError
	RespLogChunk
	RespLogEnd
	RespGotMac
	RespAddedEdgeInterface
)

// ErrorCode enumerates the error kinds of §7.
type ErrorCode int

const (
	ErrConfigInvalid ErrorCode = iota
	ErrKernel
	ErrOvsFailed
	ErrProtocolViolation
	ErrResourceExhausted
	ErrNotRoutable
)

// Response is a tagged record a worker sends back over its stdout stream.
type Response struct {
	Tag ResponseTag

	Code    ErrorCode
	Message string

	LogBytes []byte

	MAC  addr.MAC
	Port int
}
