package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	proc "github.com/c9s/goprocinfo/linux"
	"github.com/netmirage/netmirage-core/internal/addr"
	"github.com/netmirage/netmirage-core/internal/builder"
	"github.com/netmirage/netmirage-core/internal/graphml"
	"github.com/netmirage/netmirage-core/internal/pipeline"
	log "github.com/netmirage/netmirage-core/pkg/minilog"
	"github.com/prometheus/client_golang/prometheus"
)

// memCapFraction is the share of total system memory reserved for each
// worker's namespace cache when -mem-cap is left at its zero default.
const memCapFraction = 10

// resolveMemCap returns explicit when it is non-zero, otherwise derives a
// cap from /proc/meminfo so the cache floor in nscache.CapacityFromMemory
// scales with the host instead of always falling back to its hardcoded
// minimum. A meminfo read failure just falls through to that minimum.
func resolveMemCap(explicit uint64) uint64 {
	if explicit != 0 {
		return explicit
	}
	mem, err := proc.ReadMemInfo("/proc/meminfo")
	if err != nil {
		return 0
	}
	return (mem.MemTotal * 1024) / memCapFraction
}

// runDriver spawns the worker pool, configures every worker, runs the
// builder over the configured GraphML source and edge descriptors, and
// writes the resulting edge command file to stdout.
func runDriver() error {
	argv0, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}

	reg := prometheus.NewRegistry()
	drv, err := pipeline.New(argv0, []string{"-worker"}, *fWorkers, reg)
	if err != nil {
		return fmt.Errorf("spawning worker pool: %w", err)
	}
	defer drv.Cleanup()

	if *fMetrics != "" {
		go func() {
			if err := pipeline.ServeMetrics(*fMetrics, reg); err != nil {
				log.Error("metrics listener stopped: %v", err)
			}
		}()
	}

	level, err := log.LevelInt(*fLevel)
	if err != nil {
		return fmt.Errorf("invalid -level: %w", err)
	}

	if err := drv.Broadcast(pipeline.Order{
		Tag:          pipeline.OrderConfigure,
		LogThreshold: int(level),
		LogColorize:  *fColorize,
		SoftMemCap:   resolveMemCap(*fMemCap),
		NSPrefix:     *fNSPrefix,
		OVSDir:       *fOVSDir,
		OVSSchema:    *fOVSSchema,
	}); err != nil {
		return fmt.Errorf("configuring workers: %w", err)
	}
	if err := drv.Join(false); err != nil {
		return fmt.Errorf("workers failed to configure: %w", err)
	}

	edges, err := loadEdgeDescriptors(*fEdges)
	if err != nil {
		return fmt.Errorf("loading edge descriptors: %w", err)
	}

	var graphSrc io.Reader = os.Stdin
	if *fGraphml != "" {
		f, err := os.Open(*fGraphml)
		if err != nil {
			return fmt.Errorf("opening graphml source %q: %w", *fGraphml, err)
		}
		defer f.Close()
		graphSrc = f
	}
	dec, err := decodeEventStream(graphSrc)
	if err != nil {
		return fmt.Errorf("reading topology stream: %w", err)
	}

	globalSubnet, err := addr.ParseSubnet(*fGlobalNet)
	if err != nil {
		return fmt.Errorf("invalid -global-subnet %q: %w", *fGlobalNet, err)
	}
	internalPool, err := addr.ParseSubnet(*fInternal)
	if err != nil {
		return fmt.Errorf("invalid -internal-pool %q: %w", *fInternal, err)
	}

	b := builder.New(builder.Config{
		DefaultEdgeIface:  "eth0",
		GlobalSubnet:      globalSubnet,
		InternalPool:      internalPool,
		NSPrefix:          *fNSPrefix,
		OVSDir:            *fOVSDir,
		OVSSchema:         *fOVSSchema,
		SingleRootAddress: *fSingleRootAddr,
		Edges:             edges,
	}, drv)

	if err := b.Run(dec); err != nil {
		return fmt.Errorf("building virtual network: %w", err)
	}

	return b.WriteEdgeCommands(os.Stdout)
}

// edgeDescriptorFile is the on-disk JSON shape for -edges; the format
// itself is an external collaborator's concern (§1 Out of scope), this
// is only the minimal adapter this binary reads to populate
// builder.EdgeDescriptor.
type edgeDescriptorFile struct {
	Iface         string `json:"iface"`
	RealMAC       string `json:"real_mac"`
	VirtualSubnet string `json:"virtual_subnet"`
	RemoteApps    int    `json:"remote_apps"`
}

func loadEdgeDescriptors(path string) ([]builder.EdgeDescriptor, error) {
	if path == "" {
		return nil, fmt.Errorf("-edges is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var raw []edgeDescriptorFile
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return nil, err
	}

	out := make([]builder.EdgeDescriptor, 0, len(raw))
	for _, r := range raw {
		d := builder.EdgeDescriptor{Iface: r.Iface, RemoteApps: r.RemoteApps}
		if r.RealMAC != "" {
			mac, err := parseMAC(r.RealMAC)
			if err != nil {
				return nil, fmt.Errorf("edge %q: %w", r.Iface, err)
			}
			d.RealMAC = &mac
		}
		if r.VirtualSubnet != "" {
			sub, err := addr.ParseSubnet(r.VirtualSubnet)
			if err != nil {
				return nil, fmt.Errorf("edge %q: %w", r.Iface, err)
			}
			d.VirtualSubnet = &sub
		}
		out = append(out, d)
	}
	return out, nil
}

func parseMAC(s string) (addr.MAC, error) {
	var m addr.MAC
	n, err := fmt.Sscanf(s, "%02x:%02x:%02x:%02x:%02x:%02x", &m[0], &m[1], &m[2], &m[3], &m[4], &m[5])
	if err != nil || n != 6 {
		return addr.MAC{}, fmt.Errorf("invalid MAC %q", s)
	}
	return m, nil
}

// jsonEvent is the newline-delimited JSON record this binary reads as a
// stand-in topology stream: {"kind":"node",...} or {"kind":"link",...}.
// Tokenising real GraphML XML is out of scope (§1); this is the minimal
// event-stream adapter the builder's graphml.Decoder interface expects
// from whatever external tokeniser a deployment wires in.
type jsonEvent struct {
	Kind string `json:"kind"`

	Name          string  `json:"name"`
	Client        bool    `json:"client"`
	PacketLoss    float64 `json:"packet_loss"`
	BandwidthUp   float64 `json:"bandwidth_up"`
	BandwidthDown float64 `json:"bandwidth_down"`

	SourceName string  `json:"source_name"`
	TargetName string  `json:"target_name"`
	LatencyMs  float64 `json:"latency"`
	JitterMs   float64 `json:"jitter"`
	QueueLen   uint32  `json:"queue_len"`
	Weight     float64 `json:"weight"`
}

func decodeEventStream(r io.Reader) (graphml.Decoder, error) {
	dec := json.NewDecoder(r)
	sd := &graphml.SliceDecoder{}
	for {
		var e jsonEvent
		if err := dec.Decode(&e); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		switch e.Kind {
		case "node":
			sd.Nodes = append(sd.Nodes, graphml.NodeEvent{
				Name: e.Name, Client: e.Client, PacketLoss: e.PacketLoss,
				BandwidthUp: e.BandwidthUp, BandwidthDown: e.BandwidthDown,
			})
		case "link":
			sd.Links = append(sd.Links, graphml.LinkEvent{
				SourceName: e.SourceName, TargetName: e.TargetName,
				LatencyMs: e.LatencyMs, JitterMs: e.JitterMs,
				PacketLoss: e.PacketLoss, QueueLen: e.QueueLen, Weight: e.Weight,
			})
		}
	}
	return sd, nil
}
