// Command netmirage-core is the entrypoint for both the driver process
// and its re-exec'd worker processes. Command-line and setup-file
// parsing beyond this minimal flag surface are an external collaborator's
// job; this binary exposes only what the core itself needs to start.
package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/netmirage/netmirage-core/pkg/minilog"
)

var (
	fWorker         = flag.Bool("worker", false, "run in worker-process mode (internal; spawned by the driver)")
	fLevel          = flag.String("level", "info", "minimum log level (debug, info, warn, error, fatal)")
	fLogfile        = flag.String("logfile", "", "append logs to this file in addition to stderr")
	fColorize       = flag.Bool("v", true, "colorize stderr log output")
	fWorkers        = flag.Int("workers", 1, "number of worker processes")
	fNSPrefix       = flag.String("ns-prefix", "nm", "prefix for kernel namespace names")
	fOVSDir         = flag.String("ovs-dir", "/var/run/netmirage-ovs", "Open vSwitch runtime directory")
	fOVSSchema      = flag.String("ovs-schema", "/usr/share/openvswitch/vswitch.ovsschema", "Open vSwitch database schema path")
	fMemCap         = flag.Uint64("mem-cap", 0, "soft byte cap for the per-worker namespace cache (0 means a tenth of system memory, read from /proc/meminfo)")
	fGraphml        = flag.String("graphml", "", "path to the GraphML topology file (defaults to stdin)")
	fEdges          = flag.String("edges", "", "path to the edge descriptor file (required)")
	fMetrics        = flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	fGlobalNet      = flag.String("global-subnet", "10.200.0.0/16", "virtual client address space, fragmented across edges")
	fInternal       = flag.String("internal-pool", "10.100.0.0/16", "real address space used for root and internal addressing")
	fSingleRootAddr = flag.Bool("single-root-address", false, "collapse the root namespace's self-link and up-link addresses into one")
)

func main() {
	flag.Parse()

	level, err := log.LevelInt(*fLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "netmirage-core: invalid -level %q: %v\n", *fLevel, err)
		os.Exit(1)
	}
	log.AddLogger("stderr", os.Stderr, level, *fColorize)
	if *fLogfile != "" {
		f, err := os.OpenFile(*fLogfile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "netmirage-core: cannot open -logfile %q: %v\n", *fLogfile, err)
			os.Exit(1)
		}
		log.AddLogger("file", f, level, false)
	}

	if *fWorker {
		runWorker()
		return
	}

	if err := runDriver(); err != nil {
		log.Error("netmirage-core: %v", err)
		os.Exit(1)
	}
}
