package ovsctl

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	log "github.com/netmirage/netmirage-core/pkg/minilog"
)

// logFileWorkaroundVersion is the OVS release strictly above which
// ovsdb-server/ovs-vswitchd need --log-file=/dev/null to skip a startup
// assertion that otherwise aborts them.
var logFileWorkaroundVersion = [2]int{2, 4}

// Instance owns one Open vSwitch database plus switch daemon, confined to
// Dir (which holds ovs.db, control sockets, pidfiles, and logs).
type Instance struct {
	Dir    string
	Bridge string

	mu         sync.Mutex
	destroyed  bool
	dbProc     *exec.Cmd
	switchProc *exec.Cmd
	version    [2]int
}

func (o *Instance) logFileArg() string {
	if versionGreater(o.version, logFileWorkaroundVersion) {
		return "--log-file=/dev/null"
	}
	return ""
}

func versionGreater(v, than [2]int) bool {
	if v[0] != than[0] {
		return v[0] > than[0]
	}
	return v[1] > than[1]
}

// DetectVersion runs "ovs-vsctl --version" and parses the major.minor
// release, probing whether the --log-file=/dev/null workaround applies.
func DetectVersion() ([2]int, error) {
	out, err := run("", "ovs-vsctl", "--version")
	if err != nil {
		return [2]int{}, err
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		for _, f := range fields {
			if major, minor, ok := parseMajorMinor(f); ok {
				return [2]int{major, minor}, nil
			}
		}
	}
	return [2]int{}, fmt.Errorf("ovsctl: could not parse version from: %q", out)
}

func parseMajorMinor(s string) (int, int, bool) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return major, minor, true
}

// probeKernelModule checks /proc/modules for "openvswitch" and attempts a
// modprobe if it is absent. Failure is logged as a warning, not fatal:
// subsequent OVS commands will surface the real failure if the module
// genuinely cannot load.
func probeKernelModule() {
	data, err := os.ReadFile("/proc/modules")
	if err == nil && strings.Contains(string(data), "openvswitch") {
		return
	}
	if _, err := run("", "modprobe", "openvswitch"); err != nil {
		log.Warn("ovsctl: modprobe openvswitch failed: %v", err)
	}
}

// Start creates a fresh OVS instance rooted at dir: initialises the
// database schema, spawns ovsdb-server and ovs-vswitchd, and creates
// bridge with a clean flow table.
func Start(dir, schemaPath, bridge string) (*Instance, error) {
	probeKernelModule()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("ovsctl: create state dir: %w", err)
	}

	version, err := DetectVersion()
	if err != nil {
		return nil, err
	}

	o := &Instance{Dir: dir, Bridge: bridge, version: version}

	dbPath := filepath.Join(dir, "ovs.db")
	if _, err := run(dir, "ovsdb-tool", "create", dbPath, schemaPath); err != nil {
		return nil, err
	}

	dbProc, err := runDaemon(dir, "ovsdb-server", o.logFileArg(),
		"--remote=punix:"+filepath.Join(dir, "db.sock"),
		"--pidfile="+filepath.Join(dir, "ovsdb-server.pid"),
		"--unixctl="+filepath.Join(dir, "ovsdb-server.ctl"),
		dbPath)
	if err != nil {
		return nil, err
	}
	o.dbProc = dbProc

	if _, err := run(dir, "ovs-vsctl", "--db=unix:"+filepath.Join(dir, "db.sock"), "--no-wait", "init"); err != nil {
		o.killDaemons()
		return nil, err
	}

	switchProc, err := runDaemon(dir, "ovs-vswitchd", o.logFileArg(),
		"--pidfile="+filepath.Join(dir, "ovs-vswitchd.pid"),
		"--unixctl="+filepath.Join(dir, "ovs-vswitchd.ctl"),
		"unix:"+filepath.Join(dir, "db.sock"))
	if err != nil {
		o.killDaemons()
		return nil, err
	}
	o.switchProc = switchProc

	if err := o.AddBridge(bridge); err != nil {
		o.killDaemons()
		return nil, err
	}
	if err := o.ClearFlows(bridge); err != nil {
		o.killDaemons()
		return nil, err
	}

	return o, nil
}

// Attach opens an Instance handle against an already-running OVS state
// directory, without spawning new daemons.
func Attach(dir, bridge string) (*Instance, error) {
	version, err := DetectVersion()
	if err != nil {
		return nil, err
	}
	return &Instance{Dir: dir, Bridge: bridge, version: version}, nil
}

func (o *Instance) vsctl(args ...string) (string, error) {
	full := append([]string{"ovs-vsctl", "--db=unix:" + filepath.Join(o.Dir, "db.sock")}, args...)
	return run(o.Dir, full...)
}

func (o *Instance) ofctl(args ...string) (string, error) {
	full := append([]string{"ovs-ofctl"}, args...)
	return run(o.Dir, full...)
}

func (o *Instance) killDaemons() {
	for _, p := range []*exec.Cmd{o.switchProc, o.dbProc} {
		if p != nil && p.Process != nil {
			p.Process.Kill()
			p.Wait()
		}
	}
}

// Destroy tears down the daemons and removes the state directory.
func (o *Instance) Destroy() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed {
		return nil
	}
	o.destroyed = true

	o.killDaemons()
	return os.RemoveAll(o.Dir)
}

// AddBridge creates a bridge if it does not already exist.
func (o *Instance) AddBridge(name string) error {
	_, err := o.vsctl("--may-exist", "add-br", name)
	return err
}

// DeleteBridge removes a bridge.
func (o *Instance) DeleteBridge(name string) error {
	_, err := o.vsctl("--if-exists", "del-br", name)
	return err
}

// SetBridgeMTU sets a bridge's MTU.
func (o *Instance) SetBridgeMTU(name string, mtu int) error {
	_, err := o.vsctl("set", "bridge", name, fmt.Sprintf("mtu_request=%d", mtu))
	return err
}

// AddPort attaches an existing kernel interface to a bridge as a port.
// Re-adding the same interface a second time is collapsed into a no-op,
// since --may-exist makes the command idempotent and the caller is
// expected to reuse the existing port index rather than allocate a new
// one.
func (o *Instance) AddPort(bridge, iface string) error {
	_, err := o.vsctl("--may-exist", "add-port", bridge, iface)
	return err
}

// DeletePort removes a port from a bridge.
func (o *Instance) DeletePort(bridge, iface string) error {
	_, err := o.vsctl("--if-exists", "del-port", bridge, iface)
	return err
}

// PortNumber returns the OpenFlow port number ovs-vsctl assigned to iface.
func (o *Instance) PortNumber(iface string) (int, error) {
	out, err := o.vsctl("get", "Interface", iface, "ofport")
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(out))
	if convErr != nil {
		return 0, fmt.Errorf("ovsctl: malformed ofport for %s: %q", iface, out)
	}
	return n, nil
}

// ClearFlows removes every flow from a bridge's table.
func (o *Instance) ClearFlows(bridge string) error {
	_, err := o.ofctl("del-flows", bridge)
	return err
}
