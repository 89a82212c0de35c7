// Package kernel wraps the syscalls, ioctls, and procfs/sysfs toggles that
// build one slice of the virtual network: namespace lifecycle, interfaces,
// addresses, shaping, ARP, routes, and policy rules. Every public operation
// that can fail against the kernel returns an *Error carrying the OS error
// number, the way the original code's process-wrapper errors carry exit
// codes in internal/bridge/process.go.
package kernel

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/netmirage/netmirage-core/pkg/minilog"
	"golang.org/x/sys/unix"
)

// Error wraps a kernel syscall failure with the operation that triggered it.
type Error struct {
	Op   string
	Errno unix.Errno
}

func (e *Error) Error() string {
	return fmt.Sprintf("kernel: %s: %v", e.Op, e.Errno)
}

func (e *Error) Unwrap() error { return e.Errno }

func wrapErrno(op string, err error) error {
	if err == nil {
		return nil
	}
	if errno, ok := err.(unix.Errno); ok {
		return &Error{Op: op, Errno: errno}
	}
	return fmt.Errorf("kernel: %s: %w", op, err)
}

// namespaceDir is the iproute2-compatible location for persistent namespace
// bind-mount files.
const namespaceDir = "/var/run/netns"

// Interface is the state shared by every kernel operation performed by a
// single worker process: the namespace directory setup and the derived
// psched tick scale used by the shaping code.
type Interface struct {
	mu sync.Mutex

	ticksPerMs float64
}

// New initialises /var/run/netns (creating and bind-mounting it as a shared
// mount if necessary) and reads /proc/net/psched to derive ticksPerMs.
func New() (*Interface, error) {
	if err := initNamespaceDir(); err != nil {
		return nil, err
	}

	ticks, err := readTicksPerMs()
	if err != nil {
		return nil, err
	}

	return &Interface{ticksPerMs: ticks}, nil
}

func initNamespaceDir() error {
	if err := os.MkdirAll(namespaceDir, 0755); err != nil {
		return wrapErrno("mkdir netns dir", err)
	}

	// Determine whether namespaceDir is already a mountpoint by comparing
	// its device id against its parent's; if not, bind-mount it onto
	// itself and mark it shared so bind-mounted namespace files become
	// visible to other mount namespaces (iproute2's own convention).
	mounted, err := isMountpoint(namespaceDir)
	if err != nil {
		return err
	}
	if !mounted {
		if err := unix.Mount(namespaceDir, namespaceDir, "", unix.MS_BIND, ""); err != nil {
			return wrapErrno("bind-mount netns dir", err)
		}
	}
	if err := unix.Mount("", namespaceDir, "", unix.MS_SHARED, ""); err != nil {
		log.Debug("kernel: mark netns dir shared: %v (already shared?)", err)
	}
	return nil
}

func isMountpoint(path string) (bool, error) {
	var st, parentSt unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false, wrapErrno("stat netns dir", err)
	}
	if err := unix.Stat(filepath.Dir(path), &parentSt); err != nil {
		return false, wrapErrno("stat netns parent", err)
	}
	return st.Dev != parentSt.Dev, nil
}

// readTicksPerMs parses /proc/net/psched's second field (ns-per-tick under
// the new-style kernel interpretation) into ticks_per_ms = 1e6 / ns_per_tick.
func readTicksPerMs() (float64, error) {
	data, err := os.ReadFile("/proc/net/psched")
	if err != nil {
		return 0, wrapErrno("read /proc/net/psched", err)
	}

	var nsPerUsec, tickNs, dummy2, dummy3 uint64
	n, err := fmt.Sscanf(string(data), "%x %x %x %x", &nsPerUsec, &tickNs, &dummy2, &dummy3)
	if err != nil || n < 2 {
		return 0, fmt.Errorf("kernel: malformed /proc/net/psched: %q", string(data))
	}
	if tickNs == 0 {
		return 0, fmt.Errorf("kernel: zero tick size in /proc/net/psched")
	}
	return 1e6 / float64(tickNs), nil
}

// TicksPerMs returns the cached psched tick scale used to convert shaping
// latencies into netem ticks.
func (k *Interface) TicksPerMs() float64 {
	return k.ticksPerMs
}
