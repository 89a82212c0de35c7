package kernel

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/netmirage/netmirage-core/pkg/minilog"
)

func writeSysctl(path string, value string) error {
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return wrapErrno("write "+path, err)
	}
	return nil
}

func readSysctl(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", wrapErrno("read "+path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SetForwarding toggles /proc/sys/net/ipv4/ip_forward.
func (k *Interface) SetForwarding(enabled bool) error {
	return writeSysctl("/proc/sys/net/ipv4/ip_forward", boolDigit(enabled))
}

// SetAcceptLocal toggles accepting packets with a local source address
// (needed for the reflection-style self-link traffic), via
// /proc/sys/net/ipv4/conf/all/accept_local.
func (k *Interface) SetAcceptLocal(enabled bool) error {
	return writeSysctl("/proc/sys/net/ipv4/conf/all/accept_local", boolDigit(enabled))
}

// DisableIPv6 turns off IPv6 on every interface in the current namespace,
// since the emulated fabric is IPv4-only by design.
func (k *Interface) DisableIPv6() error {
	return writeSysctl("/proc/sys/net/ipv6/conf/all/disable_ipv6", "1")
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ARPGCThresholds holds the three Linux neighbour-table garbage collection
// watermarks.
type ARPGCThresholds struct {
	Thresh1, Thresh2, Thresh3 int
}

const arpGCBase = "/proc/sys/net/ipv4/neigh/default/gc_thresh"

// ReadARPGCThresholds reads gc_thresh{1,2,3}.
func (k *Interface) ReadARPGCThresholds() (ARPGCThresholds, error) {
	var t ARPGCThresholds
	for i, dst := range []*int{&t.Thresh1, &t.Thresh2, &t.Thresh3} {
		s, err := readSysctl(fmt.Sprintf("%s%d", arpGCBase, i+1))
		if err != nil {
			return ARPGCThresholds{}, err
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return ARPGCThresholds{}, fmt.Errorf("kernel: malformed gc_thresh%d: %q", i+1, s)
		}
		*dst = v
	}
	return t, nil
}

// SetARPGCThresholds writes new values for gc_thresh{1,2,3}.
func (k *Interface) SetARPGCThresholds(t ARPGCThresholds) error {
	values := []int{t.Thresh1, t.Thresh2, t.Thresh3}
	for i, v := range values {
		if err := writeSysctl(fmt.Sprintf("%s%d", arpGCBase, i+1), strconv.Itoa(v)); err != nil {
			return err
		}
	}
	return nil
}

// WidenARPGCThresholds raises gc_thresh2/gc_thresh3 by multiplier if the
// planned ARP-entry count for a namespace exceeds the current gc_thresh2,
// logging the change at Info rather than failing with ResourceExhausted.
// It returns the new thresholds and whether a change was made.
func (k *Interface) WidenARPGCThresholds(plannedEntries int, multiplier int) (ARPGCThresholds, bool, error) {
	t, err := k.ReadARPGCThresholds()
	if err != nil {
		return ARPGCThresholds{}, false, err
	}
	if plannedEntries <= t.Thresh2 {
		return t, false, nil
	}

	widened := ARPGCThresholds{
		Thresh1: t.Thresh1,
		Thresh2: t.Thresh2 * multiplier,
		Thresh3: t.Thresh3 * multiplier,
	}
	for widened.Thresh2 < plannedEntries {
		widened.Thresh2 *= multiplier
		widened.Thresh3 *= multiplier
	}

	if err := k.SetARPGCThresholds(widened); err != nil {
		return ARPGCThresholds{}, false, err
	}
	log.Info("kernel: widened ARP GC thresholds for %d planned entries: gc_thresh2 %d -> %d, gc_thresh3 %d -> %d",
		plannedEntries, t.Thresh2, widened.Thresh2, t.Thresh3, widened.Thresh3)
	return widened, true, nil
}
