package kernel

import (
	"encoding/binary"
	"math"

	"github.com/netmirage/netmirage-core/internal/netlinkw"
	"golang.org/x/sys/unix"
)

// netemRootHandle is the single root qdisc handle this layer always uses:
// 0x00010000 (major 1, minor 0).
const netemRootHandle = 0x00010000

const (
	tcaKind    = 1
	tcaOptions = 2
)

// netemQopt mirrors struct tc_netem_qopt.
type netemQopt struct {
	Latency   uint32
	Limit     uint32
	Loss      uint32
	Gap       uint32
	Duplicate uint32
	Jitter    uint32
}

// Shaping describes one netem configuration to apply to an interface.
type Shaping struct {
	LatencyMs float64
	JitterMs  float64
	PacketLoss float64 // 0..1
	RateMbps  float64 // 0 means unlimited
	QueueLen  uint32
}

// SetShaping installs a single netem qdisc on ifIndex's root handle,
// replacing any previous shaping on that interface. Latency and jitter are
// converted to psched ticks via ticksPerMs; loss is scaled to u32::MAX;
// rate is converted from Mbit/s to bytes/s.
func (k *Interface) SetShaping(ns *Namespace, ifIndex int, s Shaping) error {
	b := netlinkw.NewBuilder()
	seq := ns.Netlink().NextSeq()
	b.Begin(unix.RTM_NEWQDISC, unix.NLM_F_CREATE|unix.NLM_F_REPLACE|unix.NLM_F_ACK, seq)

	// struct tcmsg
	var tcm [20]byte
	tcm[0] = unix.AF_UNSPEC
	binary.LittleEndian.PutUint32(tcm[4:8], uint32(ifIndex))
	binary.LittleEndian.PutUint32(tcm[8:12], netemRootHandle)
	binary.LittleEndian.PutUint32(tcm[12:16], 0xFFFFFFFF) // parent: TC_H_ROOT
	b.Append(tcm[:])

	if err := b.PutAttr(tcaKind, nullTerminated("netem")); err != nil {
		return err
	}

	qopt := netemQopt{
		Latency: millisecondsToTicks(s.LatencyMs, k.ticksPerMs),
		Limit:   s.QueueLen,
		Loss:    lossToScale(s.PacketLoss),
		Jitter:  millisecondsToTicks(s.JitterMs, k.ticksPerMs),
	}

	var qoptBytes [24]byte
	binary.LittleEndian.PutUint32(qoptBytes[0:4], qopt.Latency)
	binary.LittleEndian.PutUint32(qoptBytes[4:8], qopt.Limit)
	binary.LittleEndian.PutUint32(qoptBytes[8:12], qopt.Loss)
	binary.LittleEndian.PutUint32(qoptBytes[12:16], qopt.Gap)
	binary.LittleEndian.PutUint32(qoptBytes[16:20], qopt.Duplicate)
	binary.LittleEndian.PutUint32(qoptBytes[20:24], qopt.Jitter)

	if err := b.PushAttr(tcaOptions); err != nil {
		return err
	}
	b.Append(qoptBytes[:])
	if s.RateMbps > 0 {
		var rateBytes [4]byte
		binary.LittleEndian.PutUint32(rateBytes[:], rateToBytesPerSec(s.RateMbps))
		// TCA_NETEM_RATE as a nested attribute within TCA_OPTIONS.
		if err := b.PutAttr(5 /* TCA_NETEM_RATE */, rateBytes[:]); err != nil {
			return err
		}
	}
	if err := b.PopAttr(); err != nil {
		return err
	}

	return ns.Netlink().Send(b, seq, true, nil)
}

// millisecondsToTicks converts a millisecond duration into psched ticks,
// rounding to the nearest tick.
func millisecondsToTicks(ms, ticksPerMs float64) uint32 {
	return uint32(math.Round(ms * ticksPerMs))
}

// lossToScale converts a 0..1 loss probability into the u32::MAX-scaled
// value netem expects.
func lossToScale(loss float64) uint32 {
	if loss <= 0 {
		return 0
	}
	if loss >= 1 {
		return math.MaxUint32
	}
	return uint32(math.Round(loss * float64(math.MaxUint32)))
}

// rateToBytesPerSec converts Mbit/s to bytes/s: Mbit/s * 125000.
func rateToBytesPerSec(mbps float64) uint32 {
	return uint32(math.Round(mbps * 125000))
}
