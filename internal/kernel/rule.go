package kernel

import (
	"encoding/binary"

	"github.com/netmirage/netmirage-core/internal/addr"
	"github.com/netmirage/netmirage-core/internal/netlinkw"
	"golang.org/x/sys/unix"
)

// Rule describes a policy routing rule: an optional match on a source
// subnet and/or input interface, selecting target at the given priority.
type Rule struct {
	Subnet   *addr.Subnet
	IifName  string
	Priority uint32
	Target   RouteTable
}

func (k *Interface) ruleMessage(ns *Namespace, msgType uint16, flags uint16, r Rule) error {
	b := netlinkw.NewBuilder()
	seq := ns.Netlink().NextSeq()
	b.Begin(msgType, flags, seq)

	// struct fib_rule_hdr
	var frh [8]byte
	frh[0] = unix.AF_INET
	if r.Subnet != nil {
		frh[1] = r.Subnet.PrefixLen
	}
	frh[4] = byte(r.Target)
	b.Append(frh[:])

	var prio [4]byte
	binary.LittleEndian.PutUint32(prio[:], r.Priority)
	if err := b.PutAttr(unix.FRA_PRIORITY, prio[:]); err != nil {
		return err
	}

	if r.Subnet != nil {
		if err := b.PutAttr(unix.FRA_SRC, ipToBytes(r.Subnet.Base)); err != nil {
			return err
		}
	}
	if r.IifName != "" {
		if err := b.PutAttr(unix.FRA_IFNAME, nullTerminated(r.IifName)); err != nil {
			return err
		}
	}
	if uint32(r.Target) > 0xFF {
		var tbl [4]byte
		binary.LittleEndian.PutUint32(tbl[:], uint32(r.Target))
		if err := b.PutAttr(unix.FRA_TABLE, tbl[:]); err != nil {
			return err
		}
	}

	return ns.Netlink().Send(b, seq, true, nil)
}

// AddRule installs a policy routing rule.
func (k *Interface) AddRule(ns *Namespace, r Rule) error {
	return k.ruleMessage(ns, unix.RTM_NEWRULE, unix.NLM_F_CREATE|unix.NLM_F_ACK, r)
}

// DeleteRule removes a policy routing rule.
func (k *Interface) DeleteRule(ns *Namespace, r Rule) error {
	return k.ruleMessage(ns, unix.RTM_DELRULE, unix.NLM_F_ACK, r)
}

// RuleExists queries whether any rule currently exists at the given
// priority.
func (k *Interface) RuleExists(ns *Namespace, priority uint32) (bool, error) {
	b := netlinkw.NewBuilder()
	seq := ns.Netlink().NextSeq()
	b.Begin(unix.RTM_GETRULE, unix.NLM_F_DUMP, seq)

	var frh [8]byte
	frh[0] = unix.AF_INET
	b.Append(frh[:])

	found := false
	err := ns.Netlink().Send(b, seq, true, func(msgType uint16, data []byte) error {
		if msgType != unix.RTM_NEWRULE || len(data) < 8 {
			return nil
		}
		for rest := data[8:]; len(rest) >= 4; {
			attrLen := int(binary.LittleEndian.Uint16(rest[0:2]))
			attrType := binary.LittleEndian.Uint16(rest[2:4])
			if attrLen < 4 || attrLen > len(rest) {
				break
			}
			value := rest[4:attrLen]
			if attrType == unix.FRA_PRIORITY && len(value) == 4 {
				if binary.LittleEndian.Uint32(value) == priority {
					found = true
				}
			}
			adv := (attrLen + 3) &^ 3
			rest = rest[adv:]
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}
