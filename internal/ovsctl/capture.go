package ovsctl

import (
	"time"

	log "github.com/netmirage/netmirage-core/pkg/minilog"

	"github.com/netmirage/netmirage-core/internal/addr"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// VerifyARPResponder is an opt-in diagnostic: it opens a short-lived pcap
// capture on iface, sends nothing itself, and waits up to timeout for an
// ARP reply claiming ip/mac to cross the wire, confirming the responder
// flow installed by AddARPResponderFlow actually answers. Failure is
// surfaced as a debug log line, not an error, since this never gates
// construction.
func VerifyARPResponder(iface string, ip addr.IPv4, mac addr.MAC, timeout time.Duration) bool {
	handle, err := pcap.OpenLive(iface, 128, false, 200*time.Millisecond)
	if err != nil {
		log.Debug("ovsctl: capture diagnostic unavailable on %s: %v", iface, err)
		return false
	}
	defer handle.Close()

	if err := handle.SetBPFFilter("arp"); err != nil {
		log.Debug("ovsctl: capture filter failed on %s: %v", iface, err)
		return false
	}

	var eth layers.Ethernet
	var arp layers.ARP
	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &eth, &arp)
	var decoded []gopacket.LayerType

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		data, _, err := handle.ReadPacketData()
		if err == pcap.NextErrorTimeoutExpired {
			continue
		}
		if err != nil {
			log.Debug("ovsctl: capture read failed on %s: %v", iface, err)
			return false
		}

		if err := parser.DecodeLayers(data, &decoded); err != nil {
			continue
		}
		for _, lt := range decoded {
			if lt != layers.LayerTypeARP {
				continue
			}
			if arp.Operation != layers.ARPReply {
				continue
			}
			gotIP := addr.IPv4(uint32(arp.SourceProtAddress[0])<<24 | uint32(arp.SourceProtAddress[1])<<16 |
				uint32(arp.SourceProtAddress[2])<<8 | uint32(arp.SourceProtAddress[3]))
			if gotIP == ip && macEqual(arp.SourceHwAddress, mac) {
				return true
			}
		}
	}

	log.Debug("ovsctl: no ARP reply observed for %v within %v", ip, timeout)
	return false
}

func macEqual(raw []byte, m addr.MAC) bool {
	if len(raw) != 6 {
		return false
	}
	for i := range m {
		if raw[i] != m[i] {
			return false
		}
	}
	return true
}
