package builder

import (
	"fmt"
	"io"
)

// WriteEdgeCommands emits the edge command file (§6 Output): one line per
// edge, starting "netmirage-edge", one "-e <subnet>" per edge subnet
// fragment, "-c <client_count>" for its rounded proportional client
// share, then its interface name (or a placeholder if it is still blank
// after preflight filled in the default interface), the elected root
// address reachable from that edge, its own
// virtual subnet, and its remote application count.
func (b *Builder) WriteEdgeCommands(w io.Writer) error {
	coreIP := b.rootSelfIP

	for i := range b.cfg.Edges {
		e := b.cfg.Edges[i]

		iface := e.Iface
		if iface == "" {
			iface = "<iface>"
		}

		line := "netmirage-edge"
		for _, frag := range e.fragments {
			line += fmt.Sprintf(" -e %s", frag.String())
		}
		line += fmt.Sprintf(" -c %d", e.clientShare)
		line += fmt.Sprintf(" %s %s %s %d", iface, coreIP.String(), e.VirtualSubnet.String(), e.RemoteApps)

		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
