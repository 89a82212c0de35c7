//go:build linux

package minilog

import (
	"log/syslog"
)

// AddSyslog adds a logger that writes to the local or remote syslog daemon.
// network == "local" connects to the local syslog socket; any other network
// ("udp", "tcp") dials raddr. Calling more than once overwrites the existing
// syslog writer.
func AddSyslog(network, raddr, tag string, level Level) error {
	var w *syslog.Writer
	var err error

	priority := syslog.LOG_INFO | syslog.LOG_DAEMON

	if network == "local" {
		w, err = syslog.New(priority, tag)
	} else {
		w, err = syslog.Dial(network, raddr, priority, tag)
	}
	if err != nil {
		return err
	}

	AddLogger("syslog", w, level, false)
	return nil
}
