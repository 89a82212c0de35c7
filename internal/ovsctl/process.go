// Package ovsctl drives a single Open vSwitch instance (one ovsdb-server
// plus one ovs-vswitchd, each confined to a private state directory) by
// invoking its CLI as child processes. Every command is issued from
// within the target namespace, since OVS has no notion of a namespace
// argument of its own.
package ovsctl

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	log "github.com/netmirage/netmirage-core/pkg/minilog"
)

// ExternalDependencies lists the binaries a working deployment must have
// on PATH.
var ExternalDependencies = []string{
	"ovsdb-tool",
	"ovsdb-server",
	"ovs-vsctl",
	"ovs-vswitchd",
	"ovs-appctl",
	"ovs-ofctl",
	"modprobe",
}

// run executes the given argument list with OVS_RUNDIR set to dir,
// returning the combined stdout/stderr. Blocks until the process exits.
func run(dir string, args ...string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("ovsctl: empty argument list")
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(cmd.Env, "OVS_RUNDIR="+dir)

	start := time.Now()
	out, err := cmd.CombinedOutput()
	log.Debug("ovsctl: %q completed in %v, output:\n%v", strings.Join(args, " "), time.Since(start), string(out))

	if err != nil {
		return string(out), &Error{Cmd: args, Output: string(out), Cause: err}
	}
	return string(out), nil
}

// runDaemon starts args as a detached long-running daemon (ovsdb-server,
// ovs-vswitchd) and returns without waiting for it to exit.
func runDaemon(dir string, args ...string) (*exec.Cmd, error) {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(cmd.Env, "OVS_RUNDIR="+dir)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ovsctl: start %q: %w", strings.Join(args, " "), err)
	}
	return cmd, nil
}

// Error wraps a non-zero OVS subprocess exit, carrying the command and its
// combined output for diagnostics.
type Error struct {
	Cmd    []string
	Output string
	Cause  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ovsctl: %s: %v\n%s", strings.Join(e.Cmd, " "), e.Cause, e.Output)
}

func (e *Error) Unwrap() error { return e.Cause }
