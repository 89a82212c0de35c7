package kernel

import (
	"os"
	"testing"
)

// requireRoot skips tests that touch real namespace/kernel syscalls unless
// running as root, the way the teacher's own privileged-path tests guard on
// environment rather than faking the syscall layer.
func requireRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("requires root to manipulate network namespaces")
	}
}
