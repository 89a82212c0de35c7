package kernel

import (
	"fmt"
	"os"
	"testing"
)

func TestNamespaceLifecycle(t *testing.T) {
	requireRoot(t)

	k, err := New()
	if err != nil {
		t.Fatal(err)
	}

	prefix := "netmirage-test-"
	name := fmt.Sprintf("ns%d", os.Getpid())

	ns, err := k.OpenNamespace(prefix, name, true, true)
	if err != nil {
		t.Fatal(err)
	}

	if err := ns.Invalidate(); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	if err := k.DeleteNamespace(prefix, name); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var seen []string
	if err := k.EnumerateNamespaces(prefix, func(n string) error {
		seen = append(seen, n)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	for _, n := range seen {
		if n == name {
			t.Fatalf("deleted namespace %q still enumerated", name)
		}
	}
}

func TestOpenNamespaceRejectsExclOnExisting(t *testing.T) {
	requireRoot(t)

	k, err := New()
	if err != nil {
		t.Fatal(err)
	}

	prefix := "netmirage-test-"
	name := fmt.Sprintf("nsexcl%d", os.Getpid())

	ns, err := k.OpenNamespace(prefix, name, true, true)
	if err != nil {
		t.Fatal(err)
	}
	defer k.DeleteNamespace(prefix, name)
	defer ns.Invalidate()

	if _, err := k.OpenNamespace(prefix, name, true, true); err == nil {
		t.Fatal("expected error opening an already-existing namespace with excl=true")
	}
}
