package routeplan

import "testing"

// TestFourNodeShortestPath covers the spec's scenario 2: a 4-node graph
// with edges 0->1:1, 1->2:1, 0->2:5, 2->3:1. route(0,3) should be
// [0,1,2,3] at cost 3, not the direct-looking 0->2:5->3 detour.
func TestFourNodeShortestPath(t *testing.T) {
	p := New(4)
	p.SetWeight(0, 1, 1)
	p.SetWeight(1, 2, 1)
	p.SetWeight(0, 2, 5)
	p.SetWeight(2, 3, 1)
	p.Plan()

	path, ok := p.Route(0, 3)
	if !ok {
		t.Fatal("expected a path from 0 to 3")
	}
	want := []int32{0, 1, 2, 3}
	if len(path) != len(want) {
		t.Fatalf("path = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("path = %v, want %v", path, want)
		}
	}

	if got := p.Weight(0, 3); got != 3 {
		t.Fatalf("weight(0,3) = %v, want 3", got)
	}
}

func TestUnreachablePair(t *testing.T) {
	p := New(3)
	p.SetWeight(0, 1, 1)
	p.Plan()

	if _, ok := p.Route(0, 2); ok {
		t.Fatal("expected node 2 to be unreachable")
	}
	if got := p.Weight(0, 2); got != Inf {
		t.Fatalf("weight(0,2) = %v, want Inf", got)
	}
}

func TestSelfRouteIsTrivial(t *testing.T) {
	p := New(3)
	p.Plan()

	path, ok := p.Route(1, 1)
	if !ok || len(path) != 1 || path[0] != 1 {
		t.Fatalf("route(1,1) = %v, %v, want [1], true", path, ok)
	}
}

func TestPathTerminatesWithinNSteps(t *testing.T) {
	const n = 6
	p := New(n)
	for i := 0; i < n-1; i++ {
		p.SetWeight(i, i+1, 1)
	}
	p.Plan()

	path, ok := p.Route(0, n-1)
	if !ok {
		t.Fatal("expected a path across the chain")
	}
	if len(path) > n {
		t.Fatalf("path length %d exceeds node count %d", len(path), n)
	}
}
