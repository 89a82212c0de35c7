package kernel

import "testing"

func TestWidenARPGCThresholdsNoChangeWhenUnderLimit(t *testing.T) {
	requireRoot(t)

	k, err := New()
	if err != nil {
		t.Fatal(err)
	}

	before, err := k.ReadARPGCThresholds()
	if err != nil {
		t.Fatal(err)
	}

	after, changed, err := k.WidenARPGCThresholds(before.Thresh2-1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Fatal("expected no widening when planned entries are under gc_thresh2")
	}
	if after != before {
		t.Fatalf("thresholds changed unexpectedly: %+v -> %+v", before, after)
	}
}

func TestWidenARPGCThresholdsGrowsPastTarget(t *testing.T) {
	requireRoot(t)

	k, err := New()
	if err != nil {
		t.Fatal(err)
	}

	before, err := k.ReadARPGCThresholds()
	if err != nil {
		t.Fatal(err)
	}
	defer k.SetARPGCThresholds(before)

	target := before.Thresh2*3 + 7
	after, changed, err := k.WidenARPGCThresholds(target, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected widening when planned entries exceed gc_thresh2")
	}
	if after.Thresh2 < target {
		t.Fatalf("widened gc_thresh2 %d still below target %d", after.Thresh2, target)
	}
}
