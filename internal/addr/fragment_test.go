package addr

import "testing"

// TestFragmentPowerOfTwo covers the simple even-split case.
func TestFragmentPowerOfTwo(t *testing.T) {
	s, _ := ParseSubnet("192.168.0.0/24")

	frags, err := Fragment(s, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(frags) != 4 {
		t.Fatalf("expected 4 fragments, got %d", len(frags))
	}
	for _, f := range frags {
		if f.Size() != 64 {
			t.Fatalf("expected size 64, got %d for %v", f.Size(), f)
		}
	}

	wantStarts := []uint32{0, 64, 128, 192}
	for i, f := range frags {
		if uint32(f.Base)&0xFF != wantStarts[i] {
			t.Fatalf("fragment %d start = %d, want %d", i, uint32(f.Base)&0xFF, wantStarts[i])
		}
	}
}

// TestFragmentUnequalSplit covers the 5-way split from scenario 1: three
// fragments of size 64 at offsets 0, 64, 128, followed by two fragments of
// size 32 at offsets 160, 192 — large fragments placed first.
func TestFragmentUnequalSplit(t *testing.T) {
	s, _ := ParseSubnet("192.168.0.0/24")

	frags, err := Fragment(s, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(frags) != 5 {
		t.Fatalf("expected 5 fragments, got %d", len(frags))
	}

	wantStarts := []uint32{0, 64, 128, 160, 192}
	wantSizes := []uint64{64, 64, 64, 32, 32}
	var total uint64
	for i, f := range frags {
		if uint32(f.Base)&0xFF != wantStarts[i] {
			t.Fatalf("fragment %d start = %d, want %d", i, uint32(f.Base)&0xFF, wantStarts[i])
		}
		if f.Size() != wantSizes[i] {
			t.Fatalf("fragment %d size = %d, want %d", i, f.Size(), wantSizes[i])
		}
		total += f.Size()
	}
	if total != s.Size() {
		t.Fatalf("fragments do not cover parent: total %d, want %d", total, s.Size())
	}
}

func TestFragmentRejectsTooManyPieces(t *testing.T) {
	s, _ := ParseSubnet("192.168.0.0/30")

	if _, err := Fragment(s, 5); err == nil {
		t.Fatal("expected error fragmenting 4-address subnet into 5 pieces")
	}
}

func TestFragmentSingle(t *testing.T) {
	s, _ := ParseSubnet("10.0.0.0/24")

	frags, err := Fragment(s, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(frags) != 1 || frags[0] != s {
		t.Fatalf("expected single fragment equal to parent, got %+v", frags)
	}
}
