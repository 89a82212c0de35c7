package kernel

import "testing"

func TestMillisecondsToTicks(t *testing.T) {
	// ticksPerMs = 1e6 / ns_per_tick; with a 1000ns tick (common on modern
	// kernels), ticksPerMs = 1000.
	ticksPerMs := 1e6 / 1000.0
	got := millisecondsToTicks(10, ticksPerMs)
	want := uint32(10000)
	if got != want {
		t.Fatalf("millisecondsToTicks(10, %v) = %d, want %d", ticksPerMs, got, want)
	}
}

func TestLossToScale(t *testing.T) {
	if got := lossToScale(0); got != 0 {
		t.Fatalf("lossToScale(0) = %d, want 0", got)
	}
	if got := lossToScale(1); got != 0xFFFFFFFF {
		t.Fatalf("lossToScale(1) = %d, want max uint32", got)
	}
	half := lossToScale(0.5)
	if half < 0x7FFF0000 || half > 0x80010000 {
		t.Fatalf("lossToScale(0.5) = %d, not near half of uint32 max", half)
	}
}

func TestRateToBytesPerSec(t *testing.T) {
	got := rateToBytesPerSec(8) // 8 Mbit/s -> 1,000,000 bytes/s
	if got != 1000000 {
		t.Fatalf("rateToBytesPerSec(8) = %d, want 1000000", got)
	}
}
