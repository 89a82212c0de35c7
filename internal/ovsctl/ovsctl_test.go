package ovsctl

import (
	"testing"

	"github.com/netmirage/netmirage-core/internal/addr"
)

func TestVersionGreater(t *testing.T) {
	cases := []struct {
		v, than [2]int
		want    bool
	}{
		{[2]int{2, 5}, [2]int{2, 4}, true},
		{[2]int{2, 4}, [2]int{2, 4}, false},
		{[2]int{3, 0}, [2]int{2, 4}, true},
		{[2]int{2, 3}, [2]int{2, 4}, false},
	}
	for _, c := range cases {
		if got := versionGreater(c.v, c.than); got != c.want {
			t.Fatalf("versionGreater(%v, %v) = %v, want %v", c.v, c.than, got, c.want)
		}
	}
}

func TestParseMajorMinor(t *testing.T) {
	major, minor, ok := parseMajorMinor("2.17.0")
	if !ok || major != 2 || minor != 17 {
		t.Fatalf("parseMajorMinor(2.17.0) = %d,%d,%v", major, minor, ok)
	}

	if _, _, ok := parseMajorMinor("not-a-version"); ok {
		t.Fatal("expected failure parsing non-version token")
	}
}

func TestMacToUint64(t *testing.T) {
	m := addr.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	got := macToUint64(m)
	want := uint64(0x020000000001)
	if got != want {
		t.Fatalf("macToUint64 = %#x, want %#x", got, want)
	}
}
