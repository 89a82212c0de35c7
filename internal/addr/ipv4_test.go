package addr

import "testing"

func TestParseIPv4RoundTrip(t *testing.T) {
	cases := []string{"192.168.0.1", "10.0.0.0", "255.255.255.255", "0.0.0.0"}

	for _, s := range cases {
		a, err := ParseIPv4(s)
		if err != nil {
			t.Fatalf("ParseIPv4(%q): %v", s, err)
		}
		if got := a.String(); got != s {
			t.Fatalf("round trip %q got %q", s, got)
		}
	}
}

func TestParseSubnetCanonicalises(t *testing.T) {
	s, err := ParseSubnet("192.168.0.5/24")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.String(); got != "192.168.0.0/24" {
		t.Fatalf("expected host bits cleared, got %q", got)
	}
}

func TestSubnetRoundTrip(t *testing.T) {
	cases := []string{"10.1.2.0/24", "192.168.0.0/16", "172.16.4.0/30", "0.0.0.0/0", "1.2.3.4/32"}

	for _, s := range cases {
		parsed, err := ParseSubnet(s)
		if err != nil {
			t.Fatalf("ParseSubnet(%q): %v", s, err)
		}
		if got := parsed.String(); got != s {
			t.Fatalf("round trip %q got %q", s, got)
		}
		reparsed, err := ParseSubnet(parsed.String())
		if err != nil {
			t.Fatal(err)
		}
		if reparsed != parsed {
			t.Fatalf("reparse mismatch: %+v vs %+v", reparsed, parsed)
		}
	}
}

func TestSubnetSize(t *testing.T) {
	s, _ := ParseSubnet("192.168.0.0/24")
	if s.Size() != 256 {
		t.Fatalf("expected size 256, got %d", s.Size())
	}

	s32, _ := ParseSubnet("1.2.3.4/32")
	if s32.Size() != 1 {
		t.Fatalf("expected size 1, got %d", s32.Size())
	}
}

func TestSubnetContains(t *testing.T) {
	s, _ := ParseSubnet("192.168.0.0/24")

	inside, _ := ParseIPv4("192.168.0.200")
	outside, _ := ParseIPv4("192.168.1.1")

	if !s.Contains(inside) {
		t.Fatal("expected subnet to contain address")
	}
	if s.Contains(outside) {
		t.Fatal("expected subnet to not contain address")
	}
}

func TestSubnetOverlaps(t *testing.T) {
	a, _ := ParseSubnet("10.0.0.0/24")
	b, _ := ParseSubnet("10.0.0.128/25")
	c, _ := ParseSubnet("10.0.1.0/24")

	if !a.Overlaps(b) {
		t.Fatal("expected overlap")
	}
	if a.Overlaps(c) {
		t.Fatal("expected no overlap")
	}
}
