package addr

import "testing"

func TestIteratorVisitsAllAddresses(t *testing.T) {
	s, _ := ParseSubnet("192.168.0.0/30") // 4 addresses

	it := NewIterator(s, nil, false)

	var got []IPv4
	for {
		a, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, a)
	}

	if len(got) != 4 {
		t.Fatalf("expected 4 addresses, got %d", len(got))
	}
}

func TestIteratorSkipsReserved(t *testing.T) {
	s, _ := ParseSubnet("192.168.0.0/30") // network .0, broadcast .3

	it := NewIterator(s, nil, true)

	var got []IPv4
	for {
		a, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, a)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 usable addresses, got %d", len(got))
	}
	for _, a := range got {
		if a == s.Network() || a == s.Broadcast() {
			t.Fatalf("reserved address %v was visited", a)
		}
	}
}

func TestIteratorAvoidsSubnets(t *testing.T) {
	s, _ := ParseSubnet("192.168.0.0/24")
	avoidA, _ := ParseSubnet("192.168.0.0/25")  // first 128
	avoidB, _ := ParseSubnet("192.168.0.250/32") // one address near the end

	it := NewIterator(s, []Subnet{avoidA, avoidB}, false)

	count := 0
	for {
		a, ok := it.Next()
		if !ok {
			break
		}
		if avoidA.Contains(a) || avoidB.Contains(a) {
			t.Fatalf("visited avoided address %v", a)
		}
		count++
	}

	want := int(s.Size()) - int(avoidA.Size()) - int(avoidB.Size())
	if count != want {
		t.Fatalf("visited %d addresses, want %d", count, want)
	}
}

func TestIteratorTerminates(t *testing.T) {
	s, _ := ParseSubnet("10.0.0.0/31")
	it := NewIterator(s, nil, false)

	for i := 0; i < 10; i++ {
		if _, ok := it.Next(); !ok {
			if i != 2 {
				t.Fatalf("iterator exhausted after %d calls, expected 2", i)
			}
			return
		}
	}
	t.Fatal("iterator never exhausted")
}
