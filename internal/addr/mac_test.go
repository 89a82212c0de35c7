package addr

import "testing"

func TestMACIteratorSequential(t *testing.T) {
	start := MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	it := NewMACIterator(start)

	first, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	if first != start {
		t.Fatalf("expected first = %v, got %v", start, first)
	}

	second, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	want := MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	if second != want {
		t.Fatalf("expected second = %v, got %v", want, second)
	}
}

func TestMACIteratorSkipsZero(t *testing.T) {
	// Start one below the zero address's successor so the counter would
	// land on the all-zero address after rollover and wrapping.
	it := NewMACIterator(MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})

	first, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	if first != (MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}) {
		t.Fatalf("unexpected first address %v", first)
	}

	// Next should skip the all-zero address and either return a valid one
	// or report exhaustion (since zero was the only remaining value before
	// wrapping back to start).
	second, err := it.Next()
	if err == nil && second.IsZero() {
		t.Fatal("all-zero address must never be assigned")
	}
}

func TestMACIteratorBatch(t *testing.T) {
	start := MAC{0x02, 0, 0, 0, 0, 0x10}
	it := NewMACIterator(start)

	batch, err := it.NextBatch(4)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 4 {
		t.Fatalf("expected 4 addresses, got %d", len(batch))
	}
	for i, m := range batch {
		want := MAC{0x02, 0, 0, 0, 0, byte(0x10 + i)}
		if m != want {
			t.Fatalf("batch[%d] = %v, want %v", i, m, want)
		}
	}
}

func TestMACIteratorExhaustion(t *testing.T) {
	it := &MACIterator{current: mac48Max}

	m, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	if uint64ToMAC(mac48Max) != m {
		t.Fatalf("expected last address before wrap, got %v", m)
	}

	if !it.wrapped {
		t.Fatal("expected iterator to mark wrapped after reaching max")
	}

	// current is now 0, which is the all-zero address: must be skipped and
	// report exhaustion since we've already wrapped once.
	if _, err := it.Next(); err == nil {
		t.Fatal("expected exhaustion error after wraparound")
	}
}
