package addr

// Iterator enumerates the addresses of a subnet in order, skipping any
// address contained in one of a list of "avoid" subnets, and optionally
// skipping the subnet's own network and broadcast addresses. It advances
// monotonically by one address per Next call and reports exhaustion once
// the parent subnet is fully consumed.
type Iterator struct {
	subnet       Subnet
	avoid        []Subnet
	skipReserved bool

	offset uint64
	size   uint64
}

// NewIterator constructs an Iterator over subnet, skipping addresses
// contained in any of avoid, and skipping the network/broadcast addresses
// when skipReserved is set.
func NewIterator(subnet Subnet, avoid []Subnet, skipReserved bool) *Iterator {
	return &Iterator{
		subnet:       subnet,
		avoid:        avoid,
		skipReserved: skipReserved,
		size:         subnet.Size(),
	}
}

// Next returns the next eligible address, or false once the subnet is
// exhausted.
func (it *Iterator) Next() (IPv4, bool) {
	for it.offset < it.size {
		a := it.subnet.At(it.offset)
		it.offset++

		if it.skipReserved && it.size > 1 && (a == it.subnet.Network() || a == it.subnet.Broadcast()) {
			continue
		}

		if it.avoided(a) {
			continue
		}

		return a, true
	}
	return 0, false
}

func (it *Iterator) avoided(a IPv4) bool {
	for _, s := range it.avoid {
		if s.Contains(a) {
			return true
		}
	}
	return false
}
