// Package nscache implements the bounded LRU of open namespace contexts
// that a worker process consults before every kernel operation. The cache
// is represented as an arena of entries plus prev/next indices and a map
// from node id to slot, per the design note on avoiding interior-mutable
// pointers for a cyclic LRU list.
package nscache

import (
	"fmt"

	"github.com/netmirage/netmirage-core/internal/kernel"
)

const noSlot = -1

type entry struct {
	id       uint32
	inUse    bool
	ns       *kernel.Namespace
	prev, next int
}

// Cache is a fixed-capacity LRU keyed by node id, embedding one namespace
// context per slot.
type Cache struct {
	kernel *kernel.Interface
	prefix string

	arena    []entry
	byID     map[uint32]int
	oldest   int
	newest   int
	freeHead int
}

// New creates a cache with the given capacity (never below 100, per the
// design's floor) backed by k for the actual namespace open/switch calls.
func New(k *kernel.Interface, prefix string, capacity int) *Cache {
	if capacity < 100 {
		capacity = 100
	}

	c := &Cache{
		kernel: k,
		prefix: prefix,
		arena:  make([]entry, capacity),
		byID:   make(map[uint32]int, capacity),
		oldest: noSlot,
		newest: noSlot,
	}
	for i := range c.arena {
		c.arena[i].prev = noSlot
		c.arena[i].next = i + 1
	}
	c.arena[capacity-1].next = noSlot
	c.freeHead = 0
	return c
}

// CapacityFromMemory derives a capacity from a memory budget: floor(cap /
// (sizeof(entry) + overhead)), with a floor of 100. overhead accounts for
// the namespace context's own kernel-side resources (fds, netlink socket
// buffers) that do not show up in Go's struct size.
func CapacityFromMemory(maxBytes uint64, overhead uint64) int {
	const entrySize = 64 // conservative estimate for entry + pointer/map overhead
	n := int(maxBytes / (entrySize + overhead))
	if n < 100 {
		n = 100
	}
	return n
}

func (c *Cache) unlink(slot int) {
	e := &c.arena[slot]
	if e.prev != noSlot {
		c.arena[e.prev].next = e.next
	} else {
		c.oldest = e.next
	}
	if e.next != noSlot {
		c.arena[e.next].prev = e.prev
	} else {
		c.newest = e.prev
	}
	e.prev, e.next = noSlot, noSlot
}

func (c *Cache) linkNewest(slot int) {
	e := &c.arena[slot]
	e.prev = c.newest
	e.next = noSlot
	if c.newest != noSlot {
		c.arena[c.newest].next = slot
	}
	c.newest = slot
	if c.oldest == noSlot {
		c.oldest = slot
	}
}

func (c *Cache) allocSlot() (int, error) {
	if c.freeHead != noSlot {
		slot := c.freeHead
		c.freeHead = c.arena[slot].next
		return slot, nil
	}
	if c.oldest == noSlot {
		return 0, fmt.Errorf("nscache: cache has zero capacity")
	}

	slot := c.oldest
	old := &c.arena[slot]
	if old.ns != nil {
		if err := old.ns.Invalidate(); err != nil {
			return 0, fmt.Errorf("nscache: evicting id %d: %w", old.id, err)
		}
	}
	delete(c.byID, old.id)
	c.unlink(slot)
	return slot, nil
}

// Open returns the namespace context for id. For a cached id it also
// switches the process's active namespace to it. If id is not cached, a
// slot is allocated (evicting the oldest entry if the cache is full) and
// the kernel layer opens the namespace in place; that context is returned
// without switching the active namespace.
func (c *Cache) Open(id uint32, name string, create, excl bool) (*kernel.Namespace, error) {
	if slot, ok := c.byID[id]; ok {
		c.unlink(slot)
		c.linkNewest(slot)
		ns := c.arena[slot].ns
		if err := c.kernel.Switch(ns); err != nil {
			return nil, err
		}
		return ns, nil
	}

	slot, err := c.allocSlot()
	if err != nil {
		return nil, err
	}

	ns, err := c.kernel.OpenNamespace(c.prefix, name, create, excl)
	if err != nil {
		// Return the slot to the free list; it was never linked in.
		c.arena[slot].next = c.freeHead
		c.freeHead = slot
		return nil, err
	}

	c.arena[slot] = entry{id: id, inUse: true, ns: ns}
	c.byID[id] = slot
	c.linkNewest(slot)

	return ns, nil
}

// Len returns the number of live entries, for the nscache size metric.
func (c *Cache) Len() int {
	return len(c.byID)
}

// Invalidate evicts and invalidates id's entry, if present, without
// opening a replacement. Used by DestroyHosts.
func (c *Cache) Invalidate(id uint32) error {
	slot, ok := c.byID[id]
	if !ok {
		return nil
	}
	e := &c.arena[slot]
	err := e.ns.Invalidate()
	delete(c.byID, id)
	c.unlink(slot)
	c.arena[slot] = entry{prev: noSlot, next: c.freeHead}
	c.freeHead = slot
	return err
}
