package header

import (
	"sync"

	"github.com/coldvault/vault/pkg/vaulterr"
)

// IdTableState is the committable snapshot of an IdTable: enough to
// reconstruct its allocation state exactly after an open, rollback, or
// savepoint restore.
type IdTableState struct {
	HighWater uint64   `cbor:"high_water"`
	Freelist  []uint64 `cbor:"freelist"`
	Allocated []uint64 `cbor:"allocated"`
}

// IdTable is the reusable handle-id allocator described in spec §4.7: a
// monotonic high-water mark plus a freelist of recycled ids. Next pops from
// the freelist before advancing the mark; Recycle rejects ids that are not
// currently allocated.
type IdTable struct {
	mu        sync.Mutex
	highWater uint64
	freelist  map[uint64]struct{}
	allocated map[uint64]struct{}
}

// New returns an empty IdTable.
func New() *IdTable {
	return &IdTable{freelist: make(map[uint64]struct{}), allocated: make(map[uint64]struct{})}
}

// Next allocates and returns a fresh id, preferring a recycled one.
func (t *IdTable) Next() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var id uint64
	if len(t.freelist) > 0 {
		for candidate := range t.freelist {
			id = candidate
			break
		}
		delete(t.freelist, id)
	} else {
		id = t.highWater
		t.highWater++
	}
	t.allocated[id] = struct{}{}
	return id
}

// Recycle returns id to the freelist. It rejects ids that are not currently
// allocated.
func (t *IdTable) Recycle(id uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.allocated[id]; !ok {
		return vaulterr.New(vaulterr.KindInvalidObject, "recycle of unallocated handle id")
	}
	delete(t.allocated, id)
	t.freelist[id] = struct{}{}
	return nil
}

// Snapshot returns a committable copy of the table's current state.
func (t *IdTable) Snapshot() IdTableState {
	t.mu.Lock()
	defer t.mu.Unlock()

	free := make([]uint64, 0, len(t.freelist))
	for id := range t.freelist {
		free = append(free, id)
	}
	alloc := make([]uint64, 0, len(t.allocated))
	for id := range t.allocated {
		alloc = append(alloc, id)
	}
	return IdTableState{HighWater: t.highWater, Freelist: free, Allocated: alloc}
}

// LoadFrom replaces the table's state wholesale, as happens on open,
// rollback, or savepoint restore.
func (t *IdTable) LoadFrom(s IdTableState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.highWater = s.HighWater
	t.freelist = make(map[uint64]struct{}, len(s.Freelist))
	for _, id := range s.Freelist {
		t.freelist[id] = struct{}{}
	}
	t.allocated = make(map[uint64]struct{}, len(s.Allocated))
	for _, id := range s.Allocated {
		t.allocated[id] = struct{}{}
	}
}
