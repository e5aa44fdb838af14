// Package lock implements C9's two advisory locks: a process-global
// intra-process table keyed by an arbitrary comparable id, and the
// on-store Lock block protocol.
package lock

import (
	"sync"

	"github.com/google/uuid"
)

// Table is a process-wide set of currently-held keys. At most one Guard
// may be outstanding per key at a time.
type Table[K comparable] struct {
	mu     sync.Mutex
	locked map[K]struct{}
}

// NewTable returns an empty lock table.
func NewTable[K comparable]() *Table[K] {
	return &Table[K]{locked: make(map[K]struct{})}
}

// Guard represents a held lock. Release must be called exactly once.
type Guard[K comparable] struct {
	table *Table[K]
	key   K
}

// Acquire locks key, returning (guard, true) on success or (nil, false) if
// key is already locked.
func (t *Table[K]) Acquire(key K) (*Guard[K], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, held := t.locked[key]; held {
		return nil, false
	}
	t.locked[key] = struct{}{}
	return &Guard[K]{table: t, key: key}, true
}

// IsLocked reports whether key is currently held by any guard.
func (t *Table[K]) IsLocked(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, held := t.locked[key]
	return held
}

// Release frees the lock. Releasing a nil guard is a no-op, so callers can
// unconditionally defer it.
func (g *Guard[K]) Release() {
	if g == nil {
		return
	}
	g.table.mu.Lock()
	defer g.table.mu.Unlock()
	delete(g.table.locked, g.key)
}

// processRepos is the single lazily-initialized process-wide table
// ensuring at most one in-process opener per repository id.
var processRepos = NewTable[uuid.UUID]()

// AcquireProcess acquires the intra-process lock for repoID.
func AcquireProcess(repoID uuid.UUID) (*Guard[uuid.UUID], bool) {
	return processRepos.Acquire(repoID)
}
