// Package memstore implements an in-memory blockstore.Store, used for tests
// and for repositories that never need to persist across process restarts.
package memstore

import (
	"sync"

	"github.com/coldvault/vault/pkg/blockstore"
)

// Store is a blockstore.Store backed by a guarded map. All returned byte
// slices are copies so callers can never mutate the store's internal state.
type Store struct {
	mu     sync.Mutex
	blocks map[blockstore.ID][]byte

	failing   bool
	failAfter int
	calls     int
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{blocks: make(map[blockstore.ID][]byte)}
}

// FailAfter makes the store return an error on the (n+1)th call to Write,
// simulating a crash partway through a commit. Used by the atomicity tests.
func (s *Store) FailAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = true
	s.failAfter = n
	s.calls = 0
}

func (s *Store) Read(id blockstore.ID) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blocks[id]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (s *Store) Write(id blockstore.ID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		s.calls++
		if s.calls > s.failAfter {
			return errWriteFailed
		}
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blocks[id] = cp
	return nil
}

func (s *Store) Remove(id blockstore.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, id)
	return nil
}

func (s *Store) List() ([]blockstore.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]blockstore.ID, 0, len(s.blocks))
	for id := range s.blocks {
		ids = append(ids, id)
	}
	return ids, nil
}

type writeFailedError struct{}

func (writeFailedError) Error() string { return "memstore: simulated write failure" }

var errWriteFailed = writeFailedError{}
