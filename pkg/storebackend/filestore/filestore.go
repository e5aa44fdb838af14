// Package filestore implements a filesystem-backed blockstore.Store: one
// file per block under a directory, with a host-level flock guarding
// concurrent opens from other processes on the same machine.
package filestore

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/coldvault/vault/pkg/blockstore"
)

// Store is a blockstore.Store rooted at a directory on disk.
type Store struct {
	mu   sync.Mutex
	root string
	fl   *flock.Flock
}

// Open opens (creating if necessary) a filestore rooted at dir and acquires
// a host-level advisory lock on dir/.lock. The lock is released by Close.
// This is a convenience layered under the on-store Lock block (pkg/lock);
// it guards against two processes racing to create the directory itself,
// which predates any block ever existing in the store.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	fl := flock.New(filepath.Join(dir, ".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, errLocked{}
	}
	return &Store{root: dir, fl: fl}, nil
}

// Close releases the host-level lock.
func (s *Store) Close() error {
	return s.fl.Unlock()
}

func (s *Store) path(id blockstore.ID) string {
	switch id.Kind {
	case blockstore.KindVersion:
		return filepath.Join(s.root, "version")
	case blockstore.KindSuper:
		return filepath.Join(s.root, "super")
	case blockstore.KindLock:
		return filepath.Join(s.root, "lock")
	case blockstore.KindHeader:
		return filepath.Join(s.root, "header-"+id.UUID.String())
	default:
		return filepath.Join(s.root, "data-"+id.UUID.String())
	}
}

func (s *Store) Read(id blockstore.ID) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *Store) Write(id blockstore.ID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tmpID := uuid.New()
	tmp := s.path(id) + ".tmp-" + hex.EncodeToString(tmpID[:8])
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(id))
}

func (s *Store) Remove(id blockstore.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(id))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *Store) List() ([]blockstore.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var ids []blockstore.ID
	for _, e := range entries {
		name := e.Name()
		switch {
		case name == "version":
			ids = append(ids, blockstore.Version())
		case name == "super":
			ids = append(ids, blockstore.Super())
		case name == "lock":
			ids = append(ids, blockstore.Lock())
		case strings.HasPrefix(name, "header-"):
			u, err := uuid.Parse(strings.TrimPrefix(name, "header-"))
			if err != nil {
				continue
			}
			ids = append(ids, blockstore.Header(u))
		case strings.HasPrefix(name, "data-"):
			u, err := uuid.Parse(strings.TrimPrefix(name, "data-"))
			if err != nil {
				continue
			}
			ids = append(ids, blockstore.Data(u))
		}
	}
	return ids, nil
}

type errLocked struct{}

func (errLocked) Error() string { return "filestore: directory is locked by another process" }
