// Package boltstore implements a blockstore.Store backed by a single bbolt
// database file with one bucket, keyed by the block id's string form.
package boltstore

import (
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/coldvault/vault/pkg/blockstore"
)

var bucketName = []byte("blocks")

// Store is a blockstore.Store over a single bbolt database file.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a bbolt-backed store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(id blockstore.ID) []byte {
	return []byte(id.String())
}

func (s *Store) Read(id blockstore.ID) ([]byte, bool, error) {
	var data []byte
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key(id))
		if v == nil {
			return nil
		}
		ok = true
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	return data, ok, err
}

func (s *Store) Write(id blockstore.ID, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(key(id), data)
	})
}

func (s *Store) Remove(id blockstore.ID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(key(id))
	})
}

func (s *Store) List() ([]blockstore.ID, error) {
	var ids []blockstore.ID
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, _ []byte) error {
			id, ok := parseKey(string(k))
			if ok {
				ids = append(ids, id)
			}
			return nil
		})
	})
	return ids, err
}

func parseKey(s string) (blockstore.ID, bool) {
	switch {
	case s == "version":
		return blockstore.Version(), true
	case s == "super":
		return blockstore.Super(), true
	case s == "lock":
		return blockstore.Lock(), true
	case len(s) > len("header/") && s[:len("header/")] == "header/":
		u, err := uuid.Parse(s[len("header/"):])
		if err != nil {
			return blockstore.ID{}, false
		}
		return blockstore.Header(u), true
	case len(s) > len("data/") && s[:len("data/")] == "data/":
		u, err := uuid.Parse(s[len("data/"):])
		if err != nil {
			return blockstore.ID{}, false
		}
		return blockstore.Data(u), true
	default:
		return blockstore.ID{}, false
	}
}
