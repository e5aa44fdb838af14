// Package blockstore defines the abstract block-addressed storage contract
// that every other layer of the engine is built on top of.
package blockstore

import (
	"fmt"

	"github.com/google/uuid"
)

// IDKind distinguishes the disjoint key space a BlockID is drawn from.
type IDKind uint8

const (
	KindVersion IDKind = iota
	KindSuper
	KindHeader
	KindLock
	KindData
)

// ID addresses a single opaque block. Header and Data ids carry a UUID;
// Version, Super, and Lock are singletons within a store.
type ID struct {
	Kind IDKind
	UUID uuid.UUID
}

func (id ID) String() string {
	switch id.Kind {
	case KindVersion:
		return "version"
	case KindSuper:
		return "super"
	case KindLock:
		return "lock"
	case KindHeader:
		return fmt.Sprintf("header/%s", id.UUID)
	case KindData:
		return fmt.Sprintf("data/%s", id.UUID)
	default:
		return "unknown"
	}
}

// Version returns the singleton Version block id.
func Version() ID { return ID{Kind: KindVersion} }

// Super returns the singleton Super block id.
func Super() ID { return ID{Kind: KindSuper} }

// Lock returns the singleton Lock block id.
func Lock() ID { return ID{Kind: KindLock} }

// Header returns a Header block id for the given uuid.
func Header(u uuid.UUID) ID { return ID{Kind: KindHeader, UUID: u} }

// Data returns a Data block id for the given uuid.
func Data(u uuid.UUID) ID { return ID{Kind: KindData, UUID: u} }

// NewDataID allocates a fresh random Data block id.
func NewDataID() ID { return Data(uuid.New()) }

// NewHeaderID allocates a fresh random Header block id.
func NewHeaderID() ID { return Header(uuid.New()) }

// Store is the contract every backing store implementation must satisfy.
// Writes of the same id overwrite; there is no cross-block atomicity or
// ordering guarantee. Implementations must make write atomic at the block
// level: a reader sees either the full new bytes or the full old bytes.
type Store interface {
	// Read returns the bytes stored at id, or ok=false if absent.
	Read(id ID) (data []byte, ok bool, err error)

	// Write stores data at id, overwriting any existing value.
	Write(id ID, data []byte) error

	// Remove deletes the block at id. Removing an absent id is not an error.
	Remove(id ID) error

	// List returns every id currently present in the store.
	List() ([]ID, error)
}
