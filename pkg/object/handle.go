// Package object implements C6: the seekable, transactional, content-defined
// object model built on top of the chunk store.
package object

import (
	"github.com/google/uuid"

	"github.com/coldvault/vault/pkg/chunk"
	"github.com/coldvault/vault/pkg/pack"
)

// HandleID uniquely identifies an object's handle across the lifetime of a
// repository, independent of the key or path an instance layer uses to find
// it.
type HandleID uint64

// ExtentKind distinguishes the two kinds of Extent.
type ExtentKind int

const (
	ExtentChunk ExtentKind = iota
	ExtentHole
)

// Extent is one contiguous run of an object's logical byte stream: either
// the content of a stored Chunk, or a run of implicit zero bytes (a Hole)
// that consumes no storage.
type Extent struct {
	Kind     ExtentKind  `cbor:"kind"`
	Chunk    chunk.Chunk `cbor:"chunk,omitempty"`
	HoleSize uint64      `cbor:"hole_size,omitempty"`
}

// Size returns the number of logical bytes this extent contributes.
func (e Extent) Size() uint64 {
	if e.Kind == ExtentHole {
		return e.HoleSize
	}
	return uint64(e.Chunk.Size)
}

// Handle is the persistent, serializable representation of an object: its
// identity and the ordered list of extents making up its contents. Handles
// are owned by the instance layer (stored in an object map) and shared, via
// a pointer, with any live Object built on top of them.
type Handle struct {
	ID      HandleID `cbor:"id"`
	Extents []Extent `cbor:"extents"`
}

// Size returns the object's total apparent size in bytes.
func (h *Handle) Size() uint64 {
	var total uint64
	for _, e := range h.Extents {
		total += e.Size()
	}
	return total
}

// Chunks returns every Chunk referenced by the handle's extents, in order.
func (h *Handle) Chunks() []chunk.Chunk {
	var out []chunk.Chunk
	for _, e := range h.Extents {
		if e.Kind == ExtentChunk {
			out = append(out, e.Chunk)
		}
	}
	return out
}

// ContentId is a value uniquely identifying the contents of an object
// within a repository: two objects (in the same repository) with equal
// ContentIds have byte-identical contents.
type ContentId struct {
	RepoID  uuid.UUID
	Extents []Extent
}

// Equal reports whether two ContentIds describe the same contents.
func (c ContentId) Equal(other ContentId) bool {
	if c.RepoID != other.RepoID || len(c.Extents) != len(other.Extents) {
		return false
	}
	for i := range c.Extents {
		if c.Extents[i] != other.Extents[i] {
			return false
		}
	}
	return true
}

// Range is a half-open byte range [Start, End) within an object.
type Range struct {
	Start uint64
	End   uint64
}

// Stats reports the actual (stored) and apparent (logical) size of an
// object, and the ranges of its sparse holes.
type Stats struct {
	Actual   uint64
	Apparent uint64
	Holes    []Range
}

// ChunkStore is the subset of the chunk store's behavior an Object needs:
// content-addressed, deduplicating, reference-counted chunk read/write.
// Implemented by pkg/chunkstore.Store so this package never needs to import
// it.
type ChunkStore interface {
	ReadChunk(c chunk.Chunk, ps *pack.State) ([]byte, error)
	WriteChunk(data []byte, handleID HandleID, ps *pack.State) (chunk.Chunk, error)
	RemoveReference(c chunk.Chunk, handleID HandleID) bool
}
