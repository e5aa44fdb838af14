// Package chunk implements C4 (boundary detection: Fixed and ZPAQ-style
// content-defined chunking) and the Chunk identity type shared by the chunk
// store and object model.
package chunk

import (
	"lukechampine.com/blake3"

	"github.com/coldvault/vault/pkg/vaulterr"
)

// HashSize is the size in bytes of a chunk's content digest.
const HashSize = 32

// Chunk is the immutable deduplication unit: the BLAKE3 digest and length
// of a run of plaintext bytes. Equality of (Hash, Size) means byte-equality
// of contents.
type Chunk struct {
	Hash [HashSize]byte `cbor:"hash"`
	Size uint32         `cbor:"size"`
}

// Of computes the Chunk identity for data. It is an error for data to
// exceed the maximum chunk size (u32::MAX bytes).
func Of(data []byte) (Chunk, error) {
	if uint64(len(data)) > uint64(^uint32(0)) {
		return Chunk{}, vaulterr.New(vaulterr.KindInvalidData, "chunk exceeds maximum size")
	}
	c := Chunk{Size: uint32(len(data))}
	c.Hash = blake3.Sum256(data)
	return c, nil
}

// Boundary is a content-defined or fixed-size chunk-boundary detector. A
// single Boundary value tracks state across successive calls to
// FindBoundary until Reset is called after each emitted boundary.
type Boundary interface {
	// FindBoundary scans data for the next chunk boundary. If found, it
	// returns the index one past the boundary (data[:idx] belongs to the
	// current chunk) and true. If no boundary is found in data, it returns
	// (0, false) and the caller should buffer all of data and continue
	// feeding more bytes.
	FindBoundary(data []byte) (idx int, found bool)

	// Reset prepares the detector to find the next boundary from scratch.
	Reset()
}
