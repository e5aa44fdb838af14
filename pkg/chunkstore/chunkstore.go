// Package chunkstore implements C5: the content-addressed, deduplicating,
// reference-counted chunk store built on top of the pack layer.
package chunkstore

import (
	"sync"

	"github.com/google/uuid"

	"github.com/coldvault/vault/pkg/blockstore"
	"github.com/coldvault/vault/pkg/chunk"
	"github.com/coldvault/vault/pkg/codec"
	"github.com/coldvault/vault/pkg/object"
	"github.com/coldvault/vault/pkg/pack"
	"github.com/coldvault/vault/pkg/vaulterr"
)

// ChunkInfo records where a chunk's bytes live and which handles currently
// reference it. A chunk with no references is eligible for removal by the
// C10 clean protocol.
type ChunkInfo struct {
	BlockID    uuid.UUID                    `cbor:"block_id"`
	References map[object.HandleID]struct{} `cbor:"references"`
}

// Store is the live, in-memory chunk index for an open repository: a map
// from chunk identity to storage location, and the pack index backing it.
// Both maps are snapshotted into the committed Header on commit and
// restored from it on open or rollback.
type Store struct {
	mu      sync.Mutex
	chunks  map[chunk.Chunk]ChunkInfo
	packs   map[uuid.UUID][]pack.Index
	backend blockstore.Store
	cdc     codec.Codec
	packCfg pack.Config
}

// New returns an empty Store backed by backend, using cdc to encode/decode
// block contents and packCfg to control whether chunks are bundled into
// fixed-size packs.
func New(backend blockstore.Store, cdc codec.Codec, packCfg pack.Config) *Store {
	return &Store{
		chunks:  make(map[chunk.Chunk]ChunkInfo),
		packs:   make(map[uuid.UUID][]pack.Index),
		backend: backend,
		cdc:     cdc,
		packCfg: packCfg,
	}
}

// Get implements pack.Map.
func (s *Store) Get(blockID uuid.UUID) ([]pack.Index, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.packs[blockID]
	return idx, ok
}

// Set implements pack.Map.
func (s *Store) Set(blockID uuid.UUID, idx []pack.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packs[blockID] = idx
}

// ReadChunk implements object.ChunkStore.
func (s *Store) ReadChunk(c chunk.Chunk, ps *pack.State) ([]byte, error) {
	s.mu.Lock()
	info, ok := s.chunks[c]
	s.mu.Unlock()
	if !ok {
		return nil, vaulterr.New(vaulterr.KindInvalidData, "unknown chunk")
	}
	return pack.ReadBlock(s.backend, s.cdc, s, ps, s.packCfg, info.BlockID)
}

// WriteChunk implements object.ChunkStore: data is deduplicated by content;
// an existing chunk is reference-counted rather than rewritten.
func (s *Store) WriteChunk(data []byte, handleID object.HandleID, ps *pack.State) (chunk.Chunk, error) {
	c, err := chunk.Of(data)
	if err != nil {
		return chunk.Chunk{}, err
	}

	s.mu.Lock()
	if info, ok := s.chunks[c]; ok {
		info.References[handleID] = struct{}{}
		s.chunks[c] = info
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	blockID := uuid.New()
	if err := pack.WriteBlock(s.backend, s.cdc, s, ps, s.packCfg, blockID, data); err != nil {
		return chunk.Chunk{}, err
	}

	s.mu.Lock()
	s.chunks[c] = ChunkInfo{BlockID: blockID, References: map[object.HandleID]struct{}{handleID: {}}}
	s.mu.Unlock()
	return c, nil
}

// RemoveReference drops handleID's reference to c. It reports whether c now
// has no remaining references (and so is a candidate for the clean
// protocol); it does not remove any stored bytes itself.
func (s *Store) RemoveReference(c chunk.Chunk, handleID object.HandleID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.chunks[c]
	if !ok {
		return false
	}
	delete(info.References, handleID)
	return len(info.References) == 0
}

// Delete removes c from the live index entirely. Callers are responsible
// for reclaiming its underlying block(s) first.
func (s *Store) Delete(c chunk.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, c)
}

// Snapshot returns copies of the live chunk and pack maps, suitable for
// embedding in a committed Header.
func (s *Store) Snapshot() (map[chunk.Chunk]ChunkInfo, map[uuid.UUID][]pack.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := make(map[chunk.Chunk]ChunkInfo, len(s.chunks))
	for k, v := range s.chunks {
		refs := make(map[object.HandleID]struct{}, len(v.References))
		for r := range v.References {
			refs[r] = struct{}{}
		}
		chunks[k] = ChunkInfo{BlockID: v.BlockID, References: refs}
	}

	packs := make(map[uuid.UUID][]pack.Index, len(s.packs))
	for k, v := range s.packs {
		idx := make([]pack.Index, len(v))
		copy(idx, v)
		packs[k] = idx
	}

	return chunks, packs
}

// LoadFrom replaces the live chunk and pack maps wholesale, as happens when
// opening a repository or rolling back to a previous header.
func (s *Store) LoadFrom(chunks map[chunk.Chunk]ChunkInfo, packs map[uuid.UUID][]pack.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chunks == nil {
		chunks = make(map[chunk.Chunk]ChunkInfo)
	}
	if packs == nil {
		packs = make(map[uuid.UUID][]pack.Index)
	}
	s.chunks = chunks
	s.packs = packs
}

// BlockIDs returns the set of distinct block ids referenced by the live
// chunk index, used by the clean protocol to compute what is reachable.
func (s *Store) BlockIDs() map[uuid.UUID]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]struct{}, len(s.chunks))
	for _, info := range s.chunks {
		out[info.BlockID] = struct{}{}
	}
	return out
}
