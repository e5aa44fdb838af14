// Package header implements C7: the committable repository state (chunk
// table, pack index, instance map, handle id allocator) and its on-disk
// binary encoding, plus the superblock (RepoMetadata) that points at the
// currently-committed Header block.
package header

import (
	"time"

	"github.com/google/uuid"

	"github.com/coldvault/vault/pkg/chunk"
	"github.com/coldvault/vault/pkg/chunkstore"
	"github.com/coldvault/vault/pkg/object"
	"github.com/coldvault/vault/pkg/pack"
)

// ChunkRecord is one entry of a committed Header's chunk table: the content
// identity, where its bytes live, and which handles reference it.
type ChunkRecord struct {
	Hash       [chunk.HashSize]byte `cbor:"hash"`
	Size       uint32               `cbor:"size"`
	BlockID    uuid.UUID            `cbor:"block_id"`
	References []object.HandleID   `cbor:"references"`
}

// PackRecord is one entry of a committed Header's pack index: the block a
// pack's slices reconstruct, and the slice locations.
type PackRecord struct {
	BlockID uuid.UUID    `cbor:"block_id"`
	Entries []pack.Index `cbor:"entries"`
}

// InstanceInfo is the per-instance record in a committed Header: the
// version uuid the instance's higher-level view embeds (checked on
// switch_instance), and the handle whose serialized bytes are that view's
// key/path -> object map.
type InstanceInfo struct {
	VersionID uuid.UUID     `cbor:"version_id"`
	Objects   object.Handle `cbor:"objects"`
}

// InstanceRecord pairs an instance id with its InstanceInfo for the
// committed, list-shaped encoding of Header.Instances.
type InstanceRecord struct {
	InstanceID uuid.UUID    `cbor:"instance_id"`
	Info       InstanceInfo `cbor:"info"`
}

// Header is the entire commit-time persistent state other than the blocks
// themselves. It is deep-copyable by value (every field is a slice/array of
// value types), which Savepoint relies on.
type Header struct {
	Chunks      []ChunkRecord    `cbor:"chunks"`
	Packs       []PackRecord     `cbor:"packs"`
	Instances   []InstanceRecord `cbor:"instances"`
	HandleTable IdTableState     `cbor:"handle_table"`
}

// Metadata is the superblock: the repository's identity, configuration, and
// a pointer at the currently-committed Header block. It is never passed
// through the codec, since decoding it is a prerequisite for reconstructing
// the codec itself.
type Metadata struct {
	ID                 uuid.UUID `cbor:"id"`
	Config             Config    `cbor:"config"`
	EncryptedMasterKey []byte    `cbor:"encrypted_master_key"`
	Salt               []byte    `cbor:"salt"`
	HeaderID           uuid.UUID `cbor:"header_id"`
	CreationTime       time.Time `cbor:"creation_time"`
}

// Config is the persisted subset of a repository's configuration: the
// chunking, packing, compression, and encryption schemes, and the KDF
// resource limits used to wrap the master key. It mirrors repo.Config but
// lives here so Metadata can be serialized without importing the repo
// package (which imports header).
type Config struct {
	ChunkingKind    uint8  `cbor:"chunking_kind"`
	ChunkingParam   uint32 `cbor:"chunking_param"`
	PackSize        uint32 `cbor:"pack_size"`
	CompressionKind uint8  `cbor:"compression_kind"`
	CompressionLvl  int    `cbor:"compression_level"`
	EncryptionKind  uint8  `cbor:"encryption_kind"`
	MemoryLimit     uint8  `cbor:"memory_limit"`
	OperationsLimit uint8  `cbor:"operations_limit"`
}

// ChunksToRecords converts a live chunk index into its committable,
// deterministically-ordered form.
func ChunksToRecords(chunks map[chunk.Chunk]chunkstore.ChunkInfo) []ChunkRecord {
	out := make([]ChunkRecord, 0, len(chunks))
	for c, info := range chunks {
		refs := make([]object.HandleID, 0, len(info.References))
		for h := range info.References {
			refs = append(refs, h)
		}
		sortHandleIDs(refs)
		out = append(out, ChunkRecord{Hash: c.Hash, Size: c.Size, BlockID: info.BlockID, References: refs})
	}
	sortChunkRecords(out)
	return out
}

// RecordsToChunks reverses ChunksToRecords.
func RecordsToChunks(records []ChunkRecord) map[chunk.Chunk]chunkstore.ChunkInfo {
	out := make(map[chunk.Chunk]chunkstore.ChunkInfo, len(records))
	for _, r := range records {
		refs := make(map[object.HandleID]struct{}, len(r.References))
		for _, h := range r.References {
			refs[h] = struct{}{}
		}
		out[chunk.Chunk{Hash: r.Hash, Size: r.Size}] = chunkstore.ChunkInfo{BlockID: r.BlockID, References: refs}
	}
	return out
}

// PacksToRecords converts the live pack index into its committable form.
func PacksToRecords(packs map[uuid.UUID][]pack.Index) []PackRecord {
	out := make([]PackRecord, 0, len(packs))
	for blockID, idx := range packs {
		cp := make([]pack.Index, len(idx))
		copy(cp, idx)
		out = append(out, PackRecord{BlockID: blockID, Entries: cp})
	}
	sortPackRecords(out)
	return out
}

// RecordsToPacks reverses PacksToRecords.
func RecordsToPacks(records []PackRecord) map[uuid.UUID][]pack.Index {
	out := make(map[uuid.UUID][]pack.Index, len(records))
	for _, r := range records {
		cp := make([]pack.Index, len(r.Entries))
		copy(cp, r.Entries)
		out[r.BlockID] = cp
	}
	return out
}

// InstancesToRecords converts the live instance map into its committable,
// deterministically-ordered form.
func InstancesToRecords(instances map[uuid.UUID]InstanceInfo) []InstanceRecord {
	out := make([]InstanceRecord, 0, len(instances))
	for id, info := range instances {
		out = append(out, InstanceRecord{InstanceID: id, Info: info})
	}
	sortInstanceRecords(out)
	return out
}

// RecordsToInstances reverses InstancesToRecords.
func RecordsToInstances(records []InstanceRecord) map[uuid.UUID]InstanceInfo {
	out := make(map[uuid.UUID]InstanceInfo, len(records))
	for _, r := range records {
		out[r.InstanceID] = r.Info
	}
	return out
}

// BlockIDs returns every distinct block id still referenced by at least one
// handle in the header's chunk table, used by the clean protocol to compute
// what is reachable from a committed (rather than live) header. A chunk
// record with no references is already dead weight, just not yet reclaimed.
func (h Header) BlockIDs() map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{}, len(h.Chunks))
	for _, c := range h.Chunks {
		if len(c.References) == 0 {
			continue
		}
		out[c.BlockID] = struct{}{}
	}
	return out
}

func sortHandleIDs(ids []object.HandleID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

func sortChunkRecords(recs []ChunkRecord) {
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0 && less(recs[j-1], recs[j]); j-- {
			recs[j-1], recs[j] = recs[j], recs[j-1]
		}
	}
}

func less(a, b ChunkRecord) bool {
	if a.Size != b.Size {
		return a.Size > b.Size
	}
	for i := range a.Hash {
		if a.Hash[i] != b.Hash[i] {
			return a.Hash[i] > b.Hash[i]
		}
	}
	return false
}

func sortPackRecords(recs []PackRecord) {
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0 && recs[j-1].BlockID.String() > recs[j].BlockID.String(); j-- {
			recs[j-1], recs[j] = recs[j], recs[j-1]
		}
	}
}

func sortInstanceRecords(recs []InstanceRecord) {
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0 && recs[j-1].InstanceID.String() > recs[j].InstanceID.String(); j-- {
			recs[j-1], recs[j] = recs[j], recs[j-1]
		}
	}
}
