package repo

import (
	"github.com/google/uuid"

	"github.com/coldvault/vault/pkg/blockstore"
	"github.com/coldvault/vault/pkg/chunk"
	"github.com/coldvault/vault/pkg/chunkstore"
	"github.com/coldvault/vault/pkg/header"
	"github.com/coldvault/vault/pkg/pack"
	"github.com/coldvault/vault/pkg/vaulterr"
)

// CleanStats reports what a Clean pass reclaimed.
type CleanStats struct {
	RemovedBlocks int // unpacked data blocks removed
	RemovedPacks  int // packs removed (packing enabled)
	RepackedAlive int // chunks repacked into fresh packs before their old pack was removed
	RemovedHeaders int
}

// memPackMap is a throwaway pack.Map over a plain Go map, used by Clean to
// drive pack.ReadBlock/pack.WriteBlock without touching the live chunk
// store's index until the new index is ready to install wholesale.
type memPackMap struct{ m map[uuid.UUID][]pack.Index }

func (p *memPackMap) Get(id uuid.UUID) ([]pack.Index, bool) { v, ok := p.m[id]; return v, ok }
func (p *memPackMap) Set(id uuid.UUID, idx []pack.Index)     { p.m[id] = idx }

// Clean implements C8's clean protocol: physically remove data blocks (or
// repack partially-used packs) unreferenced by either the live in-memory
// chunk index or the last-committed header, and drop stale header blocks.
func (r *Repository) Clean() (CleanStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	liveChunks, livePacks := r.chunks.Snapshot()
	for c, info := range liveChunks {
		if len(info.References) == 0 {
			delete(liveChunks, c)
			r.chunks.Delete(c)
		}
	}

	referenced := map[uuid.UUID]struct{}{}
	for _, info := range liveChunks {
		referenced[info.BlockID] = struct{}{}
	}
	for blockID := range r.lastCommitted.BlockIDs() {
		referenced[blockID] = struct{}{}
	}

	var stats CleanStats
	var err error
	if r.cfg.PackSize == 0 {
		stats, err = r.cleanUnpackedLocked(referenced)
	} else {
		stats, err = r.cleanPackedLocked(referenced, liveChunks, livePacks)
	}
	if err != nil {
		return CleanStats{}, err
	}

	removedHeaders, err := r.removeStaleHeadersLocked()
	if err != nil {
		return CleanStats{}, err
	}
	stats.RemovedHeaders = removedHeaders
	return stats, nil
}

func (r *Repository) cleanUnpackedLocked(referenced map[uuid.UUID]struct{}) (CleanStats, error) {
	ids, err := r.store.List()
	if err != nil {
		return CleanStats{}, vaulterr.Wrap(vaulterr.KindStore, "list blocks", err)
	}
	var removed int
	for _, id := range ids {
		if id.Kind != blockstore.KindData {
			continue
		}
		if _, live := referenced[id.UUID]; live {
			continue
		}
		if err := r.store.Remove(id); err != nil {
			return CleanStats{}, vaulterr.Wrap(vaulterr.KindStore, "remove block", err)
		}
		removed++
	}
	return CleanStats{RemovedBlocks: removed}, nil
}

func (r *Repository) cleanPackedLocked(referenced map[uuid.UUID]struct{}, liveChunks map[chunk.Chunk]chunkstore.ChunkInfo, livePacks map[uuid.UUID][]pack.Index) (CleanStats, error) {
	// Union of the live pack index and the last-committed header's pack
	// index (spec §4.8 step 3), live entries taking priority.
	union := header.RecordsToPacks(r.lastCommitted.Packs)
	for id, idx := range livePacks {
		union[id] = idx
	}

	packToBlocks := map[uuid.UUID]map[uuid.UUID]struct{}{}
	for blockID, idxs := range union {
		for _, ix := range idxs {
			if packToBlocks[ix.PackID] == nil {
				packToBlocks[ix.PackID] = map[uuid.UUID]struct{}{}
			}
			packToBlocks[ix.PackID][blockID] = struct{}{}
		}
	}

	doomedPacks := map[uuid.UUID]struct{}{}
	needsRepack := map[uuid.UUID]struct{}{}
	for packID, blocks := range packToBlocks {
		dirty := false
		for blockID := range blocks {
			if _, live := referenced[blockID]; !live {
				dirty = true
				break
			}
		}
		if !dirty {
			continue
		}
		doomedPacks[packID] = struct{}{}
		for blockID := range blocks {
			if _, live := referenced[blockID]; live {
				needsRepack[blockID] = struct{}{}
			}
		}
	}

	newPacks := map[uuid.UUID][]pack.Index{}
	for blockID, idxs := range union {
		if _, repack := needsRepack[blockID]; repack {
			continue
		}
		if _, live := referenced[blockID]; !live {
			continue
		}
		newPacks[blockID] = idxs
	}

	readMap := &memPackMap{m: union}
	readState := pack.NewState()
	writeMap := &memPackMap{m: map[uuid.UUID][]pack.Index{}}
	writeState := pack.NewState()
	repacked := 0
	for blockID := range needsRepack {
		data, err := pack.ReadBlock(r.store, r.cdc, readMap, readState, r.cfg.packConfig(), blockID)
		if err != nil {
			return CleanStats{}, err
		}
		if err := pack.WriteBlock(r.store, r.cdc, writeMap, writeState, r.cfg.packConfig(), blockID, data); err != nil {
			return CleanStats{}, err
		}
		repacked++
	}
	for blockID, idx := range writeMap.m {
		newPacks[blockID] = idx
	}

	var removedPacks int
	for packID := range doomedPacks {
		if err := r.store.Remove(blockstore.Data(packID)); err != nil {
			return CleanStats{}, vaulterr.Wrap(vaulterr.KindStore, "remove pack", err)
		}
		removedPacks++
	}

	r.chunks.LoadFrom(liveChunks, newPacks)

	// Per spec §9's open question: clean updates the previous committed
	// header's pack map in place, leaving every other field (chunks,
	// instances, handle table) equal to what was last committed. This is
	// deliberately not a commit of user changes, so txGen is untouched.
	newHeader := r.lastCommitted
	newHeader.Packs = header.PacksToRecords(newPacks)
	if err := r.publishHeaderLocked(newHeader); err != nil {
		return CleanStats{}, err
	}

	return CleanStats{RemovedPacks: removedPacks, RepackedAlive: repacked}, nil
}

func (r *Repository) removeStaleHeadersLocked() (int, error) {
	ids, err := r.store.List()
	if err != nil {
		return 0, vaulterr.Wrap(vaulterr.KindStore, "list blocks", err)
	}
	var removed int
	for _, id := range ids {
		if id.Kind != blockstore.KindHeader || id.UUID == r.meta.HeaderID {
			continue
		}
		if err := r.store.Remove(id); err != nil {
			return 0, vaulterr.Wrap(vaulterr.KindStore, "remove header block", err)
		}
		removed++
	}
	return removed, nil
}
