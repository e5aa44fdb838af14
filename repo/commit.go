package repo

import (
	"github.com/coldvault/vault/pkg/header"
	"github.com/coldvault/vault/pkg/object"
	"github.com/coldvault/vault/pkg/vaulterr"
)

// snapshotHeaderLocked builds the committable Header reflecting the live
// chunk/pack index, instance map, and handle table. Caller must hold mu (at
// least for read).
func (r *Repository) snapshotHeaderLocked() header.Header {
	chunks, packs := r.chunks.Snapshot()
	return header.Header{
		Chunks:      header.ChunksToRecords(chunks),
		Packs:       header.PacksToRecords(packs),
		Instances:   header.InstancesToRecords(r.instances),
		HandleTable: r.handleTable.Snapshot(),
	}
}

// publishHeaderLocked writes h to a fresh header block, then updates the
// superblock to point at it. This single superblock write is the commit
// point (spec §4.8 / §7): a crash between the two leaves the prior header
// block as harmless orphan data, cleaned up by the next Clean.
func (r *Repository) publishHeaderLocked(h header.Header) error {
	headerID, err := writeHeaderBlock(r.store, r.cdc, h)
	if err != nil {
		return err
	}
	r.meta.HeaderID = headerID
	if err := writeSuperblock(r.store, r.meta); err != nil {
		return err
	}
	r.lastCommitted = h
	return nil
}

// Commit implements C8's commit protocol. flush, if non-nil, is called with
// an Object view onto the current instance's designated storage handle so
// the caller (a C12 view layer) can serialize its key/path -> object map
// into it before the header is snapshotted; flush is responsible for
// calling Commit/Serialize on that Object itself. Committing with no
// pending changes is a no-op on user-visible state but still advances the
// transaction generation, invalidating outstanding savepoints.
func (r *Repository) Commit(flush func(*object.Object) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentHandle != nil && flush != nil {
		obj := r.Object(r.currentHandle)
		if err := flush(obj); err != nil {
			return err
		}
		info := r.instances[r.currentInstanceID]
		info.Objects = *r.currentHandle
		r.instances[r.currentInstanceID] = info
	}

	if err := r.publishHeaderLocked(r.snapshotHeaderLocked()); err != nil {
		return err
	}
	r.txGen++
	return nil
}

// Rollback implements C8's rollback protocol: re-read the header the
// superblock currently points at, replace the in-memory chunk/pack index,
// instance map, and handle table, then reload the current instance's
// object map from its designated handle. The operation is all-or-nothing:
// if reload fails, the previous in-memory state is restored exactly.
func (r *Repository) Rollback(load func(*object.Object) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, err := readHeaderBlock(r.store, r.cdc, r.meta.HeaderID)
	if err != nil {
		return err
	}

	previous := r.snapshotHeaderLocked()
	previousInstanceID := r.currentInstanceID
	previousHandle := r.currentHandle

	r.loadHeaderLocked(h)

	if load != nil {
		info, ok := r.instances[r.currentInstanceID]
		if !ok {
			r.loadHeaderLocked(previous)
			r.currentInstanceID = previousInstanceID
			r.currentHandle = previousHandle
			return vaulterr.New(vaulterr.KindInvalidObject, "current instance absent after rollback")
		}
		handleCopy := info.Objects
		if err := load(r.Object(&handleCopy)); err != nil {
			r.loadHeaderLocked(previous)
			r.currentInstanceID = previousInstanceID
			r.currentHandle = previousHandle
			return err
		}
		r.currentHandle = &handleCopy
	}

	r.lastCommitted = h
	return nil
}
