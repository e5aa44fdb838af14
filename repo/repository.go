package repo

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coldvault/vault/pkg/blockstore"
	"github.com/coldvault/vault/pkg/chunkstore"
	"github.com/coldvault/vault/pkg/codec"
	"github.com/coldvault/vault/pkg/codec/aead"
	"github.com/coldvault/vault/pkg/header"
	"github.com/coldvault/vault/pkg/lock"
	"github.com/coldvault/vault/pkg/object"
)

// FormatVersion is the implementation's on-disk format identifier, written
// verbatim (16 raw bytes) as the store's Version block.
var FormatVersion = uuid.MustParse("c01dfeed-0001-4000-8000-000000000001")

// Repository is the open handle onto a backing store's object space: the
// live chunk/pack index, the handle id allocator, the instance map, and the
// bookkeeping needed to commit, roll back, and clean it. It corresponds to
// spec §4.7's RepoState and KeyRepo combined into a single Go value, since
// this module exposes no reason to split them across a process boundary.
type Repository struct {
	store blockstore.Store
	cfg   Config
	cdc   codec.Codec

	chunks      *chunkstore.Store
	handleTable *header.IdTable
	txLocks     *lock.Table[object.HandleID]

	objMusMu sync.Mutex
	objMus   map[object.HandleID]*sync.RWMutex

	// mu is the repo-level writer lock from spec §5: it serializes commit,
	// rollback, clean, savepoint restore, and instance switches against each
	// other, and guards the fields below.
	mu                sync.RWMutex
	meta              header.Metadata
	masterKey         aead.Key
	instances         map[uuid.UUID]header.InstanceInfo
	currentInstanceID uuid.UUID
	currentHandle     *object.Handle
	lastCommitted     header.Header
	txGen             uint64

	procGuard *lock.Guard[uuid.UUID]
	storeLock *lock.OnStoreLock
}

// ObjectId is the public, stable identity of an object (spec §3): it
// identifies a handle across renames, independent of the key or path any
// higher-level view uses to find it.
type ObjectId struct {
	RepoID     uuid.UUID
	InstanceID uuid.UUID
	HandleID   object.HandleID
}

// Info reports static, read-only facts about an open repository.
type Info struct {
	ID           uuid.UUID
	Config       Config
	CreationTime time.Time
}

// Stats reports the size of the live chunk/pack index.
type Stats struct {
	Chunks int
	Blocks int
	Packs  int
}

func newRepository(store blockstore.Store, cdc codec.Codec, cfg Config, meta header.Metadata, masterKey aead.Key, h header.Header, procGuard *lock.Guard[uuid.UUID], storeLock *lock.OnStoreLock) *Repository {
	r := &Repository{
		store:       store,
		cfg:         cfg,
		cdc:         cdc,
		chunks:      chunkstore.New(store, cdc, cfg.packConfig()),
		handleTable: header.New(),
		txLocks:     lock.NewTable[object.HandleID](),
		objMus:      make(map[object.HandleID]*sync.RWMutex),
		meta:        meta,
		masterKey:   masterKey,
		instances:   make(map[uuid.UUID]header.InstanceInfo),
		lastCommitted: h,
		procGuard:   procGuard,
		storeLock:   storeLock,
	}
	r.loadHeaderLocked(h)
	return r
}

// loadHeaderLocked replaces the live chunk/pack index, handle table, and
// instance map from h. Caller must hold mu.
func (r *Repository) loadHeaderLocked(h header.Header) {
	r.chunks.LoadFrom(header.RecordsToChunks(h.Chunks), header.RecordsToPacks(h.Packs))
	r.handleTable.LoadFrom(h.HandleTable)
	r.instances = header.RecordsToInstances(h.Instances)
}

// Config returns the repository's configuration.
func (r *Repository) Config() Config { return r.cfg }

// Info reports static repository facts.
func (r *Repository) Info() Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Info{ID: r.meta.ID, Config: r.cfg, CreationTime: r.meta.CreationTime}
}

// Stats reports the current size of the live chunk/pack index.
func (r *Repository) Stats() Stats {
	chunks, packs := r.chunks.Snapshot()
	blocks := make(map[uuid.UUID]struct{}, len(chunks))
	for _, info := range chunks {
		blocks[info.BlockID] = struct{}{}
	}
	return Stats{Chunks: len(chunks), Blocks: len(blocks), Packs: len(packs)}
}

// muFor returns the shared extent-list mutex for handle id, creating one on
// first use. Every Object built on the same handle shares this mutex, as
// spec §4.6 requires.
func (r *Repository) muFor(id object.HandleID) *sync.RWMutex {
	r.objMusMu.Lock()
	defer r.objMusMu.Unlock()
	m, ok := r.objMus[id]
	if !ok {
		m = &sync.RWMutex{}
		r.objMus[id] = m
	}
	return m
}

// Object returns a seekable, transactional view onto h, sharing the
// per-handle extent-list mutex and transaction-lock table with every other
// live Object on the same handle.
func (r *Repository) Object(h *object.Handle) *object.Object {
	return object.New(h, r.chunks, r.muFor(h.ID), r.txLocks, r.cfg.newBoundary)
}

// NewHandle allocates a fresh, empty handle.
func (r *Repository) NewHandle() *object.Handle {
	return &object.Handle{ID: object.HandleID(r.handleTable.Next())}
}

// RemoveHandle drops h's references to its chunks and recycles its id. The
// chunks themselves are not deleted from the store; they become eligible
// for reclamation by the next Clean once no other handle references them.
func (r *Repository) RemoveHandle(h *object.Handle) error {
	for _, c := range h.Chunks() {
		r.chunks.RemoveReference(c, h.ID)
	}
	return r.handleTable.Recycle(uint64(h.ID))
}

// CurrentInstance returns the id of the instance most recently selected by
// SwitchInstance, or uuid.Nil if none has been selected yet.
func (r *Repository) CurrentInstance() uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentInstanceID
}

// CurrentHandle returns the handle backing the current instance's
// key/path -> object map, or nil if no instance has been selected.
func (r *Repository) CurrentHandle() *object.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentHandle
}

// Close releases the on-store lock (best effort) and the intra-process
// lock. Any uncommitted changes are simply discarded, since nothing reaches
// the backing store outside of Commit.
func (r *Repository) Close() error {
	err := r.storeLock.Unlock()
	r.procGuard.Release()
	return err
}
