// Package keyrepo implements C12's key -> object map view: the simplest
// public view onto a repository, exposing an arbitrary-string-keyed
// namespace of objects on top of the generic commit/rollback/savepoint core
// in package repo.
package keyrepo

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/coldvault/vault/pkg/blockstore"
	"github.com/coldvault/vault/pkg/object"
	"github.com/coldvault/vault/pkg/vaulterr"
	"github.com/coldvault/vault/repo"
)

// versionID identifies this view's instance format to repo.SwitchInstance,
// so opening a store written by a different view (e.g. hashrepo) fails
// loudly instead of misinterpreting its bytes.
var versionID = uuid.MustParse("c01dfeed-0002-4000-8000-000000000001")

// defaultInstanceID is the single, well-known instance every KeyRepo opens:
// nothing in this view's contract needs more than one instance per store,
// unlike a future multi-snapshot view.
var defaultInstanceID uuid.UUID

// Repo is a key -> object map view onto a repository, serialized into the
// current instance's designated object as a CBOR map on every Commit.
//
// objects holds one *object.Handle per key rather than a value copy: a
// Handle's Extents are mutated in place by its Object's Commit (object.go's
// Commit assigns directly to o.handle.Extents), so Insert/Get/Remove/Copy
// must all hand out and store the same pointer an Object writes through —
// otherwise a committed write's extents never reach the map that flush
// serializes.
type Repo struct {
	core *repo.Repository

	mu      sync.RWMutex
	objects map[string]*object.Handle
}

// Open creates the backing repository if absent, or opens it if present,
// then selects the key-map's default instance.
func Open(store blockstore.Store, cfg repo.Config, password string) (*Repo, error) {
	core, err := openOrCreate(store, cfg, password)
	if err != nil {
		return nil, err
	}
	k := &Repo{core: core, objects: map[string]*object.Handle{}}
	if err := core.SwitchInstance(versionID, defaultInstanceID, k.flush, k.load); err != nil {
		core.Close()
		return nil, err
	}
	return k, nil
}

func openOrCreate(store blockstore.Store, cfg repo.Config, password string) (*repo.Repository, error) {
	core, err := repo.Open(store, password, nil)
	if err == nil {
		return core, nil
	}
	if vaulterr.Is(err, vaulterr.KindNotFound) {
		return repo.Create(store, cfg, password)
	}
	return nil, err
}

func (k *Repo) flush(obj *object.Object) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return obj.Serialize(k.objects)
}

func (k *Repo) load(obj *object.Object) error {
	var m map[string]*object.Handle
	if err := obj.Deserialize(&m); err != nil {
		return err
	}
	if m == nil {
		m = map[string]*object.Handle{}
	}
	k.mu.Lock()
	k.objects = m
	k.mu.Unlock()
	return nil
}

// Insert allocates a fresh, empty object under key, replacing whatever was
// there before. The returned Object is open for writing; its contents are
// not visible to Get until Commit.
func (k *Repo) Insert(key string) *object.Object {
	h := k.core.NewHandle()
	k.mu.Lock()
	k.objects[key] = h
	k.mu.Unlock()
	return k.core.Object(h)
}

// Get returns the object stored at key, or ok=false if key is absent.
func (k *Repo) Get(key string) (*object.Object, bool) {
	k.mu.RLock()
	h, ok := k.objects[key]
	k.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return k.core.Object(h), true
}

// Remove deletes key, dropping its object's chunk references. It fails with
// NotFound if key is absent.
func (k *Repo) Remove(key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	h, ok := k.objects[key]
	if !ok {
		return vaulterr.New(vaulterr.KindNotFound, "key not found")
	}
	delete(k.objects, key)
	return k.core.RemoveHandle(h)
}

// Copy aliases dst onto the same Handle as src: both keys share the same
// *object.Handle and HandleID, so a write committed through either key's
// Object is visible through the other too, matching hard-link semantics
// rather than copy-on-write.
func (k *Repo) Copy(src, dst string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	h, ok := k.objects[src]
	if !ok {
		return vaulterr.New(vaulterr.KindNotFound, "key not found")
	}
	k.objects[dst] = h
	return nil
}

// Keys returns every key currently present, in sorted order.
func (k *Repo) Keys() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	keys := make([]string, 0, len(k.objects))
	for key := range k.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Commit persists the current key -> object map and every pending object
// write, per C8.
func (k *Repo) Commit() error {
	return k.core.Commit(k.flush)
}

// Rollback discards every change since the last Commit.
func (k *Repo) Rollback() error {
	return k.core.Rollback(k.load)
}

// Savepoint captures the current state for a later Restore.
func (k *Repo) Savepoint() *repo.Savepoint {
	return k.core.Savepoint()
}

// Restore reverts the key -> object map to sp, failing with
// InvalidSavepoint if a Commit has happened since sp was taken.
func (k *Repo) Restore(sp *repo.Savepoint) error {
	rs, err := k.core.StartRestore(sp)
	if err != nil {
		return err
	}
	return k.core.FinishRestore(rs, k.load)
}

// Clean reclaims storage unreferenced by the last commit, per C8.
func (k *Repo) Clean() (repo.CleanStats, error) {
	return k.core.Clean()
}

// VerifyAll re-reads and checksums every key's object, returning the set of
// keys whose stored content fails a hash check.
func (k *Repo) VerifyAll() ([]string, error) {
	k.mu.RLock()
	snapshot := make(map[string]*object.Handle, len(k.objects))
	for key, h := range k.objects {
		snapshot[key] = h
	}
	k.mu.RUnlock()

	var corrupt []string
	for key, h := range snapshot {
		ok, err := k.core.Object(h).Verify()
		if err != nil {
			return nil, err
		}
		if !ok {
			corrupt = append(corrupt, key)
		}
	}
	sort.Strings(corrupt)
	return corrupt, nil
}

// Info reports static repository facts.
func (k *Repo) Info() repo.Info { return k.core.Info() }

// Stats reports the size of the live chunk/pack index.
func (k *Repo) Stats() repo.Stats { return k.core.Stats() }

// ChangePassword rewraps the master key under newPassword.
func (k *Repo) ChangePassword(oldPassword, newPassword string) error {
	return k.core.ChangePassword(oldPassword, newPassword)
}

// Close releases the repository's locks.
func (k *Repo) Close() error {
	return k.core.Close()
}
