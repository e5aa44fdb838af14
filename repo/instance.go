package repo

import (
	"github.com/google/uuid"

	"github.com/coldvault/vault/pkg/header"
	"github.com/coldvault/vault/pkg/object"
	"github.com/coldvault/vault/pkg/vaulterr"
)

// SwitchInstance implements C11: it flushes the currently-selected
// instance's object map (if any and if flush is non-nil), then either
// joins an existing instance by id (validating its versionID matches) or
// creates a new one. load is called with an Object view onto the newly
// selected instance's designated handle so the caller can populate its
// in-memory view; for a freshly created instance this Object is empty.
func (r *Repository) SwitchInstance(versionID, instanceID uuid.UUID, flush, load func(*object.Object) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentHandle != nil && flush != nil {
		if err := flush(r.Object(r.currentHandle)); err != nil {
			return err
		}
		info := r.instances[r.currentInstanceID]
		info.Objects = *r.currentHandle
		r.instances[r.currentInstanceID] = info
	}

	info, exists := r.instances[instanceID]
	if !exists {
		h := &object.Handle{ID: object.HandleID(r.handleTable.Next())}
		info = header.InstanceInfo{VersionID: versionID, Objects: *h}
		r.instances[instanceID] = info
		r.currentInstanceID = instanceID
		r.currentHandle = h
		if load != nil {
			if err := load(r.Object(h)); err != nil {
				return err
			}
		}
		return nil
	}

	if info.VersionID != versionID {
		return vaulterr.New(vaulterr.KindUnsupportedRepo, "instance version mismatch")
	}
	handleCopy := info.Objects
	r.currentInstanceID = instanceID
	r.currentHandle = &handleCopy
	if load != nil {
		if err := load(r.Object(&handleCopy)); err != nil {
			return err
		}
	}
	return nil
}

// ClearInstance drops every object in the current instance by replacing
// its designated handle with a fresh empty one, leaving sibling instances
// untouched. Previously-referenced chunks are reference-counted down
// lazily by the next Commit's header snapshot, since the old handle's id
// is simply abandoned (never recycled, since nothing externally holds it).
func (r *Repository) ClearInstance() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentHandle == nil {
		return vaulterr.New(vaulterr.KindInvalidObject, "no instance selected")
	}
	for _, c := range r.currentHandle.Chunks() {
		r.chunks.RemoveReference(c, r.currentHandle.ID)
	}
	if err := r.handleTable.Recycle(uint64(r.currentHandle.ID)); err != nil {
		return err
	}

	h := &object.Handle{ID: object.HandleID(r.handleTable.Next())}
	info := r.instances[r.currentInstanceID]
	info.Objects = *h
	r.instances[r.currentInstanceID] = info
	r.currentHandle = h
	return nil
}
