package lock

import (
	"github.com/coldvault/vault/pkg/blockstore"
	"github.com/coldvault/vault/pkg/codec"
	"github.com/coldvault/vault/pkg/vaulterr"
)

// OnStoreLock is a held advisory lock recorded as the store's Lock block.
// It is released by calling Unlock; dropping it without calling Unlock
// leaves the block in place for a future opener's handler to resolve.
type OnStoreLock struct {
	store blockstore.Store
	cdc   codec.Codec
}

// Handler decides, given the context bytes left by whoever currently holds
// the lock, whether to take it anyway (true) or fail with Locked (false).
type Handler func(existingContext []byte) bool

// Acquire implements C9's on-store lock acquisition policy: read the lock
// block; if absent, write context and proceed; if present, ask handler
// whether to take it; if handler declines (or the caller passes a nil
// handler), fail with vaulterr.KindLocked.
func Acquire(store blockstore.Store, cdc codec.Codec, context []byte, handler Handler) (*OnStoreLock, error) {
	encoded, ok, err := store.Read(blockstore.Lock())
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindStore, "read lock block", err)
	}
	if !ok {
		if err := writeContext(store, cdc, context); err != nil {
			return nil, err
		}
		return &OnStoreLock{store: store, cdc: cdc}, nil
	}

	existing, err := cdc.Decode(encoded)
	if err != nil {
		return nil, err
	}
	if handler == nil || !handler(existing) {
		return nil, vaulterr.New(vaulterr.KindLocked, "repository is locked by another process")
	}
	if err := writeContext(store, cdc, context); err != nil {
		return nil, err
	}
	return &OnStoreLock{store: store, cdc: cdc}, nil
}

// UpdateContext overwrites the lock block's context without releasing it.
func (l *OnStoreLock) UpdateContext(context []byte) error {
	return writeContext(l.store, l.cdc, context)
}

// Unlock removes the lock block, releasing the lock. It is best-effort:
// callers whose graceful close fails may retry by calling Unlock again.
func (l *OnStoreLock) Unlock() error {
	_, ok, err := l.store.Read(blockstore.Lock())
	if err != nil {
		return vaulterr.Wrap(vaulterr.KindStore, "read lock block", err)
	}
	if !ok {
		return vaulterr.New(vaulterr.KindNotLocked, "no lock held")
	}
	if err := l.store.Remove(blockstore.Lock()); err != nil {
		return vaulterr.Wrap(vaulterr.KindStore, "remove lock block", err)
	}
	return nil
}

func writeContext(store blockstore.Store, cdc codec.Codec, context []byte) error {
	encoded, err := cdc.Encode(context)
	if err != nil {
		return err
	}
	if err := store.Write(blockstore.Lock(), encoded); err != nil {
		return vaulterr.Wrap(vaulterr.KindStore, "write lock block", err)
	}
	return nil
}
