package repo

import (
	"github.com/google/uuid"

	"github.com/coldvault/vault/pkg/header"
	"github.com/coldvault/vault/pkg/object"
	"github.com/coldvault/vault/pkg/vaulterr"
)

// Savepoint is an in-memory snapshot of the header plus the transaction
// generation it was taken under (spec §4.8). It is invalidated by the next
// Commit and costs only a header-clone worth of memory: it never touches
// the backing store.
type Savepoint struct {
	header header.Header
	txGen  uint64
}

// Savepoint captures the repository's current committable state.
func (r *Repository) Savepoint() *Savepoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Savepoint{header: r.snapshotHeaderLocked(), txGen: r.txGen}
}

// Restore is an in-progress savepoint restoration: a header snapshot paired
// with the instance it was taken against. Restoring to a different
// instance than the one active when the savepoint was taken is rejected.
type Restore struct {
	sp         *Savepoint
	instanceID uuid.UUID
}

// StartRestore validates sp against the current transaction generation and
// begins a restore. It fails with InvalidSavepoint if a commit has
// happened since the savepoint was taken.
func (r *Repository) StartRestore(sp *Savepoint) (*Restore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sp.txGen != r.txGen {
		return nil, vaulterr.New(vaulterr.KindInvalidSavepoint, "savepoint invalidated by a commit")
	}
	return &Restore{sp: sp, instanceID: r.currentInstanceID}, nil
}

// FinishRestore atomically swaps the header snapshot in and reloads the
// current instance's object map via load. It fails with InvalidSavepoint
// if a commit happened since StartRestore, or if the current instance
// differs from the one the Restore was started against.
func (r *Repository) FinishRestore(rs *Restore, load func(*object.Object) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rs.sp.txGen != r.txGen {
		return vaulterr.New(vaulterr.KindInvalidSavepoint, "savepoint invalidated by a commit")
	}
	if rs.instanceID != r.currentInstanceID {
		return vaulterr.New(vaulterr.KindInvalidSavepoint, "restore started against a different instance")
	}

	r.loadHeaderLocked(rs.sp.header)

	info, ok := r.instances[r.currentInstanceID]
	if !ok {
		return vaulterr.New(vaulterr.KindInvalidObject, "current instance absent in savepoint")
	}
	if load != nil {
		handleCopy := info.Objects
		if err := load(r.Object(&handleCopy)); err != nil {
			return err
		}
		r.currentHandle = &handleCopy
	}
	return nil
}
