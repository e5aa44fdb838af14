package repo

import (
	"github.com/coldvault/vault/pkg/codec"
	"github.com/coldvault/vault/pkg/codec/aead"
	"github.com/coldvault/vault/pkg/codec/kdf"
	"github.com/coldvault/vault/pkg/vaulterr"
)

// ChangePassword rewraps the master key under a user key derived from
// newPassword, without touching any ciphertext already written to the
// store (spec §4.2). oldPassword must unwrap the current master key.
func (r *Repository) ChangePassword(oldPassword, newPassword string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cdc.Encryption == codec.EncryptionNone {
		return vaulterr.New(vaulterr.KindUnsupportedRepo, "encryption is disabled for this repository")
	}

	oldKey := kdf.Derive(oldPassword, r.meta.Salt, r.cfg.MemoryLimit, r.cfg.OperationsLimit)
	if _, err := aead.Open(oldKey, r.meta.EncryptedMasterKey); err != nil {
		return vaulterr.New(vaulterr.KindPassword, "incorrect password")
	}

	salt, err := kdf.NewSalt()
	if err != nil {
		return err
	}
	newKey := kdf.Derive(newPassword, salt, r.cfg.MemoryLimit, r.cfg.OperationsLimit)
	wrapped, err := aead.Seal(newKey, r.masterKey[:])
	if err != nil {
		return err
	}

	r.meta.Salt = salt
	r.meta.EncryptedMasterKey = wrapped
	return writeSuperblock(r.store, r.meta)
}
