package repo

import (
	"time"

	"github.com/google/uuid"

	"github.com/coldvault/vault/pkg/blockstore"
	"github.com/coldvault/vault/pkg/codec"
	"github.com/coldvault/vault/pkg/codec/aead"
	"github.com/coldvault/vault/pkg/codec/cbordata"
	"github.com/coldvault/vault/pkg/codec/kdf"
	"github.com/coldvault/vault/pkg/header"
	"github.com/coldvault/vault/pkg/lock"
	"github.com/coldvault/vault/pkg/vaulterr"
)

// Create implements C10's create protocol: acquire the intra-process lock,
// fail if a repository already exists, generate (or skip) the master key,
// acquire the on-store lock, write an empty header and the superblock, and
// finally write the version block — the commit point of creation.
func Create(store blockstore.Store, cfg Config, password string) (*Repository, error) {
	repoID := uuid.New()
	procGuard, ok := lock.AcquireProcess(repoID)
	if !ok {
		return nil, vaulterr.New(vaulterr.KindLocked, "repository already open in this process")
	}

	if _, exists, err := store.Read(blockstore.Version()); err != nil {
		procGuard.Release()
		return nil, vaulterr.Wrap(vaulterr.KindStore, "read version block", err)
	} else if exists {
		procGuard.Release()
		return nil, vaulterr.New(vaulterr.KindAlreadyExists, "repository already exists")
	}

	salt, err := kdf.NewSalt()
	if err != nil {
		procGuard.Release()
		return nil, err
	}

	var masterKey aead.Key
	var wrapped []byte
	if cfg.Encryption != codec.EncryptionNone {
		if password == "" {
			procGuard.Release()
			return nil, vaulterr.New(vaulterr.KindPassword, "password required when encryption is enabled")
		}
		masterKey, err = aead.GenerateKey()
		if err != nil {
			procGuard.Release()
			return nil, err
		}
		userKey := kdf.Derive(password, salt, cfg.MemoryLimit, cfg.OperationsLimit)
		wrapped, err = aead.Seal(userKey, masterKey[:])
		if err != nil {
			procGuard.Release()
			return nil, err
		}
	}

	cdc := cfg.codec(masterKey)

	storeLock, err := lock.Acquire(store, cdc, nil, nil)
	if err != nil {
		procGuard.Release()
		return nil, err
	}

	emptyHeader := header.Header{}
	headerID, err := writeHeaderBlock(store, cdc, emptyHeader)
	if err != nil {
		storeLock.Unlock()
		procGuard.Release()
		return nil, err
	}

	meta := header.Metadata{
		ID:                 repoID,
		Config:             cfg.toRecord(),
		EncryptedMasterKey: wrapped,
		Salt:               salt,
		HeaderID:           headerID,
		CreationTime:       time.Now().UTC(),
	}
	if err := writeSuperblock(store, meta); err != nil {
		storeLock.Unlock()
		procGuard.Release()
		return nil, err
	}

	if err := store.Write(blockstore.Version(), FormatVersion[:]); err != nil {
		storeLock.Unlock()
		procGuard.Release()
		return nil, vaulterr.Wrap(vaulterr.KindStore, "write version block", err)
	}

	return newRepository(store, cdc, cfg, meta, masterKey, emptyHeader, procGuard, storeLock), nil
}

// Open implements C10's open protocol: validate the version block, decode
// the superblock, unwrap the master key, acquire the on-store lock, re-read
// the superblock under that lock to defeat a race against a concurrent
// committer, and load the pointed-at header.
func Open(store blockstore.Store, password string, handler lock.Handler) (*Repository, error) {
	raw, ok, err := store.Read(blockstore.Version())
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindStore, "read version block", err)
	}
	if !ok {
		return nil, vaulterr.New(vaulterr.KindNotFound, "no repository at store")
	}
	if len(raw) != 16 {
		return nil, vaulterr.New(vaulterr.KindUnsupportedStore, "malformed version block")
	}
	var gotVersion uuid.UUID
	copy(gotVersion[:], raw)
	if gotVersion != FormatVersion {
		return nil, vaulterr.New(vaulterr.KindUnsupportedRepo, "unsupported repository format version")
	}

	meta, err := readSuperblock(store)
	if err != nil {
		return nil, err
	}

	procGuard, ok := lock.AcquireProcess(meta.ID)
	if !ok {
		return nil, vaulterr.New(vaulterr.KindLocked, "repository already open in this process")
	}

	cfg := configFromRecord(meta.Config)

	var masterKey aead.Key
	if cfg.Encryption != codec.EncryptionNone {
		if password == "" {
			procGuard.Release()
			return nil, vaulterr.New(vaulterr.KindPassword, "password required")
		}
		userKey := kdf.Derive(password, meta.Salt, cfg.MemoryLimit, cfg.OperationsLimit)
		unwrapped, err := aead.Open(userKey, meta.EncryptedMasterKey)
		if err != nil {
			procGuard.Release()
			return nil, vaulterr.New(vaulterr.KindPassword, "incorrect password")
		}
		copy(masterKey[:], unwrapped)
	}
	cdc := cfg.codec(masterKey)

	storeLock, err := lock.Acquire(store, cdc, nil, handler)
	if err != nil {
		procGuard.Release()
		return nil, err
	}

	// Re-read under the lock: another opener may have committed between the
	// first superblock read and acquiring the lock.
	meta, err = readSuperblock(store)
	if err != nil {
		storeLock.Unlock()
		procGuard.Release()
		return nil, err
	}

	h, err := readHeaderBlock(store, cdc, meta.HeaderID)
	if err != nil {
		storeLock.Unlock()
		procGuard.Release()
		return nil, err
	}

	return newRepository(store, cdc, cfg, meta, masterKey, h, procGuard, storeLock), nil
}

func readSuperblock(store blockstore.Store) (header.Metadata, error) {
	raw, ok, err := store.Read(blockstore.Super())
	if err != nil {
		return header.Metadata{}, vaulterr.Wrap(vaulterr.KindStore, "read super block", err)
	}
	if !ok {
		return header.Metadata{}, vaulterr.New(vaulterr.KindCorrupt, "missing super block")
	}
	var meta header.Metadata
	if err := cbordata.Unmarshal(raw, &meta); err != nil {
		return header.Metadata{}, vaulterr.Wrap(vaulterr.KindDeserialize, "decode metadata", err)
	}
	return meta, nil
}

func writeSuperblock(store blockstore.Store, meta header.Metadata) error {
	raw, err := cbordata.Marshal(meta)
	if err != nil {
		return vaulterr.Wrap(vaulterr.KindSerialize, "marshal metadata", err)
	}
	if err := store.Write(blockstore.Super(), raw); err != nil {
		return vaulterr.Wrap(vaulterr.KindStore, "write super block", err)
	}
	return nil
}

func readHeaderBlock(store blockstore.Store, cdc codec.Codec, id uuid.UUID) (header.Header, error) {
	raw, ok, err := store.Read(blockstore.Header(id))
	if err != nil {
		return header.Header{}, vaulterr.Wrap(vaulterr.KindStore, "read header block", err)
	}
	if !ok {
		return header.Header{}, vaulterr.New(vaulterr.KindCorrupt, "missing header block")
	}
	plain, err := cdc.Decode(raw)
	if err != nil {
		return header.Header{}, err
	}
	var h header.Header
	if err := cbordata.Unmarshal(plain, &h); err != nil {
		return header.Header{}, vaulterr.Wrap(vaulterr.KindDeserialize, "decode header", err)
	}
	return h, nil
}

// writeHeaderBlock encodes h and writes it to a fresh header block id,
// returning that id. It does not touch the superblock; callers publish the
// new header by writing meta.HeaderID and the superblock afterward.
func writeHeaderBlock(store blockstore.Store, cdc codec.Codec, h header.Header) (uuid.UUID, error) {
	id := uuid.New()
	raw, err := cbordata.Marshal(h)
	if err != nil {
		return uuid.Nil, vaulterr.Wrap(vaulterr.KindSerialize, "marshal header", err)
	}
	encoded, err := cdc.Encode(raw)
	if err != nil {
		return uuid.Nil, err
	}
	if err := store.Write(blockstore.Header(id), encoded); err != nil {
		return uuid.Nil, vaulterr.Wrap(vaulterr.KindStore, "write header block", err)
	}
	return id, nil
}
