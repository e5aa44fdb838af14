// Package pack implements C3: the optional fixed-size packing of chunk
// blocks into larger store blocks, and the read/write buffering this
// requires.
package pack

import (
	"github.com/google/uuid"

	"github.com/coldvault/vault/pkg/blockstore"
	"github.com/coldvault/vault/pkg/codec"
	"github.com/coldvault/vault/pkg/vaulterr"
)

// Index locates one contiguous slice of a block within a pack. A list of
// Index entries fully reconstructs a block that was split across packs.
type Index struct {
	PackID uuid.UUID `cbor:"pack_id"`
	Offset uint32    `cbor:"offset"`
	Size   uint32    `cbor:"size"`
}

// Pack is a fixed-size block bundling the (plaintext) bytes of multiple
// chunks.
type Pack struct {
	ID     uuid.UUID
	Buffer []byte
}

// New returns an empty pack with a fresh random id and capacity packSize.
func New(packSize uint32) *Pack {
	return &Pack{ID: uuid.New(), Buffer: make([]byte, 0, packSize)}
}

// Padded returns a copy of the pack's buffer zero-padded to packSize.
func Padded(p *Pack, packSize uint32) []byte {
	if len(p.Buffer) > int(packSize) {
		panic("pack: buffer exceeds configured pack size")
	}
	out := make([]byte, packSize)
	copy(out, p.Buffer)
	return out
}

// Map is the subset of the committable Header's pack index this package
// needs: a map from a block id to the list of pack locations holding its
// bytes. Implemented by pkg/header.Header so this package never needs to
// import it.
type Map interface {
	Get(blockID uuid.UUID) ([]Index, bool)
	Set(blockID uuid.UUID, idx []Index)
}

// State is the per-object (or per-sequential-access) read/write pack
// buffering state: the most recently decoded pack (for reads) and the pack
// currently being filled (for writes).
type State struct {
	ReadBuffer  *Pack
	WriteBuffer *Pack
}

// NewState returns an empty State.
func NewState() *State {
	return &State{}
}

// Config is the pack layer's configuration: 0 means packing is disabled.
type Config struct {
	Size uint32
}

// ReadBlock returns the decoded bytes of block id, either read directly
// (packing disabled) or reconstructed from one or more packs (packing
// enabled), using and populating state.ReadBuffer as a single-pack cache.
func ReadBlock(store blockstore.Store, cdc codec.Codec, packs Map, state *State, cfg Config, id uuid.UUID) ([]byte, error) {
	if cfg.Size == 0 {
		return directRead(store, cdc, blockstore.Data(id))
	}

	indices, ok := packs.Get(id)
	if !ok {
		return nil, vaulterr.New(vaulterr.KindInvalidData, "no pack index for block")
	}

	var total uint32
	for _, idx := range indices {
		total += idx.Size
	}
	buf := make([]byte, 0, total)

	for _, idx := range indices {
		packBuf, err := loadPack(store, cdc, state, idx.PackID)
		if err != nil {
			return nil, err
		}
		start, end := idx.Offset, idx.Offset+idx.Size
		if int(end) > len(packBuf) {
			return nil, vaulterr.New(vaulterr.KindInvalidData, "pack index out of range")
		}
		buf = append(buf, packBuf[start:end]...)
	}
	return buf, nil
}

func loadPack(store blockstore.Store, cdc codec.Codec, state *State, packID uuid.UUID) ([]byte, error) {
	if state.ReadBuffer != nil && state.ReadBuffer.ID == packID {
		return state.ReadBuffer.Buffer, nil
	}
	plain, err := directRead(store, cdc, blockstore.Data(packID))
	if err != nil {
		return nil, err
	}
	state.ReadBuffer = &Pack{ID: packID, Buffer: plain}
	return plain, nil
}

func directRead(store blockstore.Store, cdc codec.Codec, id blockstore.ID) ([]byte, error) {
	encoded, ok, err := store.Read(id)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindStore, "read block", err)
	}
	if !ok {
		return nil, vaulterr.New(vaulterr.KindInvalidData, "block absent")
	}
	return cdc.Decode(encoded)
}

// WriteBlock writes data as block id, either directly (packing disabled)
// or buffered into state.WriteBuffer (packing enabled), updating packs with
// the resulting Index entries only after every store write the operation
// required has succeeded.
func WriteBlock(store blockstore.Store, cdc codec.Codec, packs Map, state *State, cfg Config, id uuid.UUID, data []byte) error {
	if cfg.Size == 0 {
		encoded, err := cdc.Encode(data)
		if err != nil {
			return err
		}
		if err := store.Write(blockstore.Data(id), encoded); err != nil {
			return vaulterr.Wrap(vaulterr.KindStore, "write block", err)
		}
		return nil
	}

	if state.WriteBuffer == nil {
		state.WriteBuffer = New(cfg.Size)
	}
	current := state.WriteBuffer

	currentOffset := uint32(len(current.Buffer))
	var currentSize uint32
	var written int
	var indices []Index

	for {
		remaining := int(cfg.Size) - len(current.Buffer)
		end := written + remaining
		if end > len(data) {
			end = len(data)
		}
		next := data[written:end]
		current.Buffer = append(current.Buffer, next...)
		written += len(next)
		currentSize += uint32(len(next))

		indices = append(indices, Index{PackID: current.ID, Offset: currentOffset, Size: currentSize})

		if len(current.Buffer) == int(cfg.Size) {
			if err := flushPack(store, cdc, current, cfg.Size); err != nil {
				return err
			}
			currentOffset = 0
			currentSize = 0
			*current = *New(cfg.Size)
		}

		if written == len(data) {
			padded := Padded(current, cfg.Size)
			if err := flushPack(store, cdc, &Pack{ID: current.ID, Buffer: padded}, cfg.Size); err != nil {
				return err
			}
			// The in-memory copy is retained (unpadded) so future writes
			// keep filling the same pack id instead of orphaning it.
			packs.Set(id, indices)
			return nil
		}
	}
}

func flushPack(store blockstore.Store, cdc codec.Codec, p *Pack, packSize uint32) error {
	encoded, err := cdc.Encode(p.Buffer)
	if err != nil {
		return err
	}
	if err := store.Write(blockstore.Data(p.ID), encoded); err != nil {
		return vaulterr.Wrap(vaulterr.KindStore, "write pack", err)
	}
	return nil
}
