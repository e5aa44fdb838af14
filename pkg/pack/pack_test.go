package pack

import (
	"bytes"
	"testing"

	"github.com/google/uuid"

	"github.com/coldvault/vault/pkg/codec"
	"github.com/coldvault/vault/pkg/storebackend/memstore"
)

type fakeMap struct {
	m map[uuid.UUID][]Index
}

func newFakeMap() *fakeMap { return &fakeMap{m: make(map[uuid.UUID][]Index)} }

func (f *fakeMap) Get(id uuid.UUID) ([]Index, bool) { v, ok := f.m[id]; return v, ok }
func (f *fakeMap) Set(id uuid.UUID, idx []Index)    { f.m[id] = idx }

func TestWriteReadDirect(t *testing.T) {
	store := memstore.New()
	cdc := codec.Codec{}
	id := uuid.New()
	data := []byte("hello direct block")

	if err := WriteBlock(store, cdc, nil, nil, Config{}, id, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadBlock(store, cdc, nil, nil, Config{}, id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("round trip mismatch")
	}
}

func TestWriteReadPacked(t *testing.T) {
	store := memstore.New()
	cdc := codec.Codec{}
	packs := newFakeMap()
	writeState := NewState()

	const packSize = 64
	idA, idB := uuid.New(), uuid.New()
	dataA := bytes.Repeat([]byte("A"), 40)
	dataB := bytes.Repeat([]byte("B"), 40)

	if err := WriteBlock(store, cdc, packs, writeState, Config{Size: packSize}, idA, dataA); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := WriteBlock(store, cdc, packs, writeState, Config{Size: packSize}, idB, dataB); err != nil {
		t.Fatalf("write b: %v", err)
	}

	readState := NewState()
	gotA, err := ReadBlock(store, cdc, packs, readState, Config{Size: packSize}, idA)
	if err != nil {
		t.Fatalf("read a: %v", err)
	}
	if !bytes.Equal(gotA, dataA) {
		t.Fatalf("block a mismatch: got %q", gotA)
	}
	gotB, err := ReadBlock(store, cdc, packs, readState, Config{Size: packSize}, idB)
	if err != nil {
		t.Fatalf("read b: %v", err)
	}
	if !bytes.Equal(gotB, dataB) {
		t.Fatalf("block b mismatch: got %q", gotB)
	}
}

func TestWriteLargerThanPackSpansMultiplePacks(t *testing.T) {
	store := memstore.New()
	cdc := codec.Codec{}
	packs := newFakeMap()
	state := NewState()

	const packSize = 16
	id := uuid.New()
	data := bytes.Repeat([]byte("x"), 50) // spans 4 packs

	if err := WriteBlock(store, cdc, packs, state, Config{Size: packSize}, id, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	indices, ok := packs.Get(id)
	if !ok {
		t.Fatal("expected pack index entries for spanning block")
	}
	if len(indices) < 3 {
		t.Fatalf("expected block to span multiple packs, got %d index entries", len(indices))
	}

	got, err := ReadBlock(store, cdc, packs, NewState(), Config{Size: packSize}, id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("round trip mismatch for spanning block")
	}
}

func TestWriteDoesNotUpdatePackMapBeforeStoreSucceeds(t *testing.T) {
	store := memstore.New()
	store.FailAfter(0) // every write fails
	cdc := codec.Codec{}
	packs := newFakeMap()
	state := NewState()

	id := uuid.New()
	err := WriteBlock(store, cdc, packs, state, Config{Size: 64}, id, []byte("data"))
	if err == nil {
		t.Fatal("expected write to fail")
	}
	if _, ok := packs.Get(id); ok {
		t.Fatal("pack map must not be updated when the store write fails")
	}
}
