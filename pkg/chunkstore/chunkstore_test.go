package chunkstore

import (
	"bytes"
	"testing"

	"github.com/coldvault/vault/pkg/codec"
	"github.com/coldvault/vault/pkg/object"
	"github.com/coldvault/vault/pkg/pack"
	"github.com/coldvault/vault/pkg/storebackend/memstore"
)

func TestWriteReadRoundTrip(t *testing.T) {
	store := New(memstore.New(), codec.Codec{}, pack.Config{})
	ps := pack.NewState()

	c, err := store.WriteChunk([]byte("payload"), object.HandleID(1), ps)
	if err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}

	got, err := store.ReadChunk(c, ps)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("got %q, want %q", got, "payload")
	}
}

func TestWriteChunkDeduplicates(t *testing.T) {
	store := New(memstore.New(), codec.Codec{}, pack.Config{})
	ps := pack.NewState()

	a, err := store.WriteChunk([]byte("same"), object.HandleID(1), ps)
	if err != nil {
		t.Fatalf("WriteChunk a: %v", err)
	}
	b, err := store.WriteChunk([]byte("same"), object.HandleID(2), ps)
	if err != nil {
		t.Fatalf("WriteChunk b: %v", err)
	}
	if a != b {
		t.Fatal("identical content should produce identical chunk identity")
	}

	chunks, _ := store.Snapshot()
	info := chunks[a]
	if len(info.References) != 2 {
		t.Fatalf("expected 2 references, got %d", len(info.References))
	}
	if len(chunks) != 1 {
		t.Fatalf("expected a single stored chunk, got %d", len(chunks))
	}
}

func TestRemoveReferenceReportsUnreferenced(t *testing.T) {
	store := New(memstore.New(), codec.Codec{}, pack.Config{})
	ps := pack.NewState()

	c, err := store.WriteChunk([]byte("x"), object.HandleID(1), ps)
	if err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}

	if store.RemoveReference(c, object.HandleID(99)) {
		t.Fatal("removing a reference that was never added should not report unreferenced")
	}
	if !store.RemoveReference(c, object.HandleID(1)) {
		t.Fatal("removing the last reference should report unreferenced")
	}
}

func TestSnapshotLoadFromRoundTrip(t *testing.T) {
	store := New(memstore.New(), codec.Codec{}, pack.Config{})
	ps := pack.NewState()

	c, err := store.WriteChunk([]byte("persisted"), object.HandleID(1), ps)
	if err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	chunks, packs := store.Snapshot()

	restored := New(memstore.New(), codec.Codec{}, pack.Config{})
	restored.LoadFrom(chunks, packs)

	if _, ok := restored.Get(chunks[c].BlockID); ok {
		// packing disabled means no pack index entries are expected.
		t.Fatal("expected no pack index entries with packing disabled")
	}
	got, _ := restored.Snapshot()
	if len(got) != 1 {
		t.Fatalf("expected restored snapshot to contain 1 chunk, got %d", len(got))
	}
}
