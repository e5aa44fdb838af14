package object

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/coldvault/vault/pkg/chunk"
	"github.com/coldvault/vault/pkg/lock"
	"github.com/coldvault/vault/pkg/pack"
	"github.com/coldvault/vault/pkg/vaulterr"
)

// memChunkStore is a minimal in-memory ChunkStore for object-level tests:
// content-addressed by chunk.Of, with simple reference counting.
type memChunkStore struct {
	mu   sync.Mutex
	data map[chunk.Chunk][]byte
	refs map[chunk.Chunk]map[HandleID]struct{}
}

func newMemChunkStore() *memChunkStore {
	return &memChunkStore{
		data: make(map[chunk.Chunk][]byte),
		refs: make(map[chunk.Chunk]map[HandleID]struct{}),
	}
}

func (s *memChunkStore) ReadChunk(c chunk.Chunk, _ *pack.State) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[c]
	if !ok {
		return nil, vaulterr.New(vaulterr.KindInvalidData, "unknown chunk")
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *memChunkStore) WriteChunk(data []byte, handleID HandleID, _ *pack.State) (chunk.Chunk, error) {
	c, err := chunk.Of(data)
	if err != nil {
		return chunk.Chunk{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[c]; !ok {
		stored := make([]byte, len(data))
		copy(stored, data)
		s.data[c] = stored
		s.refs[c] = make(map[HandleID]struct{})
	}
	s.refs[c][handleID] = struct{}{}
	return c, nil
}

func (s *memChunkStore) RemoveReference(c chunk.Chunk, handleID HandleID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs, ok := s.refs[c]
	if !ok {
		return false
	}
	delete(refs, handleID)
	return len(refs) == 0
}

func newTestObject(store ChunkStore, boundarySize uint32) (*Object, *Handle) {
	handle := &Handle{ID: 1}
	mu := &sync.RWMutex{}
	txLocks := lock.NewTable[HandleID]()
	obj := New(handle, store, mu, txLocks, func() chunk.Boundary { return chunk.NewFixed(boundarySize) })
	return obj, handle
}

func TestObjectRoundTrip(t *testing.T) {
	store := newMemChunkStore()
	obj, _ := newTestObject(store, 8)

	payload := []byte("the quick brown fox jumps over the lazy dog")
	if _, err := obj.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := obj.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	size, err := obj.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != uint64(len(payload)) {
		t.Fatalf("got size %d, want %d", size, len(payload))
	}

	if _, err := obj.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	got := make([]byte, len(payload))
	if _, err := io.ReadFull(obj, got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}

	ok, err := obj.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("expected object to verify")
	}
}

func TestObjectPartialOverwrite(t *testing.T) {
	store := newMemChunkStore()
	obj, _ := newTestObject(store, 4)

	original := []byte("0123456789ABCDEF")
	if _, err := obj.Write(original); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := obj.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := obj.Seek(6, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if _, err := obj.Write([]byte("XY")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := obj.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := obj.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	got := make([]byte, len(original))
	if _, err := io.ReadFull(obj, got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	want := []byte("012345XY89ABCDEF")
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestObjectTransactionIsolation(t *testing.T) {
	store := newMemChunkStore()
	handle := &Handle{ID: 42}
	mu := &sync.RWMutex{}
	txLocks := lock.NewTable[HandleID]()
	newBoundary := func() chunk.Boundary { return chunk.NewFixed(8) }

	a := New(handle, store, mu, txLocks, newBoundary)
	b := New(handle, store, mu, txLocks, newBoundary)

	if _, err := a.Write([]byte("hello")); err != nil {
		t.Fatalf("a.Write: %v", err)
	}

	if _, err := b.Write([]byte("world")); !vaulterr.Is(err, vaulterr.KindTransactionInProgress) {
		t.Fatalf("expected TransactionInProgress from b.Write, got %v", err)
	}
	if _, err := b.Size(); !vaulterr.Is(err, vaulterr.KindTransactionInProgress) {
		t.Fatalf("expected TransactionInProgress from b.Size, got %v", err)
	}

	if err := a.Commit(); err != nil {
		t.Fatalf("a.Commit: %v", err)
	}

	if _, err := b.Size(); err != nil {
		t.Fatalf("b.Size after a's commit: %v", err)
	}
}

// TestObjectAbortReleasesTransactionAndDereferencesChunks exercises spec
// scenario 5's "drop o1" half: after an uncommitted write is aborted
// instead of committed, a second Object on the same handle is no longer
// locked out and reads the pre-transaction bytes, and the chunks the
// aborted write produced no longer reference the handle.
func TestObjectAbortReleasesTransactionAndDereferencesChunks(t *testing.T) {
	store := newMemChunkStore()
	handle := &Handle{ID: 7}
	mu := &sync.RWMutex{}
	txLocks := lock.NewTable[HandleID]()
	newBoundary := func() chunk.Boundary { return chunk.NewFixed(8) }

	o1 := New(handle, store, mu, txLocks, newBoundary)
	if _, err := o1.Write([]byte("original")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := o1.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	o2 := New(handle, store, mu, txLocks, newBoundary)

	if _, err := o1.Write([]byte("clobbered")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := o2.Size(); !vaulterr.Is(err, vaulterr.KindTransactionInProgress) {
		t.Fatalf("expected TransactionInProgress from o2.Size, got %v", err)
	}

	// The 8-byte fixed boundary fires mid-write: "clobbere" is drained as a
	// complete chunk by writeChunks inside Write itself, while the trailing
	// "d" stays buffered in the chunker, never reaching the chunk store.
	pendingChunk, err := chunk.Of([]byte("clobbere"))
	if err != nil {
		t.Fatalf("chunk.Of: %v", err)
	}
	store.mu.Lock()
	_, referenced := store.refs[pendingChunk][handle.ID]
	store.mu.Unlock()
	if !referenced {
		t.Fatal("expected the in-flight write to reference its chunk before abort")
	}

	if err := o1.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	if txLocks.IsLocked(handle.ID) {
		t.Fatal("expected Abort to release the transaction lock")
	}

	store.mu.Lock()
	_, stillReferenced := store.refs[pendingChunk][handle.ID]
	store.mu.Unlock()
	if stillReferenced {
		t.Fatal("expected Abort to dereference the aborted transaction's chunks")
	}

	size, err := o2.Size()
	if err != nil {
		t.Fatalf("o2.Size after abort: %v", err)
	}
	if size != uint64(len("original")) {
		t.Fatalf("got size %d, want %d", size, len("original"))
	}

	if _, err := o2.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	got := make([]byte, len("original"))
	if _, err := io.ReadFull(o2, got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(got) != "original" {
		t.Fatalf("got %q, want pre-transaction bytes %q", got, "original")
	}
}

// TestObjectAbortWithNoTransactionIsNoOp checks that Abort on an Object
// that never opened a write transaction does nothing and returns no error.
func TestObjectAbortWithNoTransactionIsNoOp(t *testing.T) {
	store := newMemChunkStore()
	obj, _ := newTestObject(store, 8)
	if err := obj.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
}

func TestObjectSparseHoles(t *testing.T) {
	store := newMemChunkStore()
	obj, handle := newTestObject(store, 8)

	if err := obj.SetLen(20); err != nil {
		t.Fatalf("SetLen: %v", err)
	}

	stats, err := obj.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Apparent != 20 || stats.Actual != 0 {
		t.Fatalf("got apparent=%d actual=%d, want apparent=20 actual=0", stats.Apparent, stats.Actual)
	}
	if len(stats.Holes) != 1 || stats.Holes[0] != (Range{Start: 0, End: 20}) {
		t.Fatalf("unexpected holes: %+v", stats.Holes)
	}

	if _, err := obj.Seek(5, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if _, err := obj.Write([]byte("mid")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := obj.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := obj.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	got := make([]byte, 20)
	if _, err := io.ReadFull(obj, got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	want := append(append(make([]byte, 5), []byte("mid")...), make([]byte, 12)...)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	if handle.Size() != 20 {
		t.Fatalf("got handle size %d, want 20", handle.Size())
	}
}

func TestObjectVerifyDetectsCorruption(t *testing.T) {
	store := newMemChunkStore()
	obj, handle := newTestObject(store, 8)

	if _, err := obj.Write([]byte("detect me please")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := obj.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	corrupted := handle.Chunks()[0]
	store.mu.Lock()
	store.data[corrupted] = []byte("!! tampered bytes, wrong length too !!")
	store.mu.Unlock()

	ok, err := obj.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("expected Verify to detect corrupted chunk")
	}
}
