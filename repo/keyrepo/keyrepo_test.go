package keyrepo

import (
	"bytes"
	"io"
	"testing"

	"github.com/coldvault/vault/pkg/codec"
	"github.com/coldvault/vault/pkg/storebackend/memstore"
	"github.com/coldvault/vault/pkg/vaulterr"
	"github.com/coldvault/vault/repo"
)

// fixedChunkConfig uses a small fixed chunk size so tests can make exact
// assertions about how many chunks a write produces, and disables
// encryption so they aren't slowed by Argon2id.
func fixedChunkConfig() repo.Config {
	cfg := repo.DefaultConfig()
	cfg.Chunking = repo.Chunking{Kind: repo.ChunkingFixed, Param: 8}
	cfg.Encryption = codec.EncryptionNone
	return cfg
}

func writeString(t *testing.T, obj interface{ Write([]byte) (int, error) }, s string) {
	t.Helper()
	if _, err := obj.Write([]byte(s)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readString(t *testing.T, obj interface {
	Seek(int64, int) (int64, error)
	Read([]byte) (int, error)
}) string {
	t.Helper()
	if _, err := obj.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	data, err := io.ReadAll(io.Reader(readFunc(obj.Read)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

type readFunc func([]byte) (int, error)

func (f readFunc) Read(p []byte) (int, error) { return f(p) }

func TestBasicKeyValueRoundTrip(t *testing.T) {
	store := memstore.New()
	k, err := Open(store, fixedChunkConfig(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer k.Close()

	obj := k.Insert("greeting")
	writeString(t, obj, "hello, world")
	if err := obj.Commit(); err != nil {
		t.Fatalf("tx commit: %v", err)
	}
	if err := k.Commit(); err != nil {
		t.Fatalf("repo commit: %v", err)
	}

	if _, ok := k.Get("missing"); ok {
		t.Fatal("expected missing key to be absent")
	}
	got, ok := k.Get("greeting")
	if !ok {
		t.Fatal("expected greeting to be present")
	}
	if s := readString(t, got); s != "hello, world" {
		t.Fatalf("got %q", s)
	}
}

func TestDedupAcrossKeysSharesBlocks(t *testing.T) {
	store := memstore.New()
	k, err := Open(store, fixedChunkConfig(), "")
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	payload := bytes.Repeat([]byte("0123456789abcdef"), 10)

	a := k.Insert("a")
	writeString(t, a, string(payload))
	if err := a.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := k.Commit(); err != nil {
		t.Fatal(err)
	}
	statsAfterFirst := k.Stats()

	b := k.Insert("b")
	writeString(t, b, string(payload))
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := k.Commit(); err != nil {
		t.Fatal(err)
	}
	statsAfterSecond := k.Stats()

	if statsAfterSecond.Chunks != statsAfterFirst.Chunks {
		t.Fatalf("identical content under a second key should not add chunks: %d -> %d",
			statsAfterFirst.Chunks, statsAfterSecond.Chunks)
	}
	if statsAfterSecond.Blocks != statsAfterFirst.Blocks {
		t.Fatalf("identical content under a second key should not add blocks: %d -> %d",
			statsAfterFirst.Blocks, statsAfterSecond.Blocks)
	}
}

func TestPartialOverwrite(t *testing.T) {
	store := memstore.New()
	k, err := Open(store, fixedChunkConfig(), "")
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	obj := k.Insert("doc")
	writeString(t, obj, "0123456789abcdefghij")
	if err := obj.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := k.Commit(); err != nil {
		t.Fatal(err)
	}

	obj2, ok := k.Get("doc")
	if !ok {
		t.Fatal("expected doc")
	}
	if _, err := obj2.Seek(5, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	writeString(t, obj2, "XYZ")
	if err := obj2.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := k.Commit(); err != nil {
		t.Fatal(err)
	}

	obj3, _ := k.Get("doc")
	if got := readString(t, obj3); got != "01234XYZ89abcdefghij" {
		t.Fatalf("got %q", got)
	}
}

func TestSparseTruncateThenExtendReadsZeroes(t *testing.T) {
	store := memstore.New()
	k, err := Open(store, fixedChunkConfig(), "")
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	obj := k.Insert("sparse")
	writeString(t, obj, "0123456789abcdefghij")
	if err := obj.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := obj.SetLen(6); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if err := obj.SetLen(12); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if err := k.Commit(); err != nil {
		t.Fatal(err)
	}

	obj2, _ := k.Get("sparse")
	got := readString(t, obj2)
	want := "012345\x00\x00\x00\x00\x00\x00"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestTransactionIsolationAcrossHandles(t *testing.T) {
	store := memstore.New()
	k, err := Open(store, fixedChunkConfig(), "")
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	obj := k.Insert("shared")
	writeString(t, obj, "first")
	if err := obj.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := k.Commit(); err != nil {
		t.Fatal(err)
	}

	h1, ok := k.Get("shared")
	if !ok {
		t.Fatal("expected shared")
	}
	if _, err := h1.Write([]byte("-open-tx")); err != nil {
		t.Fatalf("first writer should open its transaction: %v", err)
	}

	h2, _ := k.Get("shared")
	if _, err := h2.Write([]byte("-competing")); !vaulterr.Is(err, vaulterr.KindTransactionInProgress) {
		t.Fatalf("want TRANSACTION_IN_PROGRESS while h1 holds the write lock, got %v", err)
	}

	if err := h1.Commit(); err != nil {
		t.Fatalf("h1 commit: %v", err)
	}
}

// TestAbortReleasesTransactionLock checks spec scenario 5's "after dropping
// o1" half: an uncommitted write aborted instead of committed releases the
// transaction lock, and the key's content is unchanged by the aborted
// write.
func TestAbortReleasesTransactionLock(t *testing.T) {
	store := memstore.New()
	k, err := Open(store, fixedChunkConfig(), "")
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	obj := k.Insert("shared")
	writeString(t, obj, "first")
	if err := obj.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := k.Commit(); err != nil {
		t.Fatal(err)
	}

	o1, ok := k.Get("shared")
	if !ok {
		t.Fatal("expected shared")
	}
	if _, err := o1.Write([]byte("-clobbered")); err != nil {
		t.Fatalf("o1 write: %v", err)
	}

	o2, _ := k.Get("shared")
	if _, err := o2.Size(); !vaulterr.Is(err, vaulterr.KindTransactionInProgress) {
		t.Fatalf("want TRANSACTION_IN_PROGRESS while o1 holds the write lock, got %v", err)
	}

	if err := o1.Abort(); err != nil {
		t.Fatalf("o1 abort: %v", err)
	}

	got := readString(t, o2)
	if got != "first" {
		t.Fatalf("got %q, want pre-transaction content %q", got, "first")
	}
}

// TestRestoreDiscardsUncommittedRemoval checks that Restore reverts an
// in-memory (never committed) Remove back to the last materialized state,
// since Savepoint/Restore operate on the repository's committed object
// content, not on keyrepo's pending in-process map edits.
func TestRestoreDiscardsUncommittedRemoval(t *testing.T) {
	store := memstore.New()
	k, err := Open(store, fixedChunkConfig(), "")
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	obj := k.Insert("doomed")
	writeString(t, obj, "present")
	if err := obj.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := k.Commit(); err != nil {
		t.Fatal(err)
	}

	sp := k.Savepoint()

	if err := k.Remove("doomed"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := k.Get("doomed"); ok {
		t.Fatal("expected doomed to be gone from the in-memory map before restore")
	}

	if err := k.Restore(sp); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, ok := k.Get("doomed"); !ok {
		t.Fatal("expected doomed back after restoring over the uncommitted removal")
	}
}

// TestSavepointInvalidatedByKeyRepoCommit checks that an actual Commit (a
// real removal, not just an in-memory edit) invalidates a savepoint taken
// beforehand, per the one-generation lifetime of a Savepoint.
func TestSavepointInvalidatedByKeyRepoCommit(t *testing.T) {
	store := memstore.New()
	k, err := Open(store, fixedChunkConfig(), "")
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	obj := k.Insert("doomed")
	writeString(t, obj, "present")
	if err := obj.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := k.Commit(); err != nil {
		t.Fatal(err)
	}

	sp := k.Savepoint()

	if err := k.Remove("doomed"); err != nil {
		t.Fatal(err)
	}
	if err := k.Commit(); err != nil {
		t.Fatal(err)
	}
	if _, ok := k.Get("doomed"); ok {
		t.Fatal("expected doomed to be gone after removal commit")
	}

	if err := k.Restore(sp); !vaulterr.Is(err, vaulterr.KindInvalidSavepoint) {
		t.Fatalf("want INVALID_SAVEPOINT, got %v", err)
	}
}
