// Package storetest runs one behavioral suite against any blockstore.Store
// implementation, so each concrete backend's test simply calls Run.
package storetest

import (
	"bytes"
	"testing"

	"github.com/coldvault/vault/pkg/blockstore"
)

// Run exercises the read/write/remove/list contract against store.
func Run(t *testing.T, store blockstore.Store) {
	t.Helper()

	t.Run("read absent", func(t *testing.T) {
		_, ok, err := store.Read(blockstore.Version())
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if ok {
			t.Fatal("expected absent block to report ok=false")
		}
	})

	t.Run("write then read", func(t *testing.T) {
		id := blockstore.NewDataID()
		want := []byte("hello block")
		if err := store.Write(id, want); err != nil {
			t.Fatalf("write: %v", err)
		}
		got, ok, err := store.Read(id)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !ok {
			t.Fatal("expected block to be present")
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}
	})

	t.Run("overwrite replaces", func(t *testing.T) {
		id := blockstore.NewDataID()
		if err := store.Write(id, []byte("first")); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := store.Write(id, []byte("second")); err != nil {
			t.Fatalf("write: %v", err)
		}
		got, _, err := store.Read(id)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(got) != "second" {
			t.Fatalf("got %q, want %q", got, "second")
		}
	})

	t.Run("remove absent is not an error", func(t *testing.T) {
		if err := store.Remove(blockstore.NewDataID()); err != nil {
			t.Fatalf("remove: %v", err)
		}
	})

	t.Run("remove deletes", func(t *testing.T) {
		id := blockstore.NewDataID()
		if err := store.Write(id, []byte("x")); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := store.Remove(id); err != nil {
			t.Fatalf("remove: %v", err)
		}
		_, ok, err := store.Read(id)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if ok {
			t.Fatal("expected block to be gone after remove")
		}
	})

	t.Run("list reflects writes and removes", func(t *testing.T) {
		before, err := store.List()
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		id := blockstore.NewDataID()
		if err := store.Write(id, []byte("y")); err != nil {
			t.Fatalf("write: %v", err)
		}
		after, err := store.List()
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(after) != len(before)+1 {
			t.Fatalf("expected list to grow by 1, got %d -> %d", len(before), len(after))
		}
		if err := store.Remove(id); err != nil {
			t.Fatalf("remove: %v", err)
		}
		final, err := store.List()
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(final) != len(before) {
			t.Fatalf("expected list to shrink back to %d, got %d", len(before), len(final))
		}
	})

	t.Run("independent ids do not collide", func(t *testing.T) {
		a, b := blockstore.NewDataID(), blockstore.NewDataID()
		if err := store.Write(a, []byte("a")); err != nil {
			t.Fatalf("write a: %v", err)
		}
		if err := store.Write(b, []byte("b")); err != nil {
			t.Fatalf("write b: %v", err)
		}
		gotA, _, _ := store.Read(a)
		gotB, _, _ := store.Read(b)
		if string(gotA) != "a" || string(gotB) != "b" {
			t.Fatalf("writes collided: a=%q b=%q", gotA, gotB)
		}
	})
}
