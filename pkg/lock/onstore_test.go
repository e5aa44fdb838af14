package lock

import (
	"testing"

	"github.com/coldvault/vault/pkg/codec"
	"github.com/coldvault/vault/pkg/storebackend/memstore"
	"github.com/coldvault/vault/pkg/vaulterr"
)

func TestOnStoreLockAcquireWhenAbsent(t *testing.T) {
	store := memstore.New()
	cdc := codec.Codec{}

	l, err := Acquire(store, cdc, []byte("owner-a"), nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func TestOnStoreLockDeniedWithoutHandler(t *testing.T) {
	store := memstore.New()
	cdc := codec.Codec{}

	l, err := Acquire(store, cdc, []byte("owner-a"), nil)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer l.Unlock()

	_, err = Acquire(store, cdc, []byte("owner-b"), nil)
	if !vaulterr.Is(err, vaulterr.KindLocked) {
		t.Fatalf("expected Locked, got %v", err)
	}
}

func TestOnStoreLockHandlerCanTakeOver(t *testing.T) {
	store := memstore.New()
	cdc := codec.Codec{}

	l, err := Acquire(store, cdc, []byte("owner-a"), nil)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	_ = l // simulated crash: never calls Unlock

	var seen []byte
	l2, err := Acquire(store, cdc, []byte("owner-b"), func(existing []byte) bool {
		seen = existing
		return true
	})
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if string(seen) != "owner-a" {
		t.Fatalf("handler saw %q, want owner-a", seen)
	}
	if err := l2.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func TestOnStoreUnlockWithoutLockIsNotLocked(t *testing.T) {
	store := memstore.New()
	cdc := codec.Codec{}

	l, err := Acquire(store, cdc, []byte("owner-a"), nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := l.Unlock(); !vaulterr.Is(err, vaulterr.KindNotLocked) {
		t.Fatalf("expected NotLocked, got %v", err)
	}
}
