package boltstore

import (
	"path/filepath"
	"testing"

	"github.com/coldvault/vault/pkg/storebackend/storetest"
)

func TestBoltstoreContract(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "blocks.bolt"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	storetest.Run(t, store)
}
