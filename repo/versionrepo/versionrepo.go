// Package versionrepo specifies the append-only version-history view onto a
// repository: a C12 public view layer out of this module's scope beyond its
// contract. Each key holds a list of object.Handle snapshots instead of a
// single one, letting callers retain and inspect prior versions the way
// repo/keyrepo's single-handle-per-key model cannot; built mechanically on
// repo.Repository by serializing map[string][]object.Handle instead of
// map[string]object.Handle into the current instance's designated object.
package versionrepo

import (
	"time"

	"github.com/coldvault/vault/pkg/object"
)

// Version is one historical snapshot of a key's content.
type Version struct {
	Handle  object.Handle
	Written time.Time
}

// History is the version-history view's contract: Put appends a new
// version without discarding prior ones, At resolves a specific version
// (the latest if n is the last index), and Prune discards everything
// before a given version, keeping the key itself intact.
type History interface {
	Put(key string) (*object.Object, error)
	Versions(key string) ([]Version, error)
	At(key string, n int) (*object.Object, bool)
	Prune(key string, keepFrom int) error
}
