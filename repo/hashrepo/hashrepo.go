// Package hashrepo specifies the content-hash -> object view onto a
// repository: a C12 public view layer out of this module's scope beyond
// its contract. It is the same shape as repo/keyrepo with one difference —
// the map key is the object's own ContentId (spec §3) rather than an
// arbitrary caller-chosen string, so Insert computes the key from the
// written content instead of accepting one, giving pure content-addressed
// storage with automatic whole-object dedup on top of repo/keyrepo's
// sub-object chunk-level dedup.
package hashrepo

import (
	"github.com/coldvault/vault/pkg/object"
)

// Map is the content-hash view's contract: Put writes data and returns the
// ContentId it hashed to (a no-op if that id is already present), and Get
// resolves a previously returned ContentId back to its Object.
type Map interface {
	Put(data []byte) (object.ContentId, error)
	Get(id object.ContentId) (*object.Object, bool)
	Delete(id object.ContentId) error
}
