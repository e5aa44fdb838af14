// Package filerepo specifies the path -> file tree view onto a repository:
// a C12 public view layer out of this module's scope beyond its contract,
// since its logic is mechanical on top of repo.Repository the same way
// repo/keyrepo's is (a directory-entry map serialized into the current
// instance's designated object instead of a flat key -> object map).
package filerepo

import (
	"time"

	"github.com/coldvault/vault/pkg/object"
)

// EntryKind distinguishes a directory entry's file-system role.
type EntryKind uint8

const (
	EntryFile EntryKind = iota
	EntryDirectory
	EntrySymlink
)

// Entry is one node of the file tree: either a regular file backed by an
// object.Handle, a directory (whose own children live in its own
// directory-entry map, recursively), or a symlink carrying a target path.
type Entry struct {
	Name     string
	Kind     EntryKind
	Handle   object.Handle // valid when Kind == EntryFile
	Target   string        // valid when Kind == EntrySymlink
	Modified time.Time
}

// Tree is the file-tree view's contract: a rooted hierarchy of Entry values
// addressed by slash-separated paths, built mechanically on repo.Repository
// the way repo/keyrepo builds a flat namespace on it — each directory's
// children are themselves an object.Object holding a serialized []Entry,
// chained from a root handle recorded in the instance's designated object.
type Tree interface {
	Open(path string) (*object.Object, error)
	Create(path string) (*object.Object, error)
	Mkdir(path string) error
	Remove(path string) error
	ReadDir(path string) ([]Entry, error)
	Rename(oldPath, newPath string) error
}
