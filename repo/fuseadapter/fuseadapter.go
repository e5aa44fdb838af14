// Package fuseadapter specifies the FUSE contract for mounting a
// repo/filerepo.Tree as an OS filesystem. It is interface-only: no mount
// code, no bazil.org/fuse wiring, no OS-level file descriptors. Actually
// mounting a repository is out of scope (see spec Non-goals); what's
// specified here is the shape an adapter would need to bridge
// filerepo.Tree's path operations onto a FUSE request/reply loop.
package fuseadapter

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/coldvault/vault/repo/filerepo"
)

// Attr is the subset of file metadata a FUSE Getattr/Setattr call needs,
// derived from a filerepo.Entry.
type Attr struct {
	Mode     os.FileMode
	Size     uint64
	Modified time.Time
}

// Handle is an open file or directory handle as seen through FUSE: a
// ReadWriteSeeker for files, nothing beyond Close for directories (whose
// contents are read via Tree.ReadDir directly).
type Handle interface {
	io.ReadWriteSeeker
	io.Closer
}

// FS is the contract a FUSE adapter implements over a filerepo.Tree: every
// method mirrors one FUSE operation, taking a context so a long-lived mount
// can cancel in-flight calls on unmount.
type FS interface {
	Attr(ctx context.Context, path string) (Attr, error)
	Open(ctx context.Context, path string, flags int) (Handle, error)
	Create(ctx context.Context, path string, mode os.FileMode) (Handle, error)
	Mkdir(ctx context.Context, path string, mode os.FileMode) error
	Remove(ctx context.Context, path string) error
	ReadDir(ctx context.Context, path string) ([]filerepo.Entry, error)
	Rename(ctx context.Context, oldPath, newPath string) error
}
