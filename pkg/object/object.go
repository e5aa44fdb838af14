package object

import (
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/coldvault/vault/pkg/chunk"
	"github.com/coldvault/vault/pkg/codec/cbordata"
	"github.com/coldvault/vault/pkg/lock"
	"github.com/coldvault/vault/pkg/pack"
	"github.com/coldvault/vault/pkg/vaulterr"
)

// seekKind discriminates the three places a seek position can land.
type seekKind int

const (
	seekEmpty seekKind = iota
	seekEnd
	seekExtent
)

// extentLocation pinpoints an extent that the current seek position falls
// within.
type extentLocation struct {
	extent   Extent
	start    uint64
	position uint64
	index    int
}

func (l extentLocation) relativePosition() uint64 {
	return l.position - l.start
}

// seekPos is the sum type Empty | End | Extent(location).
type seekPos struct {
	kind seekKind
	loc  extentLocation
}

// txState is the mutable, privately-owned working state of one Object. It
// is never shared between Object values, so it needs no synchronization of
// its own; only the underlying Handle's extent list is shared and requires
// Object.mu.
type txState struct {
	chunker       *chunk.Incremental
	newChunks     []chunk.Chunk
	startPosition seekPos
	position      uint64
	bufferedChunk *chunk.Chunk
	readBuffer    []byte
	holeBuffer    []byte
	txGuard       *lock.Guard[HandleID]
	packState     *pack.State
}

// Object is a seekable, transactional view onto the content-defined byte
// stream described by a Handle. Multiple Objects may exist for the same
// HandleID (across different goroutines or instance lookups); txLocks
// ensures at most one of them has an open write transaction at a time, and
// mu protects the shared Handle's extent list from concurrent commits.
type Object struct {
	mu      *sync.RWMutex
	handle  *Handle
	store   ChunkStore
	txLocks *lock.Table[HandleID]

	state txState
}

// New returns an Object view onto handle. mu and txLocks are shared with
// every other Object built on the same handle (and, for txLocks, every
// other handle in the repository); newBoundary constructs a fresh chunk
// boundary detector matching the repository's configured chunking scheme.
func New(handle *Handle, store ChunkStore, mu *sync.RWMutex, txLocks *lock.Table[HandleID], newBoundary func() chunk.Boundary) *Object {
	return &Object{
		mu:      mu,
		handle:  handle,
		store:   store,
		txLocks: txLocks,
		state: txState{
			chunker:       chunk.NewIncremental(newBoundary()),
			startPosition: seekPos{kind: seekEmpty},
			packState:     pack.NewState(),
		},
	}
}

func (o *Object) checkNotInTransaction() error {
	if o.txLocks.IsLocked(o.handle.ID) {
		return vaulterr.New(vaulterr.KindTransactionInProgress, "object has an open write transaction")
	}
	return nil
}

// Size returns the object's apparent size in bytes.
func (o *Object) Size() (uint64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if err := o.checkNotInTransaction(); err != nil {
		return 0, err
	}
	return o.handle.Size(), nil
}

// ContentId returns a value identifying this object's contents.
func (o *Object) ContentId(repoID uuid.UUID) (ContentId, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if err := o.checkNotInTransaction(); err != nil {
		return ContentId{}, err
	}
	extents := make([]Extent, len(o.handle.Extents))
	copy(extents, o.handle.Extents)
	return ContentId{RepoID: repoID, Extents: extents}, nil
}

// Stats returns the object's actual/apparent size and hole layout.
func (o *Object) Stats() (Stats, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if err := o.checkNotInTransaction(); err != nil {
		return Stats{}, err
	}

	var position uint64
	var stats Stats
	for _, e := range o.handle.Extents {
		size := e.Size()
		if e.Kind == ExtentChunk {
			stats.Actual += size
		} else {
			stats.Holes = append(stats.Holes, Range{Start: position, End: position + size})
		}
		position += size
		stats.Apparent += size
	}
	return stats, nil
}

// Verify checks that every chunk the object references decodes to data
// matching its recorded hash and size.
func (o *Object) Verify() (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if err := o.checkNotInTransaction(); err != nil {
		return false, err
	}

	for _, c := range o.handle.Chunks() {
		data, err := o.store.ReadChunk(c, o.state.packState)
		if vaulterr.Is(err, vaulterr.KindInvalidData) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if uint32(len(data)) != c.Size {
			return false, nil
		}
		got, err := chunk.Of(data)
		if err != nil {
			return false, err
		}
		if got.Hash != c.Hash {
			return false, nil
		}
	}
	return true, nil
}

// currentPosition locates o.state.position within the handle's extents.
// Caller must hold at least a read lock.
func (o *Object) currentPosition() seekPos {
	if len(o.handle.Extents) == 0 {
		return seekPos{kind: seekEmpty}
	}

	var start uint64
	for i, e := range o.handle.Extents {
		end := start + e.Size()
		if o.state.position >= start && o.state.position < end {
			return seekPos{kind: seekExtent, loc: extentLocation{
				extent:   e,
				start:    start,
				position: o.state.position,
				index:    i,
			}}
		}
		start = end
	}
	return seekPos{kind: seekEnd}
}

func (o *Object) readHole(size int) []byte {
	if len(o.state.holeBuffer) < size {
		o.state.holeBuffer = make([]byte, size)
	}
	return o.state.holeBuffer[:size]
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// readExtent returns up to size bytes starting at the current position,
// never crossing an extent boundary.
func (o *Object) readExtent(size int) ([]byte, error) {
	pos := o.currentPosition()
	if pos.kind != seekExtent {
		return nil, nil
	}

	switch pos.loc.extent.Kind {
	case ExtentChunk:
		c := pos.loc.extent.Chunk
		if o.state.bufferedChunk == nil || *o.state.bufferedChunk != c {
			data, err := o.store.ReadChunk(c, o.state.packState)
			if err != nil {
				return nil, err
			}
			o.state.bufferedChunk = &c
			o.state.readBuffer = data
		}
		start := pos.loc.relativePosition()
		end := minU64(start+uint64(size), uint64(pos.loc.extent.Chunk.Size))
		return o.state.readBuffer[start:end], nil
	default: // ExtentHole
		readSize := minU64(uint64(size), pos.loc.extent.HoleSize-pos.loc.relativePosition())
		return o.readHole(int(readSize)), nil
	}
}

// Seek implements io.Seeker.
func (o *Object) Seek(offset int64, whence int) (int64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if err := o.checkNotInTransaction(); err != nil {
		return 0, err
	}

	size := int64(o.handle.Size())
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekEnd:
		newPos = size + offset
	case io.SeekCurrent:
		newPos = int64(o.state.position) + offset
	default:
		return 0, vaulterr.New(vaulterr.KindInvalidData, "invalid whence")
	}
	if newPos < 0 {
		return 0, vaulterr.New(vaulterr.KindInvalidData, "negative seek position")
	}
	if newPos > size {
		newPos = size
	}
	o.state.position = uint64(newPos)
	return newPos, nil
}

// Read implements io.Reader.
func (o *Object) Read(buf []byte) (int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if err := o.checkNotInTransaction(); err != nil {
		return 0, err
	}

	next, err := o.readExtent(len(buf))
	if err != nil {
		return 0, err
	}
	n := copy(buf, next)
	o.state.position += uint64(n)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Deserialize reads the object from the start and decodes it as CBOR into
// v, matching the wire format produced by Serialize.
func (o *Object) Deserialize(v interface{}) error {
	if _, err := o.Seek(0, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(readerFunc(o.Read))
	if err != nil {
		return err
	}
	return cbordata.Unmarshal(data, v)
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

// truncate implements the shrinking half of SetLen: the final, partially
// overwritten extent is split by reading it back and re-writing the
// surviving prefix through the chunk store so deduplication still applies.
func (o *Object) truncate(size uint64) error {
	if size >= o.handle.Size() {
		return nil
	}

	originalPosition := o.state.position
	o.state.position = size

	pos := o.currentPosition()
	if pos.kind != seekExtent {
		o.state.position = minU64(originalPosition, size)
		return nil
	}

	var newLastExtent Extent
	switch pos.loc.extent.Kind {
	case ExtentChunk:
		data, err := o.store.ReadChunk(pos.loc.extent.Chunk, o.state.packState)
		if err != nil {
			return err
		}
		truncated := data[:pos.loc.relativePosition()]
		c, err := o.store.WriteChunk(truncated, o.handle.ID, o.state.packState)
		if err != nil {
			return err
		}
		newLastExtent = Extent{Kind: ExtentChunk, Chunk: c}
	default:
		newLastExtent = Extent{Kind: ExtentHole, HoleSize: pos.loc.relativePosition()}
	}

	discarded := o.handle.Extents[pos.loc.index:]
	o.dereferenceReplaced(discarded, []Extent{newLastExtent})
	o.handle.Extents = append(o.handle.Extents[:pos.loc.index], newLastExtent)
	o.state.position = minU64(originalPosition, size)
	return nil
}

// extend implements the growing half of SetLen by appending a hole.
func (o *Object) extend(size uint64) {
	if size <= o.handle.Size() {
		return
	}
	o.handle.Extents = append(o.handle.Extents, Extent{Kind: ExtentHole, HoleSize: size - o.handle.Size()})
}

// SetLen resizes the object to size, opening and closing its own
// transaction.
func (o *Object) SetLen(size uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	guard, ok := o.txLocks.Acquire(o.handle.ID)
	if !ok {
		return vaulterr.New(vaulterr.KindTransactionInProgress, "object has an open write transaction")
	}
	defer guard.Release()

	switch {
	case size < o.handle.Size():
		if err := o.truncate(size); err != nil {
			return err
		}
	case size > o.handle.Size():
		o.extend(size)
	}
	return nil
}

// dereferenceReplaced drops this handle's reference to every chunk in old
// that does not also appear in kept, since old's bytes are no longer part
// of the object after this transaction. A chunk written elsewhere in the
// same object at the exact same content keeps its reference.
func (o *Object) dereferenceReplaced(old, kept []Extent) {
	stillWanted := make(map[chunk.Chunk]struct{}, len(kept))
	for _, e := range kept {
		if e.Kind == ExtentChunk {
			stillWanted[e.Chunk] = struct{}{}
		}
	}
	for _, e := range old {
		if e.Kind != ExtentChunk {
			continue
		}
		if _, keep := stillWanted[e.Chunk]; keep {
			continue
		}
		o.store.RemoveReference(e.Chunk, o.handle.ID)
	}
}

// writeChunks drains the chunker's completed chunks through the chunk
// store, recording them as part of the pending transaction.
func (o *Object) writeChunks() error {
	for _, data := range o.state.chunker.Chunks() {
		c, err := o.store.WriteChunk(data, o.handle.ID, o.state.packState)
		if err != nil {
			return err
		}
		o.state.newChunks = append(o.state.newChunks, c)
	}
	return nil
}

// Write implements io.Writer. The first write of a transaction opens it by
// acquiring the per-handle lock and recording the start position; writes
// are chunked incrementally and nothing is reflected in the handle's extent
// list until Commit is called.
func (o *Object) Write(buf []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	firstWrite := false
	if o.state.txGuard == nil {
		guard, ok := o.txLocks.Acquire(o.handle.ID)
		if !ok {
			return 0, vaulterr.New(vaulterr.KindTransactionInProgress, "object has an open write transaction")
		}
		o.state.txGuard = guard
		firstWrite = true
	}

	if firstWrite {
		o.state.startPosition = o.currentPosition()
		if o.state.startPosition.kind == seekExtent && o.state.startPosition.loc.extent.Kind == ExtentChunk {
			data, err := o.store.ReadChunk(o.state.startPosition.loc.extent.Chunk, o.state.packState)
			if err != nil {
				return 0, err
			}
			prefix := data[:o.state.startPosition.loc.relativePosition()]
			o.state.chunker.Write(prefix)
		}
	}

	o.state.chunker.Write(buf)
	if err := o.writeChunks(); err != nil {
		return 0, err
	}
	o.state.position += uint64(len(buf))
	return len(buf), nil
}

// Commit flushes any buffered writes and splices the resulting chunks (plus
// any holes needed at the edges) into the handle's extent list, then
// releases the write transaction. Calling Commit with no pending writes is
// a no-op.
func (o *Object) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.txGuard == nil {
		return nil
	}
	defer func() {
		o.state.txGuard.Release()
		o.state.txGuard = nil
	}()

	currentPosition := o.currentPosition()

	var startHole *uint64
	if o.state.startPosition.kind == seekExtent && o.state.startPosition.loc.extent.Kind == ExtentHole {
		v := o.state.startPosition.loc.relativePosition()
		startHole = &v
	}

	var endHole *uint64
	if currentPosition.kind == seekExtent && currentPosition.loc.extent.Kind == ExtentHole {
		v := currentPosition.loc.extent.HoleSize - currentPosition.loc.relativePosition()
		endHole = &v
	}

	if currentPosition.kind == seekExtent && currentPosition.loc.extent.Kind == ExtentChunk {
		data, err := o.store.ReadChunk(currentPosition.loc.extent.Chunk, o.state.packState)
		if err != nil {
			return err
		}
		o.state.chunker.Write(data[currentPosition.loc.relativePosition():])
	}

	o.state.chunker.Flush()
	if err := o.writeChunks(); err != nil {
		return err
	}

	var startIndex int
	switch o.state.startPosition.kind {
	case seekEmpty:
		startIndex = 0
	case seekEnd:
		startIndex = len(o.handle.Extents)
	default:
		startIndex = o.state.startPosition.loc.index
	}

	var endIndex int
	switch currentPosition.kind {
	case seekEmpty:
		endIndex = 0
	case seekEnd:
		endIndex = len(o.handle.Extents)
	default:
		endIndex = currentPosition.loc.index + 1
	}

	var newExtents []Extent
	if startHole != nil {
		newExtents = append(newExtents, Extent{Kind: ExtentHole, HoleSize: *startHole})
	}
	for _, c := range o.state.newChunks {
		newExtents = append(newExtents, Extent{Kind: ExtentChunk, Chunk: c})
	}
	o.state.newChunks = nil
	if endHole != nil {
		newExtents = append(newExtents, Extent{Kind: ExtentHole, HoleSize: *endHole})
	}

	o.dereferenceReplaced(o.handle.Extents[startIndex:endIndex], newExtents)

	spliced := make([]Extent, 0, len(o.handle.Extents)-(endIndex-startIndex)+len(newExtents))
	spliced = append(spliced, o.handle.Extents[:startIndex]...)
	spliced = append(spliced, newExtents...)
	spliced = append(spliced, o.handle.Extents[endIndex:]...)
	o.handle.Extents = spliced

	o.state.startPosition = seekPos{kind: seekEmpty}
	return nil
}

// Abort discards the current write transaction's buffered data without
// touching the handle's committed extent list, and releases the per-handle
// transaction lock. Calling Abort with no open transaction is a no-op.
//
// Go has no destructor to run on drop, so callers that open a transaction
// via Write/SetLen and decide not to Commit it must call Abort explicitly —
// otherwise the transaction lock it holds (txGuard) is never released, and
// the chunks writeChunks already wrote for this transaction keep a
// reference on this handle forever even though they were never spliced
// into the extent list.
func (o *Object) Abort() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.txGuard == nil {
		return nil
	}
	defer func() {
		o.state.txGuard.Release()
		o.state.txGuard = nil
	}()

	for _, c := range o.state.newChunks {
		o.store.RemoveReference(c, o.handle.ID)
	}
	o.state.newChunks = nil
	o.state.chunker.Clear()
	o.state.bufferedChunk = nil
	o.state.startPosition = seekPos{kind: seekEmpty}
	return nil
}

// Serialize truncates the object to value's encoded length and writes it in
// one transaction; the pairing of Write, Commit and SetLen mirrors how
// object data is normally written, so it is expressed in terms of them.
func (o *Object) Serialize(v interface{}) error {
	encoded, err := cbordata.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := o.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := o.Write(encoded); err != nil {
		return err
	}
	if err := o.Commit(); err != nil {
		return err
	}
	return o.SetLen(uint64(len(encoded)))
}

var _ io.ReadWriteSeeker = (*Object)(nil)
