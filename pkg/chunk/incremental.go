package chunk

// Incremental buffers writes and emits complete chunks as its detector
// finds boundaries. Callers write arbitrary-sized buffers and drain
// whatever complete chunks have accumulated with Chunks; a final Flush
// emits the trailing buffered bytes as a last, possibly short, chunk.
type Incremental struct {
	boundary Boundary
	buffer   []byte
	chunks   [][]byte
}

// NewIncremental wraps a Boundary detector in a stream-incremental chunker.
func NewIncremental(boundary Boundary) *Incremental {
	return &Incremental{boundary: boundary}
}

// Write feeds buf into the chunker, splitting off complete chunks whenever
// the boundary detector fires.
func (c *Incremental) Write(buf []byte) {
	unchunked := buf
	for {
		idx, found := c.boundary.FindBoundary(unchunked)
		if !found {
			c.buffer = append(c.buffer, unchunked...)
			return
		}
		c.buffer = append(c.buffer, unchunked[:idx]...)
		c.chunks = append(c.chunks, c.buffer)
		c.buffer = nil
		unchunked = unchunked[idx:]
		c.boundary.Reset()
	}
}

// Flush emits any buffered trailing bytes as a final chunk.
func (c *Incremental) Flush() {
	if len(c.buffer) > 0 {
		c.chunks = append(c.chunks, c.buffer)
		c.buffer = nil
	}
	c.boundary.Reset()
}

// Chunks drains and returns the chunks produced so far. Some written data
// may still be buffered internally; call Flush first to force it out.
func (c *Incremental) Chunks() [][]byte {
	out := c.chunks
	c.chunks = nil
	return out
}

// Clear discards all buffered data and produced chunks and resets the
// boundary detector.
func (c *Incremental) Clear() {
	c.buffer = nil
	c.chunks = nil
	c.boundary.Reset()
}

// IsEmpty reports whether the chunker holds no buffered or pending data.
func (c *Incremental) IsEmpty() bool {
	return len(c.buffer) == 0 && len(c.chunks) == 0
}
