// Package lz4block implements the LZ4 compression option for the codec
// layer using a length-prefixed frame so Decompress knows the output size
// up front.
package lz4block

import (
	"encoding/binary"

	"github.com/pierrec/lz4/v4"

	"github.com/coldvault/vault/pkg/vaulterr"
)

// Level is the LZ4 compression level, 1 (fastest) through 9 (smallest).
type Level int

// storedFlag marks a frame whose payload is the raw plaintext rather than
// an LZ4 block, used when CompressBlock reports the input as incompressible
// (it returns n==0 in that case per its documented contract, rather than an
// expanded block).
const storedFlag = 1

// Compress returns plaintext compressed at the given level, framed as an
// 8-byte little-endian uncompressed length, a 1-byte stored flag, and the
// payload. When the input doesn't shrink, CompressBlock returns n==0
// instead of a block; the frame then carries the plaintext unchanged with
// the stored flag set, since there is no compressed block to decode.
func Compress(plaintext []byte, level Level) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(plaintext)))
	var c lz4.Compressor
	n, err := c.CompressBlock(plaintext, buf)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindSerialize, "lz4 compress", err)
	}

	payload := buf[:n]
	stored := byte(0)
	if n == 0 && len(plaintext) > 0 {
		stored = storedFlag
		payload = plaintext
	}

	out := make([]byte, 9+len(payload))
	binary.LittleEndian.PutUint64(out[:8], uint64(len(plaintext)))
	out[8] = stored
	copy(out[9:], payload)
	return out, nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	if len(data) < 9 {
		return nil, vaulterr.New(vaulterr.KindInvalidData, "lz4 frame too short")
	}
	size := binary.LittleEndian.Uint64(data[:8])
	stored := data[8]
	payload := data[9:]

	if size == 0 {
		return []byte{}, nil
	}
	if stored == storedFlag {
		out := make([]byte, size)
		copy(out, payload)
		return out, nil
	}

	out := make([]byte, size)
	n, err := lz4.UncompressBlock(payload, out)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindInvalidData, "lz4 decompress", err)
	}
	return out[:n], nil
}
