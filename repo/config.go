// Package repo implements C8, C10, and C11: the open/create protocol,
// commit/rollback/savepoint/clean, and the instance multiplexer, tying
// together the chunk store, pack layer, codec, and lock manager into a
// single Repository.
package repo

import (
	"github.com/coldvault/vault/pkg/chunk"
	"github.com/coldvault/vault/pkg/codec"
	"github.com/coldvault/vault/pkg/codec/aead"
	"github.com/coldvault/vault/pkg/codec/kdf"
	"github.com/coldvault/vault/pkg/codec/lz4block"
	"github.com/coldvault/vault/pkg/header"
	"github.com/coldvault/vault/pkg/pack"
)

// ChunkingKind selects the chunk-boundary strategy.
type ChunkingKind uint8

const (
	ChunkingFixed ChunkingKind = iota
	ChunkingZpaq
)

// Chunking configures the chunker: Kind selects the strategy, and Param is
// either the fixed chunk size in bytes or the ZPAQ average-size exponent.
type Chunking struct {
	Kind  ChunkingKind
	Param uint32
}

// Config is a repository's full configuration, set at Create time and
// persisted (sans password) in the superblock.
type Config struct {
	Chunking        Chunking
	PackSize        uint32 // 0 disables packing
	Compression     codec.CompressionKind
	CompressionLvl  lz4block.Level
	Encryption      codec.EncryptionKind
	MemoryLimit     kdf.ResourceLimit
	OperationsLimit kdf.ResourceLimit
}

// DefaultConfig returns a repository configuration matching the teacher's
// "plain struct of tunables with sane defaults" pattern: content-defined
// chunking at a 1 MiB average, no packing, LZ4 compression, and encryption
// enabled at interactive KDF cost.
func DefaultConfig() Config {
	return Config{
		Chunking:        Chunking{Kind: ChunkingZpaq, Param: 20},
		PackSize:        0,
		Compression:     codec.CompressionLz4,
		CompressionLvl:  3,
		Encryption:      codec.EncryptionXChaCha20Poly1305,
		MemoryLimit:     kdf.Interactive,
		OperationsLimit: kdf.Interactive,
	}
}

func (c Config) codec(masterKey aead.Key) codec.Codec {
	return codec.Codec{
		Compression: codec.Compression{Kind: c.Compression, Level: c.CompressionLvl},
		Encryption:  c.Encryption,
		MasterKey:   masterKey,
	}
}

func (c Config) packConfig() pack.Config {
	return pack.Config{Size: c.PackSize}
}

func (c Config) newBoundary() chunk.Boundary {
	if c.Chunking.Kind == ChunkingFixed {
		return chunk.NewFixed(c.Chunking.Param)
	}
	return chunk.NewZpaq(c.Chunking.Param)
}

func (c Config) toRecord() header.Config {
	return header.Config{
		ChunkingKind:    uint8(c.Chunking.Kind),
		ChunkingParam:   c.Chunking.Param,
		PackSize:        c.PackSize,
		CompressionKind: uint8(c.Compression),
		CompressionLvl:  int(c.CompressionLvl),
		EncryptionKind:  uint8(c.Encryption),
		MemoryLimit:     uint8(c.MemoryLimit),
		OperationsLimit: uint8(c.OperationsLimit),
	}
}

func configFromRecord(r header.Config) Config {
	return Config{
		Chunking:        Chunking{Kind: ChunkingKind(r.ChunkingKind), Param: r.ChunkingParam},
		PackSize:        r.PackSize,
		Compression:     codec.CompressionKind(r.CompressionKind),
		CompressionLvl:  lz4block.Level(r.CompressionLvl),
		Encryption:      codec.EncryptionKind(r.EncryptionKind),
		MemoryLimit:     kdf.ResourceLimit(r.MemoryLimit),
		OperationsLimit: kdf.ResourceLimit(r.OperationsLimit),
	}
}
