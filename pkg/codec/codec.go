// Package codec implements C2: encode a plaintext buffer by compressing
// then encrypting it, and decode by reversing that pipeline.
package codec

import (
	"github.com/coldvault/vault/pkg/codec/aead"
	"github.com/coldvault/vault/pkg/codec/lz4block"
)

// Compression selects the compression stage.
type Compression struct {
	Kind  CompressionKind
	Level lz4block.Level // only meaningful when Kind == CompressionLz4
}

type CompressionKind uint8

const (
	CompressionNone CompressionKind = iota
	CompressionLz4
)

// Encryption selects the encryption stage.
type EncryptionKind uint8

const (
	EncryptionNone EncryptionKind = iota
	EncryptionXChaCha20Poly1305
)

// Codec encodes and decodes persisted bytes according to the repository's
// configured compression and encryption, using the repository's master key.
type Codec struct {
	Compression Compression
	Encryption  EncryptionKind
	MasterKey   aead.Key // zero value when Encryption == EncryptionNone
}

// Encode compresses then encrypts plaintext.
func (c Codec) Encode(plaintext []byte) ([]byte, error) {
	data := plaintext
	var err error
	if c.Compression.Kind == CompressionLz4 {
		data, err = lz4block.Compress(data, c.Compression.Level)
		if err != nil {
			return nil, err
		}
	}
	if c.Encryption == EncryptionXChaCha20Poly1305 {
		data, err = aead.Seal(c.MasterKey, data)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Decode reverses Encode. Decryption failure always surfaces as
// vaulterr.KindInvalidData, never distinguished from corruption.
func (c Codec) Decode(data []byte) ([]byte, error) {
	var err error
	if c.Encryption == EncryptionXChaCha20Poly1305 {
		data, err = aead.Open(c.MasterKey, data)
		if err != nil {
			return nil, err
		}
	}
	if c.Compression.Kind == CompressionLz4 {
		data, err = lz4block.Decompress(data)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}
