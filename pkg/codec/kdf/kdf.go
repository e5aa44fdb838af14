// Package kdf derives a user key from a password and salt via Argon2id, at
// one of three resource-limit presets.
package kdf

import (
	"crypto/rand"

	"golang.org/x/crypto/argon2"

	"github.com/coldvault/vault/pkg/codec/aead"
	"github.com/coldvault/vault/pkg/vaulterr"
)

// parallelism is fixed rather than derived from runtime.NumCPU so that the
// same password and salt always derive the same key regardless of machine.
const parallelism = 4

// ResourceLimit selects the Argon2id time/memory cost.
type ResourceLimit uint8

const (
	Interactive ResourceLimit = iota
	Moderate
	Sensitive
)

// params mirrors libsodium's crypto_pwhash presets, scaled to argon2's
// (time, memory-KiB) parameterization.
type params struct {
	time   uint32
	memory uint32 // KiB
}

func (r ResourceLimit) params() params {
	switch r {
	case Moderate:
		return params{time: 3, memory: 256 * 1024}
	case Sensitive:
		return params{time: 4, memory: 1024 * 1024}
	default: // Interactive
		return params{time: 2, memory: 64 * 1024}
	}
}

// SaltSize is the size in bytes of the random salt stored alongside the
// wrapped master key.
const SaltSize = 16

// NewSalt returns a fresh random salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindIo, "generate salt", err)
	}
	return salt, nil
}

// Derive derives a user key from password and salt at the given memory and
// operations limits.
func Derive(password string, salt []byte, memoryLimit, opsLimit ResourceLimit) aead.Key {
	mp := memoryLimit.params()
	op := opsLimit.params()
	raw := argon2.IDKey([]byte(password), salt, op.time, mp.memory, parallelism, aead.KeySize)
	var key aead.Key
	copy(key[:], raw)
	return key
}
