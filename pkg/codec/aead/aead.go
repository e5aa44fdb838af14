// Package aead implements the engine's sole encryption option,
// XChaCha20-Poly1305, with the on-disk layout nonce ‖ ciphertext ‖ tag.
package aead

import (
	"crypto/rand"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/coldvault/vault/pkg/vaulterr"
)

// KeySize is the size in bytes of the master/user encryption key.
const KeySize = chacha20poly1305.KeySize

// Key is a 32-byte AEAD key.
type Key [KeySize]byte

// GenerateKey returns a fresh random key from the system CSPRNG.
func GenerateKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, vaulterr.Wrap(vaulterr.KindIo, "generate key", err)
	}
	return k, nil
}

// Seal encrypts plaintext under key, returning nonce‖ciphertext‖tag.
func Seal(key Key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindInvalidData, "init aead", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindIo, "generate nonce", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

// Open decrypts a nonce‖ciphertext‖tag buffer produced by Seal. Any
// decryption failure is reported as InvalidData, indistinguishable from
// corruption by design.
func Open(key Key, data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindInvalidData, "init aead", err)
	}
	if len(data) < aead.NonceSize() {
		return nil, vaulterr.New(vaulterr.KindInvalidData, "ciphertext too short")
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindInvalidData, "decrypt", err)
	}
	return plaintext, nil
}
