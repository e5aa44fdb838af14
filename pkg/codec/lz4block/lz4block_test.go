package lz4block

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"compressible", bytes.Repeat([]byte("the quick brown fox "), 500)},
		{"incompressible", randomBytes(t, 1<<16)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			compressed, err := Compress(tc.data, 3)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			got, err := Decompress(compressed)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(got, tc.data) {
				t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(tc.data))
			}
		})
	}
}

// TestCompressStoresIncompressibleDataRaw pins down that CompressBlock's
// n==0 return for incompressible input produces a stored frame rather than
// an empty one.
func TestCompressStoresIncompressibleDataRaw(t *testing.T) {
	data := randomBytes(t, 1<<16)
	compressed, err := Compress(data, 3)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if compressed[8] != storedFlag {
		t.Fatalf("expected stored flag for incompressible input")
	}
	if !bytes.Equal(compressed[9:], data) {
		t.Fatalf("stored payload does not match plaintext")
	}
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return buf
}
