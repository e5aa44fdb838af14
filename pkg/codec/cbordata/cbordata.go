// Package cbordata provides the canonical CBOR encoding used for every
// persisted record in the engine (RepoMetadata, Header, instance object
// maps, and Object.Serialize/Deserialize payloads).
package cbordata

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// canonicalMode produces deterministic map-key ordering and no indefinite
// lengths, so the same value always encodes to the same bytes.
var canonicalMode cbor.EncMode

func init() {
	var err error
	canonicalMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbordata: failed to build canonical mode: %v", err))
	}
}

// Marshal encodes v as canonical CBOR.
func Marshal(v interface{}) ([]byte, error) {
	return canonicalMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}
