// Package wire provides the single canonical-CBOR codec shared by every
// GRaPPA package that needs a self-describing binary encoding: the on-disk
// state blob, the SSKG/KaPPA serialization formats, and the file-metadata
// envelope (spec.md §6). Canonical CBOR is the reference choice precisely
// because two implementations must agree byte-for-byte for interop, so all
// encoding in this repository funnels through this one EncMode.
package wire

import "github.com/fxamacker/cbor/v2"

var encMode = func() cbor.EncMode {
	m, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// Marshal encodes v to canonical CBOR.
func Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes canonical (or any valid) CBOR into v.
func Unmarshal(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}
