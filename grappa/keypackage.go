package grappa

import (
	"github.com/nicdard/grappa/cgka"
	"github.com/nicdard/grappa/wire"
)

// marshalKeyPackage/unmarshalKeyPackage cross the opaque-byte-blob
// boundary of the server middleware (spec.md §6: "all byte blobs are
// opaque to the server").
func marshalKeyPackage(kp *cgka.KeyPackage) ([]byte, error) {
	return wire.Marshal(kp)
}

func unmarshalKeyPackage(data []byte) (*cgka.KeyPackage, error) {
	var kp cgka.KeyPackage
	if err := wire.Unmarshal(data, &kp); err != nil {
		return nil, err
	}
	return &kp, nil
}
