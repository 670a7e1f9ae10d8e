package cryptoutil

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDFExpand derives n bytes of output keying material from ikm under the
// given label, using an empty salt. This is the single PRF construction
// used by sskg's tree expansion, dualprf's combiner, and kappa's final
// epoch-key derivation — every label-distinguished use of HKDF in GRaPPA
// goes through this function so the derivation is consistent end to end.
func HKDFExpand(ikm []byte, label string, n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("cryptoutil: requested length must be positive")
	}
	reader := hkdf.New(sha256.New, ikm, nil, []byte(label))
	out := make([]byte, n)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

// KeySize is the byte length of a raw symmetric key or HMAC key used
// throughout GRaPPA (SHA-256 output size).
const KeySize = sha256.Size
