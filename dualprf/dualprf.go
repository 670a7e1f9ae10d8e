// Package dualprf implements the dual-PRF combiner of spec.md §4.2: given
// two raw key octet strings, it produces a fresh HKDF input keying
// material such that either input alone is a PRF key for the other — the
// standard "dual-PRF" property of HMAC.
//
// KaPPA combines a forward chain's raw output with a backward chain's raw
// output through this package to derive each epoch's key; the ordering
// (forward first, treated as the HMAC key) is part of the wire contract
// and must not be swapped by an interoperating implementation.
package dualprf

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"

	"github.com/nicdard/grappa/cryptoutil"
)

// label is the HKDF label used to wrap the HMAC output into a fresh input
// keying material, per spec.md §4.2.
const label = "HMAC-doublePRF"

// Combine derives fresh HKDF input keying material from two raw key octet
// strings. k1 is treated as the HMAC-SHA-256 key and k2 as the message;
// the 32-byte MAC is then wrapped as HKDF-IKM under the fixed label with
// an empty salt.
func Combine(k1, k2 []byte) ([]byte, error) {
	if len(k1) == 0 || len(k2) == 0 {
		return nil, errors.New("dualprf: both inputs must be non-empty")
	}

	mac := hmac.New(sha256.New, k1)
	if _, err := mac.Write(k2); err != nil {
		return nil, err
	}
	macOut := mac.Sum(nil)

	return cryptoutil.HKDFExpand(macOut, label, cryptoutil.KeySize)
}
