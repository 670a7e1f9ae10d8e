package cryptoutil

import (
	"crypto/subtle"
	"errors"
	"runtime"
)

// SecureWipe attempts to securely erase the contents of a byte slice
// containing sensitive data. It returns an error if the slice is nil.
//
// subtle.XORBytes performs a constant-time XOR that the compiler cannot
// optimize away. XORing data with itself (x XOR x = 0) zeros the data
// while resisting dead-store elimination.
func SecureWipe(data []byte) error {
	if data == nil {
		return errors.New("cannot wipe nil data")
	}
	subtle.XORBytes(data, data, data)
	runtime.KeepAlive(data)
	return nil
}

// ZeroBytes erases a byte slice, ignoring the error from SecureWipe.
// Use this at defer sites where a nil slice is an expected no-op.
func ZeroBytes(data []byte) {
	if data == nil {
		return
	}
	_ = SecureWipe(data)
}
