// Package cryptoutil implements the ambient cryptographic primitives shared
// by every GRaPPA package: AEAD encryption, HKDF-based PRFs, Ed25519
// signatures, and secure memory wiping.
//
// It does not implement the GRaPPA protocol itself — the seekable key
// generator lives in [github.com/nicdard/grappa/sskg], the dual-PRF
// combiner in [github.com/nicdard/grappa/dualprf], and the key-progression
// engine in [github.com/nicdard/grappa/kappa]. This package only supplies
// the low-level building blocks those packages and [github.com/nicdard/grappa/metadata]
// compose.
//
// # AEAD
//
// All symmetric encryption in GRaPPA uses AES-256-GCM with random 96-bit
// nonces. Seal draws the nonce itself and prepends it to the ciphertext,
// so Open needs only the key and associated data:
//
//	key, _ := cryptoutil.GenerateSymmetricKey()
//	ciphertext, _ := cryptoutil.Seal(plaintext, key, associatedData)
//	plaintext, _ := cryptoutil.Open(ciphertext, key, associatedData)
//
// # HKDF
//
// [HKDFExpand] derives fixed-size output key material from input keying
// material under a label, using an empty salt — the construction used
// throughout sskg, dualprf and kappa.
//
// # Secure memory
//
// [SecureWipe] and [ZeroBytes] erase sensitive byte slices using a
// constant-time XOR the compiler cannot optimize away. Within this
// module they are applied to the key store's derived keys and passwords
// and to identity private keys; SSKG node secrets, epoch keys and
// per-file keys are not wiped.
package cryptoutil
