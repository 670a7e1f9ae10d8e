// Package metadata implements the file-metadata envelope and per-file
// crypto of spec.md §4.6: an epoch-indexed map from file id to an AEAD
// ciphertext wrapping the file's ephemeral key and name, plus the file
// body encryption that key wraps.
package metadata
