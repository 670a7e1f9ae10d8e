package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"

	"github.com/sirupsen/logrus"
)

// NonceSize is the length in bytes of the random GCM nonce used for every
// AEAD operation in GRaPPA (96 bits, per spec.md §4.6).
const NonceSize = 12

// SymmetricKeySize is the length in bytes of an AES-256-GCM key.
const SymmetricKeySize = 32

// Nonce is a 96-bit value used once per AEAD encryption.
type Nonce [NonceSize]byte

// GenerateNonce returns a cryptographically random nonce.
func GenerateNonce() (Nonce, error) {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return Nonce{}, err
	}
	return n, nil
}

// GenerateSymmetricKey returns a random AES-256-GCM key.
func GenerateSymmetricKey() ([]byte, error) {
	key := make([]byte, SymmetricKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts plaintext under key with associatedData bound as AEAD
// additional data, using AES-256-GCM. The nonce is prepended to the
// returned ciphertext so Open is self-contained.
func Seal(plaintext []byte, key []byte, associatedData []byte) ([]byte, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function":  "Seal",
		"package":   "cryptoutil",
		"pt_size":   len(plaintext),
		"operation": "aes_gcm_seal",
	})

	if len(key) != SymmetricKeySize {
		logger.WithField("error_type", "invalid_key_size").Error("Seal: wrong key size")
		return nil, errors.New("cryptoutil: key must be 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := gcm.Seal(nil, nonce, plaintext, associatedData)
	sealed := make([]byte, 0, len(nonce)+len(out))
	sealed = append(sealed, nonce...)
	sealed = append(sealed, out...)

	logger.WithField("ct_size", len(sealed)).Debug("Seal: encryption succeeded")
	return sealed, nil
}

// Open decrypts a blob produced by Seal. associatedData must match the
// value supplied at encryption time or authentication fails.
func Open(sealed []byte, key []byte, associatedData []byte) ([]byte, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function":  "Open",
		"package":   "cryptoutil",
		"operation": "aes_gcm_open",
	})

	if len(key) != SymmetricKeySize {
		return nil, errors.New("cryptoutil: key must be 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("cryptoutil: ciphertext too short")
	}
	nonce, ct := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	pt, err := gcm.Open(nil, nonce, ct, associatedData)
	if err != nil {
		logger.WithField("error_type", "auth_failed").Debug("Open: authentication failed")
		return nil, errors.New("cryptoutil: decryption failed")
	}
	return pt, nil
}
