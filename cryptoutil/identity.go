package cryptoutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	"github.com/sirupsen/logrus"
)

// SignatureSize is the size in bytes of an Ed25519 signature.
const SignatureSize = ed25519.SignatureSize

// IdentityKeyPair is a user's long-term Ed25519 signing identity. The CGKA
// adapter's init_client operation is idempotent creation of exactly this
// state (spec.md §4.4).
type IdentityKeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateIdentityKeyPair creates a new random Ed25519 identity.
func GenerateIdentityKeyPair() (*IdentityKeyPair, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "GenerateIdentityKeyPair",
		"package":  "cryptoutil",
	})

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		logger.WithField("error", err.Error()).Error("failed to generate identity key pair")
		return nil, err
	}
	return &IdentityKeyPair{Public: pub, Private: priv}, nil
}

// Sign produces a detached Ed25519 signature over message.
func (kp *IdentityKeyPair) Sign(message []byte) ([]byte, error) {
	if kp == nil || kp.Private == nil {
		return nil, errors.New("cryptoutil: nil identity key pair")
	}
	return ed25519.Sign(kp.Private, message), nil
}

// Verify checks a detached Ed25519 signature against a public key.
func Verify(message, signature []byte, publicKey ed25519.PublicKey) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}

// Wipe securely erases the private key material.
func (kp *IdentityKeyPair) Wipe() {
	if kp == nil {
		return
	}
	ZeroBytes(kp.Private)
}
