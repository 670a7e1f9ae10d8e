package cryptoutil

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Iterations is the number of iterations used to derive a
// persisted-state encryption key from a user's master passphrase.
const PBKDF2Iterations = 100000

// SaltSize is the size in bytes of the PBKDF2 salt.
const SaltSize = 32

// EncryptedKeyStore wraps file storage with AES-256-GCM encryption at
// rest, so a user's persisted GRaPPA session state (CGKA identifiers,
// KaPPA chains, DoubleChainsInterval) is never written to disk in the
// clear.
type EncryptedKeyStore struct {
	encryptionKey [SymmetricKeySize]byte
	dataDir       string
	saltFile      string
}

// NewEncryptedKeyStore derives an encryption key from masterPassword via
// PBKDF2 and a per-directory salt, creating dataDir if needed.
func NewEncryptedKeyStore(dataDir string, masterPassword []byte) (*EncryptedKeyStore, error) {
	if len(masterPassword) == 0 {
		return nil, fmt.Errorf("cryptoutil: master password cannot be empty")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("cryptoutil: creating data directory: %w", err)
	}

	ks := &EncryptedKeyStore{
		dataDir:  dataDir,
		saltFile: filepath.Join(dataDir, ".salt"),
	}

	salt, err := ks.loadOrGenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: initializing salt: %w", err)
	}

	derivedKey := pbkdf2.Key(masterPassword, salt, PBKDF2Iterations, SymmetricKeySize, sha256.New)
	copy(ks.encryptionKey[:], derivedKey)
	ZeroBytes(derivedKey)
	ZeroBytes(masterPassword)

	return ks, nil
}

func (ks *EncryptedKeyStore) loadOrGenerateSalt() ([]byte, error) {
	data, err := os.ReadFile(ks.saltFile)
	if err == nil {
		if len(data) != SaltSize {
			return nil, fmt.Errorf("cryptoutil: invalid salt file size: got %d, want %d", len(data), SaltSize)
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("cryptoutil: reading salt file: %w", err)
	}

	salt := make([]byte, SaltSize)
	if _, genErr := rand.Read(salt); genErr != nil {
		return nil, fmt.Errorf("cryptoutil: generating salt: %w", genErr)
	}
	if err := os.WriteFile(ks.saltFile, salt, 0o600); err != nil {
		return nil, fmt.Errorf("cryptoutil: saving salt: %w", err)
	}
	return salt, nil
}

// WriteEncrypted encrypts plaintext under the store's key and atomically
// writes it to filename inside dataDir.
func (ks *EncryptedKeyStore) WriteEncrypted(filename string, plaintext []byte) error {
	sealed, err := Seal(plaintext, ks.encryptionKey[:], nil)
	if err != nil {
		return fmt.Errorf("cryptoutil: encrypting %s: %w", filename, err)
	}

	tmpFile := filepath.Join(ks.dataDir, filename+".tmp")
	finalFile := filepath.Join(ks.dataDir, filename)

	if err := os.WriteFile(tmpFile, sealed, 0o600); err != nil {
		return fmt.Errorf("cryptoutil: writing temporary file: %w", err)
	}
	if err := os.Rename(tmpFile, finalFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("cryptoutil: renaming temporary file: %w", err)
	}
	return nil
}

// ReadEncrypted reads and decrypts filename from dataDir.
func (ks *EncryptedKeyStore) ReadEncrypted(filename string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(ks.dataDir, filename))
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: reading %s: %w", filename, err)
	}
	plaintext, err := Open(data, ks.encryptionKey[:], nil)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: decrypting %s (wrong password or corrupted data): %w", filename, err)
	}
	return plaintext, nil
}

// DeleteEncrypted best-effort overwrites then removes filename.
func (ks *EncryptedKeyStore) DeleteEncrypted(filename string) error {
	filePath := filepath.Join(ks.dataDir, filename)
	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cryptoutil: stat %s: %w", filename, err)
	}

	zeros := make([]byte, info.Size())
	if err := os.WriteFile(filePath, zeros, 0o600); err != nil {
		return os.Remove(filePath)
	}
	return os.Remove(filePath)
}

// Close securely wipes the store's encryption key from memory. The store
// must not be used after Close returns.
func (ks *EncryptedKeyStore) Close() error {
	ZeroBytes(ks.encryptionKey[:])
	return nil
}

// RotateKey re-derives the store's encryption key from newMasterPassword
// and re-encrypts every file currently under management.
func (ks *EncryptedKeyStore) RotateKey(newMasterPassword []byte) error {
	if len(newMasterPassword) == 0 {
		return fmt.Errorf("cryptoutil: new master password cannot be empty")
	}

	files, err := filepath.Glob(filepath.Join(ks.dataDir, "*"))
	if err != nil {
		return fmt.Errorf("cryptoutil: listing files: %w", err)
	}

	fileData := make(map[string][]byte)
	for _, file := range files {
		if file == ks.saltFile || filepath.Ext(file) == ".tmp" {
			continue
		}
		filename := filepath.Base(file)
		plaintext, err := ks.ReadEncrypted(filename)
		if err != nil {
			return fmt.Errorf("cryptoutil: decrypting %s during rotation: %w", filename, err)
		}
		fileData[filename] = plaintext
	}

	newSalt := make([]byte, SaltSize)
	if _, err := rand.Read(newSalt); err != nil {
		return fmt.Errorf("cryptoutil: generating new salt: %w", err)
	}

	newKey := pbkdf2.Key(newMasterPassword, newSalt, PBKDF2Iterations, SymmetricKeySize, sha256.New)
	oldKey := ks.encryptionKey
	copy(ks.encryptionKey[:], newKey)
	ZeroBytes(newKey)

	for filename, plaintext := range fileData {
		if err := ks.WriteEncrypted(filename, plaintext); err != nil {
			ks.encryptionKey = oldKey
			return fmt.Errorf("cryptoutil: re-encrypting %s: %w", filename, err)
		}
		ZeroBytes(plaintext)
	}

	if err := os.WriteFile(ks.saltFile, newSalt, 0o600); err != nil {
		ks.encryptionKey = oldKey
		return fmt.Errorf("cryptoutil: saving new salt: %w", err)
	}

	ZeroBytes(oldKey[:])
	ZeroBytes(newMasterPassword)
	return nil
}
