package state

import (
	"errors"
	"fmt"

	"github.com/nicdard/grappa/cryptoutil"
)

// ErrNotFound is returned by Load/LoadPendingWelcome when no blob is
// persisted for the requested key.
var ErrNotFound = errors.New("state: no persisted state for key")

// Store persists one encrypted blob per (user, folder) plus, while an
// add commit is outstanding, a staged pending-welcome blob keyed by the
// added user and the group it is being added to (spec.md §9's
// welcome-message durability requirement).
type Store struct {
	ks *cryptoutil.EncryptedKeyStore
}

// NewStore opens (creating if needed) an encrypted store rooted at
// dataDir, keyed by masterPassword.
func NewStore(dataDir string, masterPassword []byte) (*Store, error) {
	ks, err := cryptoutil.NewEncryptedKeyStore(dataDir, masterPassword)
	if err != nil {
		return nil, err
	}
	return &Store{ks: ks}, nil
}

func sessionFilename(userID, folderID string) string {
	return fmt.Sprintf("session-%s-%s.cbor", userID, folderID)
}

func pendingWelcomeFilename(userID, folderID string) string {
	return fmt.Sprintf("pending-welcome-%s-%s.cbor", userID, folderID)
}

// Save persists the CBOR-encoded session blob for (userID, folderID),
// overwriting any previous value.
func (s *Store) Save(userID, folderID string, blob []byte) error {
	return s.ks.WriteEncrypted(sessionFilename(userID, folderID), blob)
}

// Load returns the persisted session blob for (userID, folderID).
func (s *Store) Load(userID, folderID string) ([]byte, error) {
	blob, err := s.ks.ReadEncrypted(sessionFilename(userID, folderID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return blob, nil
}

// Delete removes the persisted session blob for (userID, folderID),
// used by the REM self-removal path (spec.md §4.5 step 3).
func (s *Store) Delete(userID, folderID string) error {
	return s.ks.DeleteEncrypted(sessionFilename(userID, folderID))
}

// StagePendingWelcome durably persists a freshly minted welcome message
// before its corresponding commit is submitted and applied, so a crash
// before the application message is sent leaves a record of it
// (spec.md §9).
func (s *Store) StagePendingWelcome(userID, folderID string, welcome []byte) error {
	return s.ks.WriteEncrypted(pendingWelcomeFilename(userID, folderID), welcome)
}

// LoadPendingWelcome returns a previously staged welcome message, if any.
func (s *Store) LoadPendingWelcome(userID, folderID string) ([]byte, error) {
	blob, err := s.ks.ReadEncrypted(pendingWelcomeFilename(userID, folderID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return blob, nil
}

// ClearPendingWelcome discards a staged welcome, called once the server
// has acknowledged the application message referencing it.
func (s *Store) ClearPendingWelcome(userID, folderID string) error {
	return s.ks.DeleteEncrypted(pendingWelcomeFilename(userID, folderID))
}

// Close securely wipes the store's encryption key from memory.
func (s *Store) Close() error {
	return s.ks.Close()
}
