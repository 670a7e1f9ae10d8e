package metadata

import (
	"errors"
	"fmt"

	"github.com/nicdard/grappa/cryptoutil"
	"github.com/nicdard/grappa/wire"
)

// ErrFileNotFound is returned when a file id has no entry in the
// envelope.
var ErrFileNotFound = errors.New("metadata: file id not found")

// EpochKeyFunc resolves an epoch to its symmetric key, typically backed
// by kappa.State.GetKey or kappa.Interval.GetKey. ReadFile and ListFiles
// take this as a parameter rather than a concrete kappa type so metadata
// has no dependency on kappa's KaPPA implementation.
type EpochKeyFunc func(epoch uint64) ([]byte, error)

// Envelope is the metadata envelope of spec.md §3: for every file id
// present, fileMetadatasByEpoch[epochByFileId[id]][id] exists.
type Envelope struct {
	epochByFileID        map[string]uint64
	fileMetadatasByEpoch map[uint64]map[string][]byte
}

// perFileMetadata is the plaintext wrapped by the epoch-key AEAD
// (spec.md §3): the file's ephemeral key and its display name.
type perFileMetadata struct {
	Key  []byte `cbor:"key"`
	Name string `cbor:"name"`
}

// CreateNewFolderMetadata returns an empty metadata envelope for a
// newly-created folder (spec.md §4.6).
func CreateNewFolderMetadata() *Envelope {
	return &Envelope{
		epochByFileID:        make(map[string]uint64),
		fileMetadatasByEpoch: make(map[uint64]map[string][]byte),
	}
}

// AddFile encrypts fileBytes under a fresh per-file key, wraps that key
// and fileName under epochKey (AD = fileID), and inserts the result into
// the envelope at epoch (spec.md §4.6 addFile). Returns the updated
// envelope and the file body ciphertext.
func AddFile(epoch uint64, epochKey, fileBytes []byte, fileID, fileName string, env *Envelope) (*Envelope, []byte, error) {
	fileKey, err := cryptoutil.GenerateSymmetricKey()
	if err != nil {
		return nil, nil, err
	}
	fileCtxt, err := cryptoutil.Seal(fileBytes, fileKey, nil)
	if err != nil {
		return nil, nil, err
	}

	plaintext, err := wire.Marshal(&perFileMetadata{Key: fileKey, Name: fileName})
	if err != nil {
		return nil, nil, err
	}
	wrapped, err := cryptoutil.Seal(plaintext, epochKey, []byte(fileID))
	if err != nil {
		return nil, nil, err
	}

	if env.fileMetadatasByEpoch[epoch] == nil {
		env.fileMetadatasByEpoch[epoch] = make(map[string][]byte)
	}
	env.fileMetadatasByEpoch[epoch][fileID] = wrapped
	env.epochByFileID[fileID] = epoch

	return env, fileCtxt, nil
}

// EpochForFile returns the epoch a file id was added under.
func (e *Envelope) EpochForFile(fileID string) (uint64, bool) {
	epoch, ok := e.epochByFileID[fileID]
	return epoch, ok
}

// ReadFile recovers a file's plaintext body: it decrypts the per-file
// metadata with epochKey (AD = fileID) to recover the per-file key, then
// decrypts encFile under that key (spec.md §4.6 readFile).
func ReadFile(fileID string, encFile []byte, env *Envelope, epochKey []byte) ([]byte, error) {
	epoch, ok := env.epochByFileID[fileID]
	if !ok {
		return nil, ErrFileNotFound
	}
	wrapped, ok := env.fileMetadatasByEpoch[epoch][fileID]
	if !ok {
		return nil, ErrFileNotFound
	}

	plaintext, err := cryptoutil.Open(wrapped, epochKey, []byte(fileID))
	if err != nil {
		return nil, fmt.Errorf("metadata: decrypting file metadata for %q: %w", fileID, err)
	}
	var meta perFileMetadata
	if err := wire.Unmarshal(plaintext, &meta); err != nil {
		return nil, err
	}

	return cryptoutil.Open(encFile, meta.Key, nil)
}

// FileEntry is one result row of ListFiles.
type FileEntry struct {
	Name string
	OK   bool
}

// ListFiles recovers every file's name reachable under keyFn. A file
// whose epoch the caller's keyFn cannot resolve is reported with OK=false
// rather than failing the whole listing (spec.md §4.6 edge case).
func ListFiles(env *Envelope, keyFn EpochKeyFunc) map[string]FileEntry {
	out := make(map[string]FileEntry, len(env.epochByFileID))
	for fileID, epoch := range env.epochByFileID {
		wrapped := env.fileMetadatasByEpoch[epoch][fileID]
		epochKey, err := keyFn(epoch)
		if err != nil {
			out[fileID] = FileEntry{OK: false}
			continue
		}
		plaintext, err := cryptoutil.Open(wrapped, epochKey, []byte(fileID))
		if err != nil {
			out[fileID] = FileEntry{OK: false}
			continue
		}
		var meta perFileMetadata
		if err := wire.Unmarshal(plaintext, &meta); err != nil {
			out[fileID] = FileEntry{OK: false}
			continue
		}
		out[fileID] = FileEntry{Name: meta.Name, OK: true}
	}
	return out
}
