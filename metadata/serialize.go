package metadata

import "github.com/nicdard/grappa/wire"

type wireEnvelope struct {
	EpochByFileID        map[string]uint64            `cbor:"epoch_by_file_id"`
	FileMetadatasByEpoch map[uint64]map[string][]byte `cbor:"file_metadatas_by_epoch"`
}

// MarshalCBOR encodes the envelope for the on-disk/wire format of
// spec.md §6 ("Metadata envelope on the wire").
func (e *Envelope) MarshalCBOR() ([]byte, error) {
	w := wireEnvelope{
		EpochByFileID:        e.epochByFileID,
		FileMetadatasByEpoch: e.fileMetadatasByEpoch,
	}
	return wire.Marshal(&w)
}

// UnmarshalCBOR decodes an envelope previously produced by MarshalCBOR.
func (e *Envelope) UnmarshalCBOR(data []byte) error {
	var w wireEnvelope
	if err := wire.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.EpochByFileID == nil {
		w.EpochByFileID = make(map[string]uint64)
	}
	if w.FileMetadatasByEpoch == nil {
		w.FileMetadatasByEpoch = make(map[uint64]map[string][]byte)
	}
	e.epochByFileID = w.EpochByFileID
	e.fileMetadatasByEpoch = w.FileMetadatasByEpoch
	return nil
}
