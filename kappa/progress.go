package kappa

import (
	"fmt"

	"github.com/nicdard/grappa/cryptoutil"
	"github.com/nicdard/grappa/dualprf"
	"github.com/nicdard/grappa/sskg"
)

// chainCapacity bounds how many outputs a single chain's SSKG is prepared
// to produce: a chain never needs more than M+1 epochs' worth of outputs
// before Progress forces a new boundary (spec.md §4.3's "no chain spans
// more than M epochs" invariant).
func chainCapacity(m uint64) uint64 {
	return m + 1
}

// New creates an empty KaPPA state and immediately progresses it with a
// FullBlock, which creates the chains covering epoch 0 (spec.md §4.3
// init(M)).
func New(m uint64) (*State, error) {
	s := &State{maxEpoch: -1, m: m}
	if err := s.Progress(FullBlock); err != nil {
		return nil, err
	}
	return s, nil
}

// Progress advances the state to a new epoch, optionally severing forward
// and/or backward derivability per block (spec.md §4.3 progress(block)).
func (s *State) Progress(block BlockKind) error {
	newEpoch := s.maxEpoch + 1

	startForward := len(s.forward) == 0 ||
		block == ForwardBlock || block == FullBlock ||
		uint64(newEpoch) > s.forward[len(s.forward)-1].startEpoch+s.m

	startBackward := len(s.backward) == 0 ||
		block == BackwardBlock || block == FullBlock ||
		uint64(newEpoch) > s.backward[len(s.backward)-1].startEpoch+s.m

	if startForward {
		gen, err := sskg.Generate(fmt.Sprintf("fwd@%d", newEpoch), chainCapacity(s.m))
		if err != nil {
			return err
		}
		s.forward = append(s.forward, forwardChain{startEpoch: uint64(newEpoch), gen: gen})
	}

	if startBackward {
		if len(s.backward) > 0 {
			last := &s.backward[len(s.backward)-1]
			last.length = uint64(newEpoch) - last.startEpoch
		}
		gen, err := sskg.Generate(fmt.Sprintf("bwd@%d", newEpoch), chainCapacity(s.m))
		if err != nil {
			return err
		}
		s.backward = append(s.backward, backwardChain{startEpoch: uint64(newEpoch), gen: gen, length: chainCapacity(s.m)})
	}

	s.maxEpoch = newEpoch
	return nil
}

// GetKey derives the epoch key for e directly from the full state,
// equivalent to GetKey(e, s.GetInterval(0, s.MaxEpoch())) (spec.md §4.3).
func (s *State) GetKey(e uint64) ([]byte, error) {
	if s.maxEpoch < 0 || e > uint64(s.maxEpoch) {
		return nil, ErrEpochNotCovered
	}
	fwdRaw, err := rawKeyAtForward(s.forward, e)
	if err != nil {
		return nil, err
	}
	bwdRaw, err := rawKeyAtBackward(s.backward, e)
	if err != nil {
		return nil, err
	}
	return deriveEpochKey(fwdRaw, bwdRaw)
}

// ApplyExtension appends a contiguous extension's chains onto state
// directly, advancing MaxEpoch to ext.Right. Unlike ProcessExtension (which
// concatenates two Intervals, each owning clones), a State retains the
// original chains it was ever progressed with; this is the path an
// existing admin uses to catch up on another admin's ADD/ADD_ADM/UPD_ADM
// without re-deriving chains locally (spec.md §4.5 procCtrl step 5) — the
// chains in ext are exactly the ones the originating admin generated, so
// appending them (rather than regenerating) is required for the two
// admins to agree on epoch keys.
func (s *State) ApplyExtension(ext *Interval) error {
	if s.maxEpoch < 0 || ext.Left != uint64(s.maxEpoch)+1 {
		return ErrNonContiguousExtension
	}
	s.forward = append(s.forward, ext.forward...)
	if len(s.backward) > 0 && len(ext.backward) > 0 &&
		s.backward[len(s.backward)-1].startEpoch == ext.backward[0].startEpoch {
		s.backward = s.backward[:len(s.backward)-1]
	}
	s.backward = append(s.backward, ext.backward...)
	s.maxEpoch = int64(ext.Right)
	return nil
}

// deriveEpochKey combines the raw forward/backward PRF outputs and
// derives the final AES-GCM key via HKDF under label "KAPPA"
// (spec.md §4.3 get_key).
func deriveEpochKey(fwdRaw, bwdRaw []byte) ([]byte, error) {
	combined, err := dualprf.Combine(fwdRaw, bwdRaw)
	if err != nil {
		return nil, err
	}
	return cryptoutil.HKDFExpand(combined, "KAPPA", cryptoutil.SymmetricKeySize)
}

func rawKeyAtForward(chains []forwardChain, e uint64) ([]byte, error) {
	idx := -1
	for i, c := range chains {
		if c.startEpoch > e {
			break
		}
		idx = i
	}
	if idx < 0 {
		return nil, ErrEpochNotCovered
	}
	c := chains[idx].clone()
	if err := c.gen.Superseek(e - c.startEpoch); err != nil {
		return nil, err
	}
	return c.gen.CurrentRawKey()
}

func rawKeyAtBackward(chains []backwardChain, e uint64) ([]byte, error) {
	idx := -1
	for i, c := range chains {
		if c.startEpoch <= e && e <= c.endEpoch() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrEpochNotCovered
	}
	c := chains[idx].clone()
	pos := c.length - 1 - (e - c.startEpoch)
	if err := c.gen.Superseek(pos); err != nil {
		return nil, err
	}
	return c.gen.CurrentRawKey()
}
