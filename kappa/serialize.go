package kappa

import (
	"github.com/nicdard/grappa/sskg"
	"github.com/nicdard/grappa/wire"
)

// Wire forms mirror spec.md §6's serialization contract for KaPPA state
// and exported intervals: forward chains as (start_epoch, sskg); backward
// chains as (start_epoch, sskg, length); plus max_epoch/M for a full
// State, or the covered epoch range for an Interval.

type wireForwardChain struct {
	StartEpoch uint64    `cbor:"start_epoch"`
	Gen        sskg.SSKG `cbor:"gen"`
}

type wireBackwardChain struct {
	StartEpoch uint64    `cbor:"start_epoch"`
	Gen        sskg.SSKG `cbor:"gen"`
	Length     uint64    `cbor:"length"`
}

type wireState struct {
	MaxEpoch int64               `cbor:"max_epoch"`
	M        uint64              `cbor:"m"`
	Forward  []wireForwardChain  `cbor:"forward"`
	Backward []wireBackwardChain `cbor:"backward"`
}

type wireInterval struct {
	Left     uint64              `cbor:"left"`
	Right    uint64              `cbor:"right"`
	Forward  []wireForwardChain  `cbor:"forward"`
	Backward []wireBackwardChain `cbor:"backward"`
}

func exportForward(chains []forwardChain) []wireForwardChain {
	out := make([]wireForwardChain, len(chains))
	for i, c := range chains {
		out[i] = wireForwardChain{StartEpoch: c.startEpoch, Gen: *c.gen}
	}
	return out
}

func importForward(chains []wireForwardChain) []forwardChain {
	out := make([]forwardChain, len(chains))
	for i, c := range chains {
		gen := c.Gen
		out[i] = forwardChain{startEpoch: c.StartEpoch, gen: &gen}
	}
	return out
}

func exportBackward(chains []backwardChain) []wireBackwardChain {
	out := make([]wireBackwardChain, len(chains))
	for i, c := range chains {
		out[i] = wireBackwardChain{StartEpoch: c.startEpoch, Gen: *c.gen, Length: c.length}
	}
	return out
}

func importBackward(chains []wireBackwardChain) []backwardChain {
	out := make([]backwardChain, len(chains))
	for i, c := range chains {
		gen := c.Gen
		out[i] = backwardChain{startEpoch: c.StartEpoch, gen: &gen, length: c.Length}
	}
	return out
}

// MarshalCBOR encodes the full KaPPA state.
func (s *State) MarshalCBOR() ([]byte, error) {
	w := wireState{
		MaxEpoch: s.maxEpoch,
		M:        s.m,
		Forward:  exportForward(s.forward),
		Backward: exportBackward(s.backward),
	}
	return wire.Marshal(&w)
}

// UnmarshalCBOR decodes a full KaPPA state.
func (s *State) UnmarshalCBOR(data []byte) error {
	var w wireState
	if err := wire.Unmarshal(data, &w); err != nil {
		return err
	}
	s.maxEpoch = w.MaxEpoch
	s.m = w.M
	s.forward = importForward(w.Forward)
	s.backward = importBackward(w.Backward)
	return nil
}

// MarshalCBOR encodes an exported interval.
func (iv *Interval) MarshalCBOR() ([]byte, error) {
	w := wireInterval{
		Left:     iv.Left,
		Right:    iv.Right,
		Forward:  exportForward(iv.forward),
		Backward: exportBackward(iv.backward),
	}
	return wire.Marshal(&w)
}

// UnmarshalCBOR decodes an exported interval.
func (iv *Interval) UnmarshalCBOR(data []byte) error {
	var w wireInterval
	if err := wire.Unmarshal(data, &w); err != nil {
		return err
	}
	iv.Left = w.Left
	iv.Right = w.Right
	iv.forward = importForward(w.Forward)
	iv.backward = importBackward(w.Backward)
	return nil
}
