package kappa

import "errors"

// GetInterval selects the DoubleChainsInterval covering [l, r]: the
// ordered forward and backward chains intersecting the range, with the
// first forward chain's SSKG pre-seeked to start at l and the last
// backward chain's SSKG shortened to end at r (spec.md §4.3 get_interval).
func (s *State) GetInterval(l, r uint64) (*Interval, error) {
	if s.maxEpoch < 0 || r > uint64(s.maxEpoch) || l > r {
		return nil, ErrInvalidInterval
	}

	fwd, err := sliceForward(s.forward, l, r)
	if err != nil {
		return nil, err
	}
	bwd, err := sliceBackward(s.backward, l, r)
	if err != nil {
		return nil, err
	}
	return &Interval{Left: l, Right: r, forward: fwd, backward: bwd}, nil
}

// sliceForward clones the forward chains intersecting [l, r] and
// pre-seeks the leading chain's SSKG to start exactly at l.
func sliceForward(chains []forwardChain, l, r uint64) ([]forwardChain, error) {
	var out []forwardChain
	for i, c := range chains {
		end := uint64(1<<63 - 1)
		if i+1 < len(chains) {
			end = chains[i+1].startEpoch - 1
		}
		if end < l || c.startEpoch > r {
			continue
		}
		out = append(out, c.clone())
	}
	if len(out) == 0 {
		return nil, ErrInvalidInterval
	}
	first := &out[0]
	if l > first.startEpoch {
		if err := first.gen.Superseek(l - first.startEpoch); err != nil {
			return nil, err
		}
	}
	first.startEpoch = l
	return out, nil
}

// sliceBackward clones the backward chains intersecting [l, r] and
// shortens the trailing chain's recorded length so it ends exactly at r.
func sliceBackward(chains []backwardChain, l, r uint64) ([]backwardChain, error) {
	var out []backwardChain
	for _, c := range chains {
		if c.endEpoch() < l || c.startEpoch > r {
			continue
		}
		out = append(out, c.clone())
	}
	if len(out) == 0 {
		return nil, ErrInvalidInterval
	}
	last := &out[len(out)-1]
	oldEnd := last.endEpoch()
	if oldEnd > r {
		drop := oldEnd - r
		if err := last.gen.Superseek(drop); err != nil {
			return nil, err
		}
		last.length -= drop
	}
	return out, nil
}

// CreateExtension produces an Interval identical to GetInterval([l, r])
// except the leading forward chain is dropped unless [l, r] starts
// exactly at a forward-chain boundary — in which case the recipient does
// not yet hold it and it must be sent in full (spec.md §4.3
// create_extension).
func (s *State) CreateExtension(l, r uint64) (*Interval, error) {
	iv, err := s.GetInterval(l, r)
	if err != nil {
		return nil, err
	}
	if !s.isForwardChainBoundary(l) && len(iv.forward) > 0 {
		iv.forward = iv.forward[1:]
	}
	return iv, nil
}

func (s *State) isForwardChainBoundary(epoch uint64) bool {
	for _, c := range s.forward {
		if c.startEpoch == epoch {
			return true
		}
	}
	return false
}

// ErrNonContiguousExtension is returned by ProcessExtension when the
// extension does not begin exactly where the interval ends.
var ErrNonContiguousExtension = errors.New("kappa: extension is not contiguous with interval")

// ProcessExtension concatenates interval with a contiguous extension,
// per spec.md §4.3 process_extension: the extension's Left must equal
// interval.Right+1. On the backward side, if the tail of interval and
// the head of extension share a start epoch, the (shortened) tail is
// dropped in favor of the extension's longer copy of the same chain.
func ProcessExtension(interval, extension *Interval) (*Interval, error) {
	if extension.Left != interval.Right+1 {
		return nil, ErrNonContiguousExtension
	}

	forward := append(append([]forwardChain{}, interval.forward...), extension.forward...)

	backward := append([]backwardChain{}, interval.backward...)
	extBackward := extension.backward
	if len(backward) > 0 && len(extBackward) > 0 &&
		backward[len(backward)-1].startEpoch == extBackward[0].startEpoch {
		backward = backward[:len(backward)-1]
	}
	backward = append(backward, extBackward...)

	return &Interval{
		Left:     interval.Left,
		Right:    extension.Right,
		forward:  forward,
		backward: backward,
	}, nil
}

// GetKey derives the epoch key for e from this interval, failing if e is
// outside [Left, Right] (spec.md §4.3 get_key static form).
func (iv *Interval) GetKey(e uint64) ([]byte, error) {
	if e < iv.Left || e > iv.Right {
		return nil, ErrEpochNotCovered
	}
	fwdRaw, err := rawKeyAtForward(iv.forward, e)
	if err != nil {
		return nil, err
	}
	bwdRaw, err := rawKeyAtBackward(iv.backward, e)
	if err != nil {
		return nil, err
	}
	return deriveEpochKey(fwdRaw, bwdRaw)
}
