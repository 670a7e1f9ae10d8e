package kappa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func progressN(t *testing.T, s *State, blocks ...BlockKind) {
	t.Helper()
	for _, b := range blocks {
		require.NoError(t, s.Progress(b))
	}
}

func TestInitCoversEpochZero(t *testing.T) {
	s, err := New(4)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.MaxEpoch())
	_, err = s.GetKey(0)
	require.NoError(t, err)
}

func TestGetKeyMatchesExtractedInterval(t *testing.T) {
	s, err := New(3)
	require.NoError(t, err)
	progressN(t, s, Empty, ForwardBlock, Empty, BackwardBlock, Empty, Empty, FullBlock, Empty)

	full, err := s.GetInterval(0, uint64(s.MaxEpoch()))
	require.NoError(t, err)

	for e := uint64(0); e <= uint64(s.MaxEpoch()); e++ {
		direct, err := s.GetKey(e)
		require.NoError(t, err)
		viaInterval, err := full.GetKey(e)
		require.NoError(t, err)
		assert.Equal(t, direct, viaInterval, "epoch %d", e)
	}
}

func TestProcessExtensionMatchesDirectInterval(t *testing.T) {
	s, err := New(4)
	require.NoError(t, err)
	progressN(t, s, Empty, Empty, ForwardBlock, Empty, Empty, BackwardBlock, Empty)

	mid := uint64(3)
	head, err := s.GetInterval(0, mid)
	require.NoError(t, err)
	tail, err := s.GetInterval(mid+1, uint64(s.MaxEpoch()))
	require.NoError(t, err)

	combined, err := ProcessExtension(head, tail)
	require.NoError(t, err)

	direct, err := s.GetInterval(0, uint64(s.MaxEpoch()))
	require.NoError(t, err)

	for e := uint64(0); e <= uint64(s.MaxEpoch()); e++ {
		a, err := combined.GetKey(e)
		require.NoError(t, err)
		b, err := direct.GetKey(e)
		require.NoError(t, err)
		assert.Equal(t, b, a, "epoch %d", e)
	}
}

func TestForwardBlockSeparatesChainFamilies(t *testing.T) {
	s, err := New(10)
	require.NoError(t, err)
	progressN(t, s, Empty, Empty)
	blockEpoch := uint64(s.MaxEpoch() + 1)
	require.NoError(t, s.Progress(ForwardBlock))

	assert.Equal(t, blockEpoch, s.forward[len(s.forward)-1].startEpoch)
	assert.NotEqual(t, s.forward[len(s.forward)-2].startEpoch, s.forward[len(s.forward)-1].startEpoch)
}

func TestBackwardBlockSeparatesChainFamilies(t *testing.T) {
	s, err := New(10)
	require.NoError(t, err)
	progressN(t, s, Empty, Empty)
	require.NoError(t, s.Progress(BackwardBlock))

	last := s.backward[len(s.backward)-1]
	prev := s.backward[len(s.backward)-2]
	assert.NotEqual(t, prev.gen, last.gen)
	assert.Equal(t, uint64(last.startEpoch-prev.startEpoch), prev.length)
}

func TestChainsWrapAtMWithoutBlocks(t *testing.T) {
	const m = 3
	s, err := New(m)
	require.NoError(t, err)

	firstForwardStart := s.forward[0].startEpoch
	for i := 0; i < m; i++ {
		require.NoError(t, s.Progress(Empty))
	}
	// After m further progressions (epochs 1..m), still same chain: the
	// chain started at 0 covers epochs [0, m].
	require.Len(t, s.forward, 1)
	assert.Equal(t, firstForwardStart, s.forward[0].startEpoch)

	// One more progression exceeds the span and forces a new chain.
	require.NoError(t, s.Progress(Empty))
	require.Len(t, s.forward, 2)
}

func TestGetIntervalRejectsInvalidRanges(t *testing.T) {
	s, err := New(5)
	require.NoError(t, err)
	progressN(t, s, Empty, Empty, Empty)

	_, err = s.GetInterval(2, 1)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = s.GetInterval(0, uint64(s.MaxEpoch())+10)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestGetIntervalSingleEpoch(t *testing.T) {
	s, err := New(5)
	require.NoError(t, err)
	progressN(t, s, Empty, Empty, Empty)

	iv, err := s.GetInterval(2, 2)
	require.NoError(t, err)
	_, err = iv.GetKey(2)
	require.NoError(t, err)
	_, err = iv.GetKey(1)
	assert.Error(t, err)
	_, err = iv.GetKey(3)
	assert.Error(t, err)
}

func TestGetIntervalFullRange(t *testing.T) {
	s, err := New(5)
	require.NoError(t, err)
	progressN(t, s, Empty, ForwardBlock, BackwardBlock)

	iv, err := s.GetInterval(0, uint64(s.MaxEpoch()))
	require.NoError(t, err)
	for e := uint64(0); e <= uint64(s.MaxEpoch()); e++ {
		_, err := iv.GetKey(e)
		require.NoError(t, err)
	}
}

func TestStateSerializationRoundTrip(t *testing.T) {
	s, err := New(4)
	require.NoError(t, err)
	progressN(t, s, Empty, ForwardBlock, BackwardBlock, Empty)

	data, err := s.MarshalCBOR()
	require.NoError(t, err)

	var restored State
	require.NoError(t, restored.UnmarshalCBOR(data))

	for e := uint64(0); e <= uint64(s.MaxEpoch()); e++ {
		a, err := s.GetKey(e)
		require.NoError(t, err)
		b, err := restored.GetKey(e)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestIntervalSerializationRoundTrip(t *testing.T) {
	s, err := New(4)
	require.NoError(t, err)
	progressN(t, s, Empty, ForwardBlock, BackwardBlock, Empty)

	iv, err := s.GetInterval(1, uint64(s.MaxEpoch()))
	require.NoError(t, err)

	data, err := iv.MarshalCBOR()
	require.NoError(t, err)

	var restored Interval
	require.NoError(t, restored.UnmarshalCBOR(data))

	for e := iv.Left; e <= iv.Right; e++ {
		a, err := iv.GetKey(e)
		require.NoError(t, err)
		b, err := restored.GetKey(e)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestCreateExtensionDropsLeadingChainWhenMidChain(t *testing.T) {
	s, err := New(10)
	require.NoError(t, err)
	progressN(t, s, Empty, Empty, Empty, Empty)

	ext, err := s.CreateExtension(2, uint64(s.MaxEpoch()))
	require.NoError(t, err)
	full, err := s.GetInterval(2, uint64(s.MaxEpoch()))
	require.NoError(t, err)

	assert.Len(t, ext.forward, len(full.forward)-1)
}

func TestCreateExtensionKeepsLeadingChainAtBoundary(t *testing.T) {
	s, err := New(10)
	require.NoError(t, err)
	progressN(t, s, Empty, Empty)
	boundaryEpoch := uint64(s.MaxEpoch() + 1)
	require.NoError(t, s.Progress(ForwardBlock))
	progressN(t, s, Empty, Empty)

	ext, err := s.CreateExtension(boundaryEpoch, uint64(s.MaxEpoch()))
	require.NoError(t, err)
	require.NotEmpty(t, ext.forward)
	assert.Equal(t, boundaryEpoch, ext.forward[0].startEpoch)
}

func TestApplyExtensionMatchesIndependentGetInterval(t *testing.T) {
	source, err := New(5)
	require.NoError(t, err)
	progressN(t, source, Empty, Empty, Empty)

	blob, err := source.MarshalCBOR()
	require.NoError(t, err)
	var mirror State
	require.NoError(t, mirror.UnmarshalCBOR(blob))

	require.NoError(t, source.Progress(Empty))
	ext, err := source.CreateExtension(uint64(source.MaxEpoch()), uint64(source.MaxEpoch()))
	require.NoError(t, err)

	require.NoError(t, mirror.ApplyExtension(ext))
	assert.Equal(t, source.MaxEpoch(), mirror.MaxEpoch())

	direct, err := source.GetKey(uint64(source.MaxEpoch()))
	require.NoError(t, err)
	viaExtension, err := mirror.GetKey(uint64(mirror.MaxEpoch()))
	require.NoError(t, err)
	assert.Equal(t, direct, viaExtension)
}

func TestApplyExtensionRejectsNonContiguous(t *testing.T) {
	s, err := New(5)
	require.NoError(t, err)
	progressN(t, s, Empty, Empty)

	ext, err := s.CreateExtension(uint64(s.MaxEpoch()), uint64(s.MaxEpoch()))
	require.NoError(t, err)
	require.ErrorIs(t, s.ApplyExtension(ext), ErrNonContiguousExtension)
}
