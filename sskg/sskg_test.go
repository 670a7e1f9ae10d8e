package sskg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGenerate(t *testing.T, n uint64) *SSKG {
	t.Helper()
	s, err := Generate("test", n)
	require.NoError(t, err)
	return s
}

func currentKey(t *testing.T, s *SSKG) []byte {
	t.Helper()
	k, err := s.CurrentRawKey()
	require.NoError(t, err)
	return k
}

func TestNextMatchesSeek(t *testing.T) {
	const n = 64
	for k := uint64(0); k < n; k++ {
		base := mustGenerate(t, n)
		viaNext := base.Clone()
		for i := uint64(0); i < k; i++ {
			require.NoError(t, viaNext.Next())
		}

		viaSeek := base.Clone()
		require.NoError(t, viaSeek.Seek(k))

		assert.Equal(t, currentKey(t, viaNext), currentKey(t, viaSeek), "k=%d", k)
	}
}

func TestSuperseekDecompositionMatchesSeek(t *testing.T) {
	const n = 100
	decompositions := [][]uint64{
		{10},
		{3, 7},
		{1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		{5, 0, 5},
		{50},
	}

	for _, parts := range decompositions {
		var total uint64
		for _, p := range parts {
			total += p
		}

		direct := mustGenerate(t, n)
		require.NoError(t, direct.Seek(total))

		viaSuperseek := mustGenerate(t, n)
		for _, p := range parts {
			require.NoError(t, viaSuperseek.Superseek(p))
		}

		assert.Equal(t, currentKey(t, direct), currentKey(t, viaSuperseek), "parts=%v", parts)
	}
}

func TestSuperseekAfterNext(t *testing.T) {
	const n = 50
	s := mustGenerate(t, n)
	require.NoError(t, s.Next())
	require.NoError(t, s.Next())
	require.NoError(t, s.Next())
	require.NoError(t, s.Superseek(4))

	direct := mustGenerate(t, n)
	require.NoError(t, direct.Seek(7))

	assert.Equal(t, currentKey(t, direct), currentKey(t, s))
}

func TestSeekRejectsAlreadyAdvancedGenerator(t *testing.T) {
	s := mustGenerate(t, 10)
	require.NoError(t, s.Next())
	err := s.Seek(2)
	assert.ErrorIs(t, err, ErrAlreadyAdvanced)
}

func TestCloneIsDeepAndIndependent(t *testing.T) {
	s := mustGenerate(t, 20)
	before := currentKey(t, s)
	clone := s.Clone()

	require.NoError(t, clone.Next())
	require.NoError(t, clone.Next())

	// The parent must still be at its original position.
	assert.Equal(t, before, currentKey(t, s))
}

func TestExhaustedAfterFinalOutput(t *testing.T) {
	s := mustGenerate(t, 1)
	assert.False(t, s.Exhausted())
	require.NoError(t, s.Next())
	assert.True(t, s.Exhausted())
	_, err := s.CurrentRawKey()
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestSerializationRoundTrip(t *testing.T) {
	s := mustGenerate(t, 33)
	require.NoError(t, s.Next())
	require.NoError(t, s.Next())

	data, err := s.MarshalCBOR()
	require.NoError(t, err)

	var restored SSKG
	require.NoError(t, restored.UnmarshalCBOR(data))

	assert.Equal(t, currentKey(t, s), currentKey(t, &restored))
	assert.Equal(t, s.MaxLen(), restored.MaxLen())
}

func TestDeterministicFromSeed(t *testing.T) {
	seed := []byte("0123456789abcdef0123456789abcdef")
	a, err := FromSeed("chain", 16, seed)
	require.NoError(t, err)
	b, err := FromSeed("chain", 16, seed)
	require.NoError(t, err)

	assert.Equal(t, currentKey(t, a), currentKey(t, b))
}
