package dualprf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineIsDeterministic(t *testing.T) {
	a, err := Combine([]byte("forward-key"), []byte("backward-key"))
	require.NoError(t, err)
	b, err := Combine([]byte("forward-key"), []byte("backward-key"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCombineOrderMatters(t *testing.T) {
	a, err := Combine([]byte("forward-key"), []byte("backward-key"))
	require.NoError(t, err)
	b, err := Combine([]byte("backward-key"), []byte("forward-key"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCombineSensitiveToEitherInput(t *testing.T) {
	base, err := Combine([]byte("forward-key"), []byte("backward-key"))
	require.NoError(t, err)

	diffFwd, err := Combine([]byte("forward-key-2"), []byte("backward-key"))
	require.NoError(t, err)
	assert.NotEqual(t, base, diffFwd)

	diffBwd, err := Combine([]byte("forward-key"), []byte("backward-key-2"))
	require.NoError(t, err)
	assert.NotEqual(t, base, diffBwd)
}

func TestCombineRejectsEmptyInputs(t *testing.T) {
	_, err := Combine(nil, []byte("x"))
	assert.Error(t, err)
	_, err = Combine([]byte("x"), nil)
	assert.Error(t, err)
}
