package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), []byte("correct horse battery staple"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("alice", "folder-1", []byte("blob-v1")))

	got, err := s.Load("alice", "folder-1")
	require.NoError(t, err)
	require.Equal(t, []byte("blob-v1"), got)
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load("ghost", "folder-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRemovesBlob(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("alice", "folder-1", []byte("blob")))
	require.NoError(t, s.Delete("alice", "folder-1"))

	_, err := s.Load("alice", "folder-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPendingWelcomeStagingAndClear(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.StagePendingWelcome("bob", "folder-1", []byte("welcome-bytes")))

	got, err := s.LoadPendingWelcome("bob", "folder-1")
	require.NoError(t, err)
	require.Equal(t, []byte("welcome-bytes"), got)

	require.NoError(t, s.ClearPendingWelcome("bob", "folder-1"))
	_, err = s.LoadPendingWelcome("bob", "folder-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSessionsAreIsolatedPerUserAndFolder(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("alice", "folder-1", []byte("alice-f1")))
	require.NoError(t, s.Save("alice", "folder-2", []byte("alice-f2")))
	require.NoError(t, s.Save("bob", "folder-1", []byte("bob-f1")))

	got, err := s.Load("alice", "folder-1")
	require.NoError(t, err)
	require.Equal(t, []byte("alice-f1"), got)

	got, err = s.Load("alice", "folder-2")
	require.NoError(t, err)
	require.Equal(t, []byte("alice-f2"), got)

	got, err = s.Load("bob", "folder-1")
	require.NoError(t, err)
	require.Equal(t, []byte("bob-f1"), got)
}
