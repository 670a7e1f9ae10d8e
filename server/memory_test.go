package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendProposalRejectsUnauthorizedCaller(t *testing.T) {
	m := NewMemoryMiddleware()
	_, err := m.SendProposal("eve", "folder-1", &Proposal{Command: CommandUpdUser})
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestShareProposalExtendsACL(t *testing.T) {
	m := NewMemoryMiddleware()
	m.Bootstrap("alice", "folder-1")

	ids, err := m.ShareProposal("alice", "folder-1", &Proposal{Command: CommandAdd, NewMemberUID: "bob"})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	err = m.SendApplicationMessage("bob", "folder-1", &ApplicationMessage{Command: CommandAdd, MessageIDs: ids})
	require.NoError(t, err)
}

func TestSendProposalConflictWhenCallerHasPendingIncoming(t *testing.T) {
	m := NewMemoryMiddleware()
	m.Bootstrap("alice", "folder-1")
	m.Bootstrap("bob", "folder-1")

	_, err := m.SendProposal("alice", "folder-1", &Proposal{Command: CommandUpdAdmin})
	require.NoError(t, err)

	_, err = m.SendProposal("bob", "folder-1", &Proposal{Command: CommandUpdAdmin})
	require.ErrorIs(t, err, ErrConflict)
}

func TestFetchAndAckProposal(t *testing.T) {
	m := NewMemoryMiddleware()
	m.Bootstrap("alice", "folder-1")
	m.Bootstrap("bob", "folder-1")

	ids, err := m.SendProposal("alice", "folder-1", &Proposal{Command: CommandRotKeys})
	require.NoError(t, err)

	p, appMsg, err := m.FetchPendingProposal("bob", "folder-1")
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Nil(t, appMsg)
	require.Equal(t, CommandRotKeys, p.Command)

	require.NoError(t, m.AckProposal("bob", "folder-1", p))

	p2, _, err := m.FetchPendingProposal("bob", "folder-1")
	require.NoError(t, err)
	require.Nil(t, p2)

	_ = ids
}

func TestSendApplicationMessageRejectsUnknownIDs(t *testing.T) {
	m := NewMemoryMiddleware()
	m.Bootstrap("alice", "folder-1")

	err := m.SendApplicationMessage("alice", "folder-1", &ApplicationMessage{MessageIDs: []string{"bogus"}})
	require.ErrorIs(t, err, ErrUnknownMessageIDs)
}

func TestFetchKeyPackageConsumesOnce(t *testing.T) {
	m := NewMemoryMiddleware()
	m.Bootstrap("alice", "folder-1")

	require.NoError(t, m.SendKeyPackage("bob", []byte("kp-1")))

	got, err := m.FetchKeyPackageForUidWithFolder("alice", "bob", "folder-1")
	require.NoError(t, err)
	require.Equal(t, []byte("kp-1"), got)

	_, err = m.FetchKeyPackageForUidWithFolder("alice", "bob", "folder-1")
	require.ErrorIs(t, err, ErrNoKeyPackage)
}

func TestSendRemoveSelfPurgesQueues(t *testing.T) {
	m := NewMemoryMiddleware()
	m.Bootstrap("alice", "folder-1")
	m.Bootstrap("bob", "folder-1")

	_, err := m.SendProposal("alice", "folder-1", &Proposal{Command: CommandRemove, RemovedMemberUID: "bob"})
	require.NoError(t, err)

	require.NoError(t, m.SendRemoveSelf("bob", "folder-1"))

	_, err = m.SendProposal("bob", "folder-1", &Proposal{Command: CommandUpdUser})
	require.ErrorIs(t, err, ErrNotAuthorized)
}
