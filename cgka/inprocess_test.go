package cgka

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newGroupWithCreator(t *testing.T, c *InProcessClient, uid, gid string) {
	t.Helper()
	require.NoError(t, c.InitClient(uid))
	require.NoError(t, c.CgkaInit(uid, gid))
}

func TestInitClientIdempotent(t *testing.T) {
	c := NewInProcessClient()
	require.NoError(t, c.InitClient("alice"))
	require.NoError(t, c.InitClient("alice"))
}

func TestAddProposalAndWelcomeRoundTrip(t *testing.T) {
	c := NewInProcessClient()
	newGroupWithCreator(t, c, "alice", "folder-1")
	require.NoError(t, c.InitClient("bob"))

	bobKP, err := c.GenerateKeyPackage("bob")
	require.NoError(t, err)

	control, welcome, err := c.CgkaAddProposal("alice", "folder-1", bobKP)
	require.NoError(t, err)
	require.NotEmpty(t, control)
	require.NotEmpty(t, welcome)

	require.NoError(t, c.CgkaApplyPendingCommit("alice", "folder-1"))

	gid, err := c.CgkaJoinGroup("bob", welcome)
	require.NoError(t, err)
	require.Equal(t, "folder-1", gid)

	data := []byte("hello bob")
	msg, err := c.PrepareAppMsg("alice", "folder-1", data, KpExt)
	require.NoError(t, err)

	got, tag, isCommit, err := c.ProcessIncomingMsg("bob", "folder-1", msg)
	require.NoError(t, err)
	require.False(t, isCommit)
	require.Equal(t, KpExt, tag)
	require.Equal(t, data, got)
}

func TestAddProposalRejectsSecondPendingCommit(t *testing.T) {
	c := NewInProcessClient()
	newGroupWithCreator(t, c, "alice", "folder-1")
	require.NoError(t, c.InitClient("bob"))
	require.NoError(t, c.InitClient("carol"))

	bobKP, err := c.GenerateKeyPackage("bob")
	require.NoError(t, err)
	_, _, err = c.CgkaAddProposal("alice", "folder-1", bobKP)
	require.NoError(t, err)

	carolKP, err := c.GenerateKeyPackage("carol")
	require.NoError(t, err)
	_, _, err = c.CgkaAddProposal("alice", "folder-1", carolKP)
	require.ErrorIs(t, err, ErrPendingCommitExists)
}

func TestDeletePendingCommitAllowsRetry(t *testing.T) {
	c := NewInProcessClient()
	newGroupWithCreator(t, c, "alice", "folder-1")
	require.NoError(t, c.InitClient("bob"))

	bobKP, err := c.GenerateKeyPackage("bob")
	require.NoError(t, err)
	_, _, err = c.CgkaAddProposal("alice", "folder-1", bobKP)
	require.NoError(t, err)

	require.NoError(t, c.CgkaDeletePendingCommit("alice", "folder-1"))

	bobKP2, err := c.GenerateKeyPackage("bob")
	require.NoError(t, err)
	_, _, err = c.CgkaAddProposal("alice", "folder-1", bobKP2)
	require.NoError(t, err)
}

func TestRemoveProposalProcessedByRemainingMember(t *testing.T) {
	c := NewInProcessClient()
	newGroupWithCreator(t, c, "alice", "folder-1")
	require.NoError(t, c.InitClient("bob"))
	require.NoError(t, c.InitClient("carol"))

	bobKP, err := c.GenerateKeyPackage("bob")
	require.NoError(t, err)
	_, welcome, err := c.CgkaAddProposal("alice", "folder-1", bobKP)
	require.NoError(t, err)
	require.NoError(t, c.CgkaApplyPendingCommit("alice", "folder-1"))
	_, err = c.CgkaJoinGroup("bob", welcome)
	require.NoError(t, err)

	carolKP, err := c.GenerateKeyPackage("carol")
	require.NoError(t, err)
	_, welcome2, err := c.CgkaAddProposal("alice", "folder-1", carolKP)
	require.NoError(t, err)
	require.NoError(t, c.CgkaApplyPendingCommit("alice", "folder-1"))
	_, err = c.CgkaJoinGroup("carol", welcome2)
	require.NoError(t, err)

	control, err := c.CgkaRemoveProposal("alice", "folder-1", "carol")
	require.NoError(t, err)
	require.NoError(t, c.CgkaApplyPendingCommit("alice", "folder-1"))

	_, _, isCommit, err := c.ProcessIncomingMsg("bob", "folder-1", control)
	require.NoError(t, err)
	require.True(t, isCommit)
}

func TestProcessIncomingMsgRejectsUnknownGroup(t *testing.T) {
	c := NewInProcessClient()
	_, _, _, err := c.ProcessIncomingMsg("alice", "nope", []byte("x"))
	require.ErrorIs(t, err, ErrUnknownGroup)
}

func TestPrepareAppMsgRejectsNonMember(t *testing.T) {
	c := NewInProcessClient()
	newGroupWithCreator(t, c, "alice", "folder-1")
	require.NoError(t, c.InitClient("eve"))

	_, err := c.PrepareAppMsg("eve", "folder-1", []byte("x"), KpExt)
	require.ErrorIs(t, err, ErrNotMember)
}

func TestJoinGroupFailsWithoutIssuedKeyPackage(t *testing.T) {
	c := NewInProcessClient()
	_, err := c.CgkaJoinGroup("ghost", []byte("garbage"))
	require.ErrorIs(t, err, ErrInvalidWelcome)
}

func TestUpdateKeysRotatesEpochSecret(t *testing.T) {
	c := NewInProcessClient()
	newGroupWithCreator(t, c, "alice", "folder-1")

	before := c.groups["folder-1"].secret
	_, err := c.CgkaUpdateKeys("alice", "folder-1")
	require.NoError(t, err)
	require.NoError(t, c.CgkaApplyPendingCommit("alice", "folder-1"))
	after := c.groups["folder-1"].secret

	require.NotEqual(t, before, after)
}
