package grappa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicdard/grappa/cgka"
	"github.com/nicdard/grappa/server"
	"github.com/nicdard/grappa/state"
)

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.NewStore(t.TempDir(), []byte("test passphrase"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func publishKeyPackage(t *testing.T, cg cgka.Client, mw server.Middleware, uid string) {
	t.Helper()
	require.NoError(t, cg.InitClient(uid))
	kp, err := cg.GenerateKeyPackage(uid)
	require.NoError(t, err)
	blob, err := marshalKeyPackage(kp)
	require.NoError(t, err)
	require.NoError(t, mw.SendKeyPackage(uid, blob))
}

// TestCreatePromoteDemoteRemoveScenario walks spec.md §8's end-to-end
// scenarios 1-3 in sequence against the same folder: create + add +
// join, promote then demote, and finally remove.
func TestCreatePromoteDemoteRemoveScenario(t *testing.T) {
	cg := cgka.NewInProcessClient()
	mw := server.NewMemoryMiddleware()

	u1Store := newTestStore(t)
	creator := NewClient(cg, mw, newTestStore(t), 32)
	u1 := NewClient(cg, mw, u1Store, 32)

	// Scenario 1: create + add + join.
	session, err := creator.CreateGroup("C", "F")
	require.NoError(t, err)
	assert.EqualValues(t, 0, session.State.(AdminState).Kappa.MaxEpoch())

	publishKeyPackage(t, cg, mw, "U1")

	session, err = creator.ExecCtrl(session, NewAdd("U1"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, session.State.(AdminState).Kappa.MaxEpoch())

	u1Session, err := u1.JoinCtrl("U1", "F")
	require.NoError(t, err)
	u1Member := u1Session.State.(MemberState)
	assert.EqualValues(t, 1, u1Member.Interval.Left)
	assert.EqualValues(t, 1, u1Member.Interval.Right)

	p, _, err := mw.FetchPendingProposal("U1", "F")
	require.NoError(t, err)
	assert.Nil(t, p, "queue must be empty after ack")

	// Scenario 2: promote then demote.
	session, err = creator.ExecCtrl(session, NewAddAdmin("U1"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, session.State.(AdminState).Kappa.MaxEpoch())

	p, appMsg, err := mw.FetchPendingProposal("U1", "F")
	require.NoError(t, err)
	require.NotNil(t, p)
	u1Session, err = u1.ProcCtrl(u1Session, p, appMsg)
	require.NoError(t, err)
	u1Admin := u1Session.State.(AdminState)
	assert.EqualValues(t, 2, u1Admin.Kappa.MaxEpoch())

	session, err = creator.ExecCtrl(session, NewRemAdmin("U1"))
	require.NoError(t, err)
	assert.EqualValues(t, 3, session.State.(AdminState).Kappa.MaxEpoch())

	p, appMsg, err = mw.FetchPendingProposal("U1", "F")
	require.NoError(t, err)
	require.NotNil(t, p)
	u1Session, err = u1.ProcCtrl(u1Session, p, appMsg)
	require.NoError(t, err)
	u1Member = u1Session.State.(MemberState)
	assert.EqualValues(t, 0, u1Member.Interval.Left)
	assert.EqualValues(t, 3, u1Member.Interval.Right)

	// Scenario 3: remove.
	session, err = creator.ExecCtrl(session, NewRemove("U1"))
	require.NoError(t, err)

	p, appMsg, err = mw.FetchPendingProposal("U1", "F")
	require.NoError(t, err)
	require.NotNil(t, p)
	u1Session, err = u1.ProcCtrl(u1Session, p, appMsg)
	require.NoError(t, err)
	assert.Nil(t, u1Session.State)

	_, err = u1Store.Load("U1", "F")
	require.Error(t, err)
}

// TestExecCtrlRejectsWrongRole covers spec.md §7's PreconditionViolation
// for an admin-only command attempted by a member session.
func TestExecCtrlRejectsWrongRole(t *testing.T) {
	cg := cgka.NewInProcessClient()
	mw := server.NewMemoryMiddleware()
	client := NewClient(cg, mw, newTestStore(t), 32)

	memberSession := &Session{
		UserID:   "U1",
		FolderID: "F",
		State:    MemberState{MemberGroupID: "F"},
	}
	_, err := client.ExecCtrl(memberSession, NewAdd("U2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin role")
}

// TestExecCtrlConflictDiscardsPendingCommit covers spec.md §8 scenario
// 6: a second admin's proposal is rejected with 409 while another
// admin's proposal is outstanding, and the pending commit is discarded.
func TestExecCtrlConflictDiscardsPendingCommit(t *testing.T) {
	cg := cgka.NewInProcessClient()
	mw := server.NewMemoryMiddleware()

	creator := NewClient(cg, mw, newTestStore(t), 32)
	other := NewClient(cg, mw, newTestStore(t), 32)

	session, err := creator.CreateGroup("C", "F")
	require.NoError(t, err)

	// A must already be a folder member before it can be promoted.
	publishKeyPackage(t, cg, mw, "A")
	session, err = creator.ExecCtrl(session, NewAdd("A"))
	require.NoError(t, err)
	aSession, err := other.JoinCtrl("A", "F")
	require.NoError(t, err)

	// JoinCtrl already replenished A's key package pool; ADD_ADM consumes it.
	session, err = creator.ExecCtrl(session, NewAddAdmin("A"))
	require.NoError(t, err)

	p, appMsg, err := mw.FetchPendingProposal("A", "F")
	require.NoError(t, err)
	require.NotNil(t, p)
	aSession, err = other.ProcCtrl(aSession, p, appMsg)
	require.NoError(t, err)
	require.IsType(t, AdminState{}, aSession.State)

	// Simulate contention directly: C puts a proposal on the server queue
	// (no CGKA commit behind it), so A has an unprocessed incoming proposal
	// when it tries UPD_ADM, forcing the server's FIFO conflict check.
	_, err = mw.SendProposal("C", "F", &server.Proposal{Command: server.CommandUpdAdmin})
	require.NoError(t, err)

	_, err = other.ExecCtrl(aSession, NewUpdateAdmin())
	require.Error(t, err)
	var wrapped interface{ Recoverable() bool }
	require.ErrorAs(t, err, &wrapped)
	assert.True(t, wrapped.Recoverable())

	// A's pending commits in both groups were discarded by the rollback.
	require.ErrorIs(t, cg.CgkaDeletePendingCommit("A", "ADMIN-F"), cgka.ErrNoPendingCommit)
	require.ErrorIs(t, cg.CgkaDeletePendingCommit("A", "F"), cgka.ErrNoPendingCommit)
}
