package grappa

import (
	"errors"
	"fmt"

	"github.com/nicdard/grappa/cgka"
	"github.com/nicdard/grappa/grapperr"
	"github.com/nicdard/grappa/kappa"
	"github.com/nicdard/grappa/server"
)

// ExecCtrl dispatches cmd against session and returns the updated
// session on success, implementing spec.md §4.5's four-step state
// machine: prepare pending commit(s), submit to the server, apply and
// progress and send application messages on acceptance, persist.
func (c *Client) ExecCtrl(session *Session, cmd Command) (*Session, error) {
	switch cmd.Kind {
	case server.CommandAdd:
		return c.execAdd(session, cmd.TargetUID)
	case server.CommandRemove:
		return c.execRemove(session, cmd.TargetUID)
	case server.CommandAddAdmin:
		return c.execAddAdmin(session, cmd.TargetUID)
	case server.CommandRemAdmin:
		return c.execRemAdmin(session, cmd.TargetUID)
	case server.CommandUpdAdmin:
		return c.execUpdAdmin(session)
	case server.CommandRotKeys:
		return c.execRotKeys(session)
	case server.CommandUpdUser:
		return c.execUpdUser(session)
	default:
		return nil, grapperr.Wrap("grappa.ExecCtrl", grapperr.PreconditionViolation,
			fmt.Errorf("unknown command kind %q", cmd.Kind))
	}
}

func requireAdmin(op string, session *Session) (AdminState, error) {
	st, ok := session.State.(AdminState)
	if !ok {
		return AdminState{}, grapperr.Wrap(op, grapperr.PreconditionViolation,
			fmt.Errorf("command requires admin role, session is %T", session.State))
	}
	return st, nil
}

// rollback discards any pending commits staged on groups and reloads the
// persisted session from disk, best-effort (spec.md §4.5 "Failure
// semantics": delete pending commits, reload from disk, surface the
// error to the caller).
func (c *Client) rollback(session *Session, groups ...string) {
	for _, gid := range groups {
		if gid == "" {
			continue
		}
		if err := c.cgka.CgkaDeletePendingCommit(session.UserID, gid); err != nil {
			c.log.WithError(err, "cgka_failure").Warn("failed to delete pending commit during rollback")
		}
	}
	if _, err := c.load(session.UserID, session.FolderID); err != nil {
		c.log.WithError(err, "transport_failure").Warn("failed to reload persisted state during rollback")
	}
}

// submitKind classifies a server rejection so callers can pick the
// right grapperr.Kind: a 409 conflict is locally recoverable, anything
// else is treated as an unreachable server (spec.md §7).
func submitKind(err error) grapperr.Kind {
	if errors.Is(err, server.ErrConflict) {
		return grapperr.CgkaStale
	}
	return grapperr.TransportFailure
}

// failAfterAccept wraps a failure that occurred after the server has
// already accepted the proposal: the pending commit is gone (already
// applied, or about to be), so there is nothing to roll back locally.
// Recovery is ProcCtrl reconciling from the next fetched inbound
// message (spec.md §4.5 "Steps 3 and 4 must be made best-effort
// idempotent").
func (c *Client) failAfterAccept(op string, err error) error {
	c.log.WithError(err, "post_accept_failure").Warn("proposal accepted by server but local apply/persist failed; next ProcCtrl reconciles")
	return grapperr.Wrap(op, grapperr.CgkaFailure, err)
}

func buildExtensionMsg(c *Client, uid, gid string, ks *kappa.State, epoch uint64) ([]byte, error) {
	ext, err := ks.CreateExtension(epoch, epoch)
	if err != nil {
		return nil, err
	}
	extBytes, err := ext.MarshalCBOR()
	if err != nil {
		return nil, err
	}
	return c.cgka.PrepareAppMsg(uid, gid, extBytes, cgka.KpExt)
}

func buildStateMsg(c *Client, uid, gid string, ks *kappa.State) ([]byte, error) {
	stateBytes, err := ks.MarshalCBOR()
	if err != nil {
		return nil, err
	}
	return c.cgka.PrepareAppMsg(uid, gid, stateBytes, cgka.KpState)
}

// execAdd implements ADD(uid) (spec.md §4.5).
func (c *Client) execAdd(session *Session, targetUID string) (*Session, error) {
	const op = "grappa.execAdd"
	admin, err := requireAdmin(op, session)
	if err != nil {
		return nil, err
	}
	c.discardStaleWelcome(targetUID, session.FolderID)

	kpBytes, err := c.mw.FetchKeyPackageForUidWithFolder(session.UserID, targetUID, session.FolderID)
	if err != nil {
		return nil, grapperr.Wrap(op, grapperr.TransportFailure, err)
	}
	kp, err := unmarshalKeyPackage(kpBytes)
	if err != nil {
		return nil, grapperr.Wrap(op, grapperr.Serialization, err)
	}

	// Step 1: prepare pending commit.
	controlMsg, welcomeMsg, err := c.cgka.CgkaAddProposal(session.UserID, admin.MemberGroupID, kp)
	if err != nil {
		return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
	}
	if err := c.store.StagePendingWelcome(targetUID, session.FolderID, welcomeMsg); err != nil {
		c.rollback(session, admin.MemberGroupID)
		return nil, grapperr.Wrap(op, grapperr.TransportFailure, err)
	}

	// Step 2: submit (shareProposal also extends the folder ACL).
	ids, err := c.mw.ShareProposal(session.UserID, session.FolderID, &server.Proposal{
		Command:          server.CommandAdd,
		MemberControlMsg: controlMsg,
		MemberWelcomeMsg: welcomeMsg,
		NewMemberUID:     targetUID,
	})
	if err != nil {
		c.rollback(session, admin.MemberGroupID)
		return nil, grapperr.Wrap(op, submitKind(err), err)
	}

	// Step 3: apply, progress(empty), send KpExt + KpInt.
	if err := c.cgka.CgkaApplyPendingCommit(session.UserID, admin.MemberGroupID); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	if err := admin.Kappa.Progress(kappa.Empty); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	newEpoch := uint64(admin.Kappa.MaxEpoch())

	memberMsg, err := buildExtensionMsg(c, session.UserID, admin.MemberGroupID, admin.Kappa, newEpoch)
	if err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	interval, err := admin.Kappa.GetInterval(newEpoch, newEpoch)
	if err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	intervalBytes, err := interval.MarshalCBOR()
	if err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	intMsg, err := c.cgka.PrepareAppMsg(session.UserID, admin.MemberGroupID, intervalBytes, cgka.KpInt)
	if err != nil {
		return nil, c.failAfterAccept(op, err)
	}

	if err := c.mw.SendApplicationMessage(session.UserID, session.FolderID, &server.ApplicationMessage{
		Command:                 server.CommandAdd,
		MemberApplicationMsg:    memberMsg,
		MemberApplicationIntMsg: intMsg,
		MessageIDs:              ids,
	}); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	if err := c.store.ClearPendingWelcome(targetUID, session.FolderID); err != nil {
		c.log.WithError(err, "transport_failure").Warn("failed to clear staged welcome")
	}

	// Step 4: persist.
	if err := c.save(session); err != nil {
		return nil, err
	}
	return session, nil
}

// execRemove implements REM(uid) (spec.md §4.5).
func (c *Client) execRemove(session *Session, targetUID string) (*Session, error) {
	const op = "grappa.execRemove"
	admin, err := requireAdmin(op, session)
	if err != nil {
		return nil, err
	}

	controlMsg, err := c.cgka.CgkaRemoveProposal(session.UserID, admin.MemberGroupID, targetUID)
	if err != nil {
		return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
	}

	ids, err := c.mw.SendProposal(session.UserID, session.FolderID, &server.Proposal{
		Command:          server.CommandRemove,
		MemberControlMsg: controlMsg,
		RemovedMemberUID: targetUID,
	})
	if err != nil {
		c.rollback(session, admin.MemberGroupID)
		return nil, grapperr.Wrap(op, submitKind(err), err)
	}

	if err := c.cgka.CgkaApplyPendingCommit(session.UserID, admin.MemberGroupID); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	if err := admin.Kappa.Progress(kappa.ForwardBlock); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	newEpoch := uint64(admin.Kappa.MaxEpoch())

	memberMsg, err := buildExtensionMsg(c, session.UserID, admin.MemberGroupID, admin.Kappa, newEpoch)
	if err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	adminMsg, err := buildStateMsg(c, session.UserID, admin.AdminGroupID, admin.Kappa)
	if err != nil {
		return nil, c.failAfterAccept(op, err)
	}

	if err := c.mw.SendApplicationMessage(session.UserID, session.FolderID, &server.ApplicationMessage{
		Command:              server.CommandRemove,
		MemberApplicationMsg: memberMsg,
		AdminApplicationMsg:  adminMsg,
		MessageIDs:           ids,
	}); err != nil {
		return nil, c.failAfterAccept(op, err)
	}

	if err := c.save(session); err != nil {
		return nil, err
	}
	return session, nil
}

// execAddAdmin implements ADD_ADM(uid) (spec.md §4.5).
func (c *Client) execAddAdmin(session *Session, targetUID string) (*Session, error) {
	const op = "grappa.execAddAdmin"
	admin, err := requireAdmin(op, session)
	if err != nil {
		return nil, err
	}
	c.discardStaleWelcome(targetUID, admin.AdminGroupID)

	kpBytes, err := c.mw.FetchKeyPackageForUidWithFolder(session.UserID, targetUID, session.FolderID)
	if err != nil {
		return nil, grapperr.Wrap(op, grapperr.TransportFailure, err)
	}
	kp, err := unmarshalKeyPackage(kpBytes)
	if err != nil {
		return nil, grapperr.Wrap(op, grapperr.Serialization, err)
	}

	adminControlMsg, adminWelcomeMsg, err := c.cgka.CgkaAddProposal(session.UserID, admin.AdminGroupID, kp)
	if err != nil {
		return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
	}
	memberControlMsg, err := c.cgka.CgkaUpdateKeys(session.UserID, admin.MemberGroupID)
	if err != nil {
		c.rollback(session, admin.AdminGroupID)
		return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
	}
	if err := c.store.StagePendingWelcome(targetUID, admin.AdminGroupID, adminWelcomeMsg); err != nil {
		c.rollback(session, admin.AdminGroupID, admin.MemberGroupID)
		return nil, grapperr.Wrap(op, grapperr.TransportFailure, err)
	}

	ids, err := c.mw.SendProposal(session.UserID, session.FolderID, &server.Proposal{
		Command:          server.CommandAddAdmin,
		MemberControlMsg: memberControlMsg,
		AdminControlMsg:  adminControlMsg,
		AdminWelcomeMsg:  adminWelcomeMsg,
		NewMemberUID:     targetUID,
	})
	if err != nil {
		c.rollback(session, admin.AdminGroupID, admin.MemberGroupID)
		return nil, grapperr.Wrap(op, submitKind(err), err)
	}

	if err := c.cgka.CgkaApplyPendingCommit(session.UserID, admin.AdminGroupID); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	if err := c.cgka.CgkaApplyPendingCommit(session.UserID, admin.MemberGroupID); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	if err := admin.Kappa.Progress(kappa.Empty); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	newEpoch := uint64(admin.Kappa.MaxEpoch())

	memberMsg, err := buildExtensionMsg(c, session.UserID, admin.MemberGroupID, admin.Kappa, newEpoch)
	if err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	adminMsg, err := buildStateMsg(c, session.UserID, admin.AdminGroupID, admin.Kappa)
	if err != nil {
		return nil, c.failAfterAccept(op, err)
	}

	if err := c.mw.SendApplicationMessage(session.UserID, session.FolderID, &server.ApplicationMessage{
		Command:              server.CommandAddAdmin,
		MemberApplicationMsg: memberMsg,
		AdminApplicationMsg:  adminMsg,
		MessageIDs:           ids,
	}); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	if err := c.store.ClearPendingWelcome(targetUID, admin.AdminGroupID); err != nil {
		c.log.WithError(err, "transport_failure").Warn("failed to clear staged admin welcome")
	}

	if err := c.save(session); err != nil {
		return nil, err
	}
	return session, nil
}

// execRemAdmin implements REM_ADM(uid) (spec.md §4.5).
func (c *Client) execRemAdmin(session *Session, targetUID string) (*Session, error) {
	const op = "grappa.execRemAdmin"
	admin, err := requireAdmin(op, session)
	if err != nil {
		return nil, err
	}

	adminControlMsg, err := c.cgka.CgkaRemoveProposal(session.UserID, admin.AdminGroupID, targetUID)
	if err != nil {
		return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
	}
	memberControlMsg, err := c.cgka.CgkaUpdateKeys(session.UserID, admin.MemberGroupID)
	if err != nil {
		c.rollback(session, admin.AdminGroupID)
		return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
	}

	ids, err := c.mw.SendProposal(session.UserID, session.FolderID, &server.Proposal{
		Command:          server.CommandRemAdmin,
		MemberControlMsg: memberControlMsg,
		AdminControlMsg:  adminControlMsg,
		RemovedMemberUID: targetUID,
	})
	if err != nil {
		c.rollback(session, admin.AdminGroupID, admin.MemberGroupID)
		return nil, grapperr.Wrap(op, submitKind(err), err)
	}

	if err := c.cgka.CgkaApplyPendingCommit(session.UserID, admin.AdminGroupID); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	if err := c.cgka.CgkaApplyPendingCommit(session.UserID, admin.MemberGroupID); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	if err := admin.Kappa.Progress(kappa.BackwardBlock); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	newEpoch := uint64(admin.Kappa.MaxEpoch())

	memberMsg, err := buildExtensionMsg(c, session.UserID, admin.MemberGroupID, admin.Kappa, newEpoch)
	if err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	adminMsg, err := buildStateMsg(c, session.UserID, admin.AdminGroupID, admin.Kappa)
	if err != nil {
		return nil, c.failAfterAccept(op, err)
	}

	if err := c.mw.SendApplicationMessage(session.UserID, session.FolderID, &server.ApplicationMessage{
		Command:              server.CommandRemAdmin,
		MemberApplicationMsg: memberMsg,
		AdminApplicationMsg:  adminMsg,
		MessageIDs:           ids,
	}); err != nil {
		return nil, c.failAfterAccept(op, err)
	}

	if err := c.save(session); err != nil {
		return nil, err
	}
	return session, nil
}

// execUpdAdmin implements UPD_ADM (spec.md §4.5).
func (c *Client) execUpdAdmin(session *Session) (*Session, error) {
	const op = "grappa.execUpdAdmin"
	admin, err := requireAdmin(op, session)
	if err != nil {
		return nil, err
	}

	adminControlMsg, err := c.cgka.CgkaUpdateKeys(session.UserID, admin.AdminGroupID)
	if err != nil {
		return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
	}
	memberControlMsg, err := c.cgka.CgkaUpdateKeys(session.UserID, admin.MemberGroupID)
	if err != nil {
		c.rollback(session, admin.AdminGroupID)
		return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
	}

	ids, err := c.mw.SendProposal(session.UserID, session.FolderID, &server.Proposal{
		Command:          server.CommandUpdAdmin,
		MemberControlMsg: memberControlMsg,
		AdminControlMsg:  adminControlMsg,
	})
	if err != nil {
		c.rollback(session, admin.AdminGroupID, admin.MemberGroupID)
		return nil, grapperr.Wrap(op, submitKind(err), err)
	}

	if err := c.cgka.CgkaApplyPendingCommit(session.UserID, admin.AdminGroupID); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	if err := c.cgka.CgkaApplyPendingCommit(session.UserID, admin.MemberGroupID); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	if err := admin.Kappa.Progress(kappa.Empty); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	newEpoch := uint64(admin.Kappa.MaxEpoch())

	memberMsg, err := buildExtensionMsg(c, session.UserID, admin.MemberGroupID, admin.Kappa, newEpoch)
	if err != nil {
		return nil, c.failAfterAccept(op, err)
	}

	if err := c.mw.SendApplicationMessage(session.UserID, session.FolderID, &server.ApplicationMessage{
		Command:              server.CommandUpdAdmin,
		MemberApplicationMsg: memberMsg,
		MessageIDs:           ids,
	}); err != nil {
		return nil, c.failAfterAccept(op, err)
	}

	if err := c.save(session); err != nil {
		return nil, err
	}
	return session, nil
}

// execRotKeys implements ROT_KEYS (spec.md §4.5).
func (c *Client) execRotKeys(session *Session) (*Session, error) {
	const op = "grappa.execRotKeys"
	admin, err := requireAdmin(op, session)
	if err != nil {
		return nil, err
	}

	adminControlMsg, err := c.cgka.CgkaUpdateKeys(session.UserID, admin.AdminGroupID)
	if err != nil {
		return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
	}
	memberControlMsg, err := c.cgka.CgkaUpdateKeys(session.UserID, admin.MemberGroupID)
	if err != nil {
		c.rollback(session, admin.AdminGroupID)
		return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
	}

	ids, err := c.mw.SendProposal(session.UserID, session.FolderID, &server.Proposal{
		Command:          server.CommandRotKeys,
		MemberControlMsg: memberControlMsg,
		AdminControlMsg:  adminControlMsg,
	})
	if err != nil {
		c.rollback(session, admin.AdminGroupID, admin.MemberGroupID)
		return nil, grapperr.Wrap(op, submitKind(err), err)
	}

	if err := c.cgka.CgkaApplyPendingCommit(session.UserID, admin.AdminGroupID); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	if err := c.cgka.CgkaApplyPendingCommit(session.UserID, admin.MemberGroupID); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	if err := admin.Kappa.Progress(kappa.BackwardBlock); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	newEpoch := uint64(admin.Kappa.MaxEpoch())

	memberMsg, err := buildExtensionMsg(c, session.UserID, admin.MemberGroupID, admin.Kappa, newEpoch)
	if err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	adminMsg, err := buildStateMsg(c, session.UserID, admin.AdminGroupID, admin.Kappa)
	if err != nil {
		return nil, c.failAfterAccept(op, err)
	}

	if err := c.mw.SendApplicationMessage(session.UserID, session.FolderID, &server.ApplicationMessage{
		Command:              server.CommandRotKeys,
		MemberApplicationMsg: memberMsg,
		AdminApplicationMsg:  adminMsg,
		MessageIDs:           ids,
	}); err != nil {
		return nil, c.failAfterAccept(op, err)
	}

	if err := c.save(session); err != nil {
		return nil, err
	}
	return session, nil
}

// execUpdUser implements UPD_USER (spec.md §4.5): a member-group
// key-update available to members and admins alike, with no epoch
// progression and no application-message payload beyond the commit.
func (c *Client) execUpdUser(session *Session) (*Session, error) {
	const op = "grappa.execUpdUser"
	gid, err := memberGroupID(session)
	if err != nil {
		return nil, err
	}

	controlMsg, err := c.cgka.CgkaUpdateKeys(session.UserID, gid)
	if err != nil {
		return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
	}

	ids, err := c.mw.SendProposal(session.UserID, session.FolderID, &server.Proposal{
		Command:          server.CommandUpdUser,
		MemberControlMsg: controlMsg,
	})
	if err != nil {
		c.rollback(session, gid)
		return nil, grapperr.Wrap(op, submitKind(err), err)
	}

	if err := c.cgka.CgkaApplyPendingCommit(session.UserID, gid); err != nil {
		return nil, c.failAfterAccept(op, err)
	}
	if err := c.mw.SendApplicationMessage(session.UserID, session.FolderID, &server.ApplicationMessage{
		Command:    server.CommandUpdUser,
		MessageIDs: ids,
	}); err != nil {
		return nil, c.failAfterAccept(op, err)
	}

	if err := c.save(session); err != nil {
		return nil, err
	}
	return session, nil
}

func memberGroupID(session *Session) (string, error) {
	switch st := session.State.(type) {
	case AdminState:
		return st.MemberGroupID, nil
	case MemberState:
		return st.MemberGroupID, nil
	default:
		return "", grapperr.Wrap("grappa.memberGroupID", grapperr.PreconditionViolation,
			fmt.Errorf("session has no client state"))
	}
}
