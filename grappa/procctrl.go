package grappa

import (
	"fmt"

	"github.com/nicdard/grappa/cgka"
	"github.com/nicdard/grappa/grapperr"
	"github.com/nicdard/grappa/kappa"
	"github.com/nicdard/grappa/server"
)

// ProcCtrl processes one inbound (Proposal, ApplicationMessage) pair
// fetched from the server, implementing spec.md §4.5's seven-step
// algorithm. The returned session replaces the caller's in-memory
// session whether or not a role transition occurred; a nil State means
// the user has been fully removed from the folder.
func (c *Client) ProcCtrl(session *Session, p *server.Proposal, appMsg *server.ApplicationMessage) (*Session, error) {
	const op = "grappa.ProcCtrl"

	gid, err := memberGroupID(session)
	if err != nil {
		return nil, err
	}

	// Step 1: advance the member-group CGKA state.
	_, _, isCommit, err := c.cgka.ProcessIncomingMsg(session.UserID, gid, p.MemberControlMsg)
	if err != nil {
		return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
	}
	if !isCommit {
		return nil, grapperr.Wrap(op, grapperr.PreconditionViolation,
			fmt.Errorf("member control blob was not a commit"))
	}

	// Step 2: UPD_USER carries no further processing.
	if p.Command == server.CommandUpdUser {
		return session, c.ack(session, p)
	}

	// Step 3: self-removal.
	if p.Command == server.CommandRemove && p.RemovedMemberUID == session.UserID {
		if err := c.mw.SendRemoveSelf(session.UserID, session.FolderID); err != nil {
			c.log.WithError(err, "transport_failure").Warn("failed to purge queues on self-removal")
		}
		if err := c.store.Delete(session.UserID, session.FolderID); err != nil {
			c.log.WithError(err, "transport_failure").Warn("failed to delete persisted state on self-removal")
		}
		return &Session{UserID: session.UserID, FolderID: session.FolderID, State: nil}, nil
	}

	admin, isAdmin := session.State.(AdminState)

	// Step 4: admin-group control processing.
	if isAdmin && p.AdminControlMsg != nil {
		_, _, isCommit, err := c.cgka.ProcessIncomingMsg(session.UserID, admin.AdminGroupID, p.AdminControlMsg)
		if err != nil {
			return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
		}
		if !isCommit {
			return nil, grapperr.Wrap(op, grapperr.PreconditionViolation,
				fmt.Errorf("admin control blob was not a commit"))
		}

		if p.Command == server.CommandRemAdmin && p.RemovedMemberUID == session.UserID {
			interval, err := admin.Kappa.GetInterval(0, uint64(admin.Kappa.MaxEpoch()))
			if err != nil {
				return nil, grapperr.Wrap(op, grapperr.CryptoFailure, err)
			}
			data, _, _, err := c.cgka.ProcessIncomingMsg(session.UserID, gid, appMsg.MemberApplicationMsg)
			if err != nil {
				return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
			}
			var ext kappa.Interval
			if err := ext.UnmarshalCBOR(data); err != nil {
				return nil, grapperr.Wrap(op, grapperr.Serialization, err)
			}
			extended, err := kappa.ProcessExtension(interval, &ext)
			if err != nil {
				return nil, grapperr.Wrap(op, grapperr.CryptoFailure, err)
			}
			session.State = MemberState{MemberGroupID: admin.MemberGroupID, Interval: extended}
			if err := c.save(session); err != nil {
				return nil, err
			}
			return session, c.ack(session, p)
		}
	}

	// Steps 4 (remainder)/5: admin-role processing of the other party's command.
	if isAdmin {
		switch p.Command {
		case server.CommandRemove, server.CommandRotKeys, server.CommandRemAdmin:
			data, _, _, err := c.cgka.ProcessIncomingMsg(session.UserID, admin.AdminGroupID, appMsg.AdminApplicationMsg)
			if err != nil {
				return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
			}
			var ks kappa.State
			if err := ks.UnmarshalCBOR(data); err != nil {
				return nil, grapperr.Wrap(op, grapperr.Serialization, err)
			}
			session.State = AdminState{MemberGroupID: admin.MemberGroupID, AdminGroupID: admin.AdminGroupID, Kappa: &ks}
		case server.CommandAdd, server.CommandAddAdmin, server.CommandUpdAdmin:
			data, _, _, err := c.cgka.ProcessIncomingMsg(session.UserID, gid, appMsg.MemberApplicationMsg)
			if err != nil {
				return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
			}
			var ext kappa.Interval
			if err := ext.UnmarshalCBOR(data); err != nil {
				return nil, grapperr.Wrap(op, grapperr.Serialization, err)
			}
			if err := admin.Kappa.ApplyExtension(&ext); err != nil {
				return nil, grapperr.Wrap(op, grapperr.CryptoFailure, err)
			}
			c.replenishAfterSync(session.UserID)
		}

		if err := c.save(session); err != nil {
			return nil, err
		}
		return session, c.ack(session, p)
	}

	// Step 6: member-role processing.
	member, ok := session.State.(MemberState)
	if !ok {
		return nil, grapperr.Wrap(op, grapperr.PreconditionViolation,
			fmt.Errorf("session has neither admin nor member state"))
	}

	if p.Command == server.CommandAddAdmin && p.NewMemberUID == session.UserID {
		adminGid, err := c.cgka.CgkaJoinGroup(session.UserID, p.AdminWelcomeMsg)
		if err != nil {
			return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
		}
		data, tag, isCommit, err := c.cgka.ProcessIncomingMsg(session.UserID, adminGid, appMsg.AdminApplicationMsg)
		if err != nil {
			return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
		}
		if isCommit || tag != cgka.KpState {
			return nil, grapperr.Wrap(op, grapperr.PreconditionViolation,
				fmt.Errorf("expected a KpState application message"))
		}
		var ks kappa.State
		if err := ks.UnmarshalCBOR(data); err != nil {
			return nil, grapperr.Wrap(op, grapperr.Serialization, err)
		}
		session.State = AdminState{MemberGroupID: member.MemberGroupID, AdminGroupID: adminGid, Kappa: &ks}
		c.replenishAfterSync(session.UserID)
	} else {
		data, _, _, err := c.cgka.ProcessIncomingMsg(session.UserID, gid, appMsg.MemberApplicationMsg)
		if err != nil {
			return nil, grapperr.Wrap(op, grapperr.CgkaFailure, err)
		}
		var ext kappa.Interval
		if err := ext.UnmarshalCBOR(data); err != nil {
			return nil, grapperr.Wrap(op, grapperr.Serialization, err)
		}
		extended, err := kappa.ProcessExtension(member.Interval, &ext)
		if err != nil {
			return nil, grapperr.Wrap(op, grapperr.CryptoFailure, err)
		}
		session.State = MemberState{MemberGroupID: member.MemberGroupID, Interval: extended}
		c.replenishAfterSync(session.UserID)
	}

	// Step 7: persist, then ack.
	if err := c.save(session); err != nil {
		return nil, err
	}
	return session, c.ack(session, p)
}

func (c *Client) ack(session *Session, p *server.Proposal) error {
	if err := c.mw.AckProposal(session.UserID, session.FolderID, p); err != nil {
		return grapperr.Wrap("grappa.ProcCtrl", grapperr.TransportFailure, err)
	}
	return nil
}

// replenishAfterSync publishes one fresh key package after a successful
// join or extension processing (spec.md §4.5 "Key-package replenishment").
func (c *Client) replenishAfterSync(userID string) {
	if err := c.replenishKeyPackage(userID); err != nil {
		c.log.WithError(err, "crypto_failure").Warn("failed to replenish key package after sync")
	}
}
