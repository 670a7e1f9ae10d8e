package grappa

import (
	"fmt"

	"github.com/nicdard/grappa/cgka"
	"github.com/nicdard/grappa/cryptoutil"
	"github.com/nicdard/grappa/grapperr"
	"github.com/nicdard/grappa/kappa"
	"github.com/nicdard/grappa/server"
	"github.com/nicdard/grappa/state"
)

// adminGroupID derives the admin CGKA group id for a folder (spec.md
// §4.5: "ADMIN-" ∥ folder id).
func adminGroupID(folderID string) string {
	return "ADMIN-" + folderID
}

// Client is a folder session's orchestrator: the composition root that
// wires cgka, kappa, server, and state together behind the command
// surface of spec.md §4.5. Each GRaPPA session is single-threaded
// cooperative (spec.md §5); Client does not itself add locking.
type Client struct {
	cgka  cgka.Client
	mw    server.Middleware
	store *state.Store
	m     uint64
	log   *cryptoutil.Logger
}

// NewClient wires an orchestrator from its collaborators. m is the
// KaPPA max-interval-without-blocks parameter; callers may pass
// kappa.DefaultMaxIntervalWithoutBlocks.
func NewClient(cgkaClient cgka.Client, mw server.Middleware, store *state.Store, m uint64) *Client {
	return &Client{
		cgka:  cgkaClient,
		mw:    mw,
		store: store,
		m:     m,
		log:   cryptoutil.NewLogger("grappa", "Client"),
	}
}

// bootstrapper is implemented by server middlewares (e.g.
// server.MemoryMiddleware) that need an out-of-band call to seed a
// folder's ACL with its creator; it is not part of the Middleware
// contract because the real delivery service handles ACL bootstrap
// through its own provisioning path.
type bootstrapper interface {
	Bootstrap(uid, folderID string)
}

// CreateGroup initializes a brand-new folder for its creating admin
// (spec.md §3 "Ownership & lifecycle": created by createGroup).
func (c *Client) CreateGroup(userID, folderID string) (*Session, error) {
	if err := c.cgka.InitClient(userID); err != nil {
		return nil, grapperr.Wrap("grappa.CreateGroup", grapperr.CgkaFailure, err)
	}
	if err := c.cgka.CgkaInit(userID, folderID); err != nil {
		return nil, grapperr.Wrap("grappa.CreateGroup", grapperr.CgkaFailure, err)
	}
	adminGid := adminGroupID(folderID)
	if err := c.cgka.CgkaInit(userID, adminGid); err != nil {
		return nil, grapperr.Wrap("grappa.CreateGroup", grapperr.CgkaFailure, err)
	}

	ks, err := kappa.New(c.m)
	if err != nil {
		return nil, grapperr.Wrap("grappa.CreateGroup", grapperr.CryptoFailure, err)
	}

	session := &Session{
		UserID:   userID,
		FolderID: folderID,
		State:    AdminState{MemberGroupID: folderID, AdminGroupID: adminGid, Kappa: ks},
	}

	if b, ok := c.mw.(bootstrapper); ok {
		b.Bootstrap(userID, folderID)
	}

	if err := c.save(session); err != nil {
		return nil, err
	}
	return session, nil
}

// JoinCtrl bootstraps a newly-added member's local state from the
// fetched add proposal: joins the member CGKA group via its welcome
// message, then recovers its initial single-epoch interval from the
// accompanying KpInt application message (spec.md §4.5 scenario 1).
func (c *Client) JoinCtrl(userID, folderID string) (*Session, error) {
	if err := c.cgka.InitClient(userID); err != nil {
		return nil, grapperr.Wrap("grappa.JoinCtrl", grapperr.CgkaFailure, err)
	}

	p, appMsg, err := c.mw.FetchPendingProposal(userID, folderID)
	if err != nil {
		return nil, grapperr.Wrap("grappa.JoinCtrl", grapperr.TransportFailure, err)
	}
	if p == nil || p.Command != server.CommandAdd {
		return nil, grapperr.Wrap("grappa.JoinCtrl", grapperr.PreconditionViolation,
			fmt.Errorf("no pending ADD proposal for %q in folder %q", userID, folderID))
	}
	if appMsg == nil || appMsg.MemberApplicationIntMsg == nil {
		return nil, grapperr.Wrap("grappa.JoinCtrl", grapperr.CgkaStale,
			fmt.Errorf("welcome accepted but single-epoch interval not yet available"))
	}

	gid, err := c.cgka.CgkaJoinGroup(userID, p.MemberWelcomeMsg)
	if err != nil {
		return nil, grapperr.Wrap("grappa.JoinCtrl", grapperr.CgkaFailure, err)
	}

	data, tag, isCommit, err := c.cgka.ProcessIncomingMsg(userID, gid, appMsg.MemberApplicationIntMsg)
	if err != nil {
		return nil, grapperr.Wrap("grappa.JoinCtrl", grapperr.CgkaFailure, err)
	}
	if isCommit || tag != cgka.KpInt {
		return nil, grapperr.Wrap("grappa.JoinCtrl", grapperr.PreconditionViolation,
			fmt.Errorf("expected a KpInt application message"))
	}

	var interval kappa.Interval
	if err := interval.UnmarshalCBOR(data); err != nil {
		return nil, grapperr.Wrap("grappa.JoinCtrl", grapperr.Serialization, err)
	}

	session := &Session{
		UserID:   userID,
		FolderID: folderID,
		State:    MemberState{MemberGroupID: gid, Interval: &interval},
	}
	if err := c.save(session); err != nil {
		return nil, err
	}
	if err := c.mw.AckProposal(userID, folderID, p); err != nil {
		c.log.WithError(err, "transport_failure").Warn("failed to ack join proposal")
	}
	if err := c.replenishKeyPackage(userID); err != nil {
		c.log.WithError(err, "crypto_failure").Warn("failed to replenish key package after join")
	}
	return session, nil
}

// discardStaleWelcome consults the store for a welcome staged by an
// interrupted previous attempt at the same ADD/ADD_ADM command and
// discards it before a fresh one is generated. CgkaAddProposal is not
// resumable — it always mints a new commit and a new welcome — so the
// only safe recovery after a crash between StagePendingWelcome and the
// server accepting the proposal is to abandon the stale welcome rather
// than resend it (spec.md §9 welcome-message durability).
func (c *Client) discardStaleWelcome(targetUID, key string) {
	if _, err := c.store.LoadPendingWelcome(targetUID, key); err != nil {
		return
	}
	c.log.With("target", targetUID).Warn("discarding welcome staged by an interrupted previous attempt")
	if err := c.store.ClearPendingWelcome(targetUID, key); err != nil {
		c.log.WithError(err, "transport_failure").Warn("failed to clear stale staged welcome")
	}
}

func (c *Client) save(session *Session) error {
	blob, err := session.MarshalCBOR()
	if err != nil {
		return grapperr.Wrap("grappa.save", grapperr.Serialization, err)
	}
	if err := c.store.Save(session.UserID, session.FolderID, blob); err != nil {
		return grapperr.Wrap("grappa.save", grapperr.TransportFailure, err)
	}
	return nil
}

// load reloads a session from disk, used on command entry and on the
// failure path of execCtrl (spec.md §4.5 "Failure semantics").
func (c *Client) load(userID, folderID string) (*Session, error) {
	blob, err := c.store.Load(userID, folderID)
	if err != nil {
		return nil, grapperr.Wrap("grappa.load", grapperr.TransportFailure, err)
	}
	session := &Session{UserID: userID, FolderID: folderID}
	if err := session.UnmarshalCBOR(blob); err != nil {
		return nil, grapperr.Wrap("grappa.load", grapperr.Serialization, err)
	}
	return session, nil
}

// replenishKeyPackage publishes one fresh key package for userID so
// other folders can add them (spec.md §4.5 "Key-package replenishment").
func (c *Client) replenishKeyPackage(userID string) error {
	kp, err := c.cgka.GenerateKeyPackage(userID)
	if err != nil {
		return err
	}
	blob, err := marshalKeyPackage(kp)
	if err != nil {
		return err
	}
	return c.mw.SendKeyPackage(userID, blob)
}
