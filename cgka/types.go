package cgka

import "errors"

// AuthTag binds an application message's plaintext semantics to the
// CGKA's authenticated-data channel (spec.md §4.4).
type AuthTag uint8

const (
	// KpExt tags a KaPPA extension delivered to existing members.
	KpExt AuthTag = iota
	// KpInt tags a single-epoch interval delivered to a newly added member.
	KpInt
	// KpState tags a full serialized KaPPA state delivered to admins.
	KpState
)

func (t AuthTag) String() string {
	switch t {
	case KpExt:
		return "kp_ext"
	case KpInt:
		return "kp_int"
	case KpState:
		return "kp_state"
	default:
		return "unknown"
	}
}

var (
	// ErrUnknownUser is returned when an operation names a user id that
	// init_client was never called for.
	ErrUnknownUser = errors.New("cgka: unknown user")
	// ErrUnknownGroup is returned when an operation names a (uid, gid)
	// pair with no group state.
	ErrUnknownGroup = errors.New("cgka: unknown group")
	// ErrNoPendingCommit is returned by apply/delete-pending-commit when
	// the group has no staged proposal.
	ErrNoPendingCommit = errors.New("cgka: no pending commit")
	// ErrPendingCommitExists is returned when a second proposal is staged
	// before the first is applied or deleted (at-most-one-in-flight,
	// spec.md §5).
	ErrPendingCommitExists = errors.New("cgka: pending commit already staged")
	// ErrNotMember is returned when an operation targets a group the
	// user has not joined.
	ErrNotMember = errors.New("cgka: user is not a member of the group")
	// ErrInvalidWelcome is returned when join_group is given a malformed
	// or undecryptable welcome message.
	ErrInvalidWelcome = errors.New("cgka: invalid welcome message")
	// ErrKeyPackageExhausted is returned by generate_key_package when a
	// user's identity has not been initialized.
	ErrKeyPackageExhausted = errors.New("cgka: no identity to derive a key package from")
)

// KeyPackage is a one-shot admission credential for a user: a signed
// ephemeral public key the group's current members use to derive a
// welcome message for the holder.
type KeyPackage struct {
	UID       string
	PublicKey []byte
	Signature []byte
}

// Client is the CGKA adapter contract of spec.md §4.4: every GRaPPA
// component that needs group-key-agreement operations depends on this
// interface, never on a concrete implementation.
type Client interface {
	// InitClient idempotently creates uid's long-term identity and
	// signature state.
	InitClient(uid string) error
	// GenerateKeyPackage returns a fresh key package blob for uid,
	// usable once for group admission.
	GenerateKeyPackage(uid string) (*KeyPackage, error)
	// CgkaInit creates empty group state for (uid, gid).
	CgkaInit(uid, gid string) error
	// CgkaAddProposal stages a pending commit adding kp's holder to
	// (uid, gid), returning the control message for existing members and
	// the welcome message for the new member.
	CgkaAddProposal(uid, gid string, kp *KeyPackage) (controlMsg, welcomeMsg []byte, err error)
	// CgkaRemoveProposal stages a pending commit removing targetUID from
	// (uid, gid), returning the control message.
	CgkaRemoveProposal(uid, gid, targetUID string) (controlMsg []byte, err error)
	// CgkaUpdateKeys stages a pending commit refreshing uid's leaf key in
	// (uid, gid), returning the control message.
	CgkaUpdateKeys(uid, gid string) (controlMsg []byte, err error)
	// CgkaApplyPendingCommit advances (uid, gid)'s local state to the
	// staged commit.
	CgkaApplyPendingCommit(uid, gid string) error
	// CgkaDeletePendingCommit discards the staged commit for (uid, gid)
	// without advancing state.
	CgkaDeletePendingCommit(uid, gid string) error
	// CgkaJoinGroup initializes uid's group state from a welcome message,
	// returning the group id it joined.
	CgkaJoinGroup(uid string, welcome []byte) (gid string, err error)
	// PrepareAppMsg authenticates data under (uid, gid)'s current epoch
	// secret, bound to tag.
	PrepareAppMsg(uid, gid string, data []byte, tag AuthTag) ([]byte, error)
	// ProcessIncomingMsg processes msg for (uid, gid): if msg is an
	// application message, returns its plaintext and tag with
	// isCommit=false; if msg is a commit, advances group state and
	// returns isCommit=true.
	ProcessIncomingMsg(uid, gid string, msg []byte) (data []byte, tag AuthTag, isCommit bool, err error)
}
