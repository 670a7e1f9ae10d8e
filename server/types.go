package server

import "errors"

// CommandKind tags a Proposal/ApplicationMessage with the GRaPPA command
// that produced it (spec.md §9: wire types are sums indexed by command
// kind). Defined here rather than imported from grappa so this package
// has no dependency on the orchestrator it serves.
type CommandKind string

const (
	CommandAdd      CommandKind = "ADD"
	CommandRemove   CommandKind = "REM"
	CommandAddAdmin CommandKind = "ADD_ADM"
	CommandRemAdmin CommandKind = "REM_ADM"
	CommandUpdAdmin CommandKind = "UPD_ADM"
	CommandRotKeys  CommandKind = "ROT_KEYS"
	CommandUpdUser  CommandKind = "UPD_USER"
)

// Proposal is the wire object of spec.md §6: the command variant plus
// whichever control/welcome blobs that variant produces. Unused fields
// are left nil; receivers dispatch on Command before reading them.
type Proposal struct {
	Command          CommandKind
	MemberControlMsg []byte
	AdminControlMsg  []byte
	MemberWelcomeMsg []byte // ADD only
	AdminWelcomeMsg  []byte // ADD_ADM only
	NewMemberUID     string // ADD/ADD_ADM only; ShareProposal (ADD) also adds it to the ACL
	RemovedMemberUID string // REM/REM_ADM only
}

// ApplicationMessage is the wire object of spec.md §6: the command
// variant plus the application payloads it carries and the proposal
// message ids it attaches to.
type ApplicationMessage struct {
	Command                 CommandKind
	MemberApplicationMsg    []byte // KpExt
	MemberApplicationIntMsg []byte // KpInt, ADD only
	AdminApplicationMsg     []byte // KpState
	MessageIDs              []string
}

var (
	// ErrNotAuthorized is returned when uid is not an ACL member of the
	// folder it is operating on.
	ErrNotAuthorized = errors.New("server: caller is not authorized for this folder")
	// ErrConflict is returned by SendProposal/ShareProposal when the
	// caller has unprocessed incoming messages (409 Conflict, spec.md §6).
	ErrConflict = errors.New("server: caller has pending incoming messages")
	// ErrNoKeyPackage is returned when a target user has no unconsumed
	// key package to hand out.
	ErrNoKeyPackage = errors.New("server: target has no available key package")
	// ErrUnknownMessageIDs is returned when an application message
	// references message ids the server has no record of.
	ErrUnknownMessageIDs = errors.New("server: application message references unknown message ids")
)

// Middleware is the server-side delivery contract GRaPPA clients depend
// on (spec.md §6). Every call is authenticated as uid; ACL checks happen
// out-of-band inside the implementation.
type Middleware interface {
	SendKeyPackage(uid string, keyPackage []byte) error
	FetchKeyPackageForUidWithFolder(uid, targetUID, folderID string) ([]byte, error)
	SendProposal(uid, folderID string, p *Proposal) ([]string, error)
	ShareProposal(uid, folderID string, p *Proposal) ([]string, error)
	FetchPendingProposal(uid, folderID string) (*Proposal, *ApplicationMessage, error)
	AckProposal(uid, folderID string, p *Proposal) error
	SendApplicationMessage(uid, folderID string, msg *ApplicationMessage) error
	SendRemoveSelf(uid, folderID string) error
}
