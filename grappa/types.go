package grappa

import (
	"github.com/nicdard/grappa/kappa"
	"github.com/nicdard/grappa/server"
)

// Command is the tagged union of grappa operations (spec.md §9): each
// variant carries exactly the fields its dispatch needs. Construct one
// via the New* helpers rather than the zero value.
type Command struct {
	Kind      server.CommandKind
	TargetUID string // ADD, REM, ADD_ADM, REM_ADM
}

func NewAdd(uid string) Command       { return Command{Kind: server.CommandAdd, TargetUID: uid} }
func NewRemove(uid string) Command    { return Command{Kind: server.CommandRemove, TargetUID: uid} }
func NewAddAdmin(uid string) Command  { return Command{Kind: server.CommandAddAdmin, TargetUID: uid} }
func NewRemAdmin(uid string) Command  { return Command{Kind: server.CommandRemAdmin, TargetUID: uid} }
func NewUpdateAdmin() Command         { return Command{Kind: server.CommandUpdAdmin} }
func NewRotateKeys() Command          { return Command{Kind: server.CommandRotKeys} }
func NewUpdateUser() Command          { return Command{Kind: server.CommandUpdUser} }

// ClientState is the sum type Admin{...} | Member{...} of spec.md §3.
// Operations that require a specific variant type-switch on it and
// return grapperr.PreconditionViolation for the wrong one.
type ClientState interface {
	isClientState()
}

// AdminState is an admin's session state: membership in both CGKA
// groups plus the full KaPPA, from which any DoubleChainsInterval can be
// reconstructed.
type AdminState struct {
	MemberGroupID string
	AdminGroupID  string
	Kappa         *kappa.State
}

func (AdminState) isClientState() {}

// MemberState is a member's session state: membership in the member
// CGKA group plus the authorized interval [join_epoch, current_epoch].
type MemberState struct {
	MemberGroupID string
	Interval      *kappa.Interval
}

func (MemberState) isClientState() {}

// Session is one client's persisted state for a single (user, folder)
// pair (spec.md §3 "Ownership & lifecycle").
type Session struct {
	UserID   string
	FolderID string
	State    ClientState
}
