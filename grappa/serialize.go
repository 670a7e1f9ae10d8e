package grappa

import (
	"fmt"

	"github.com/nicdard/grappa/kappa"
	"github.com/nicdard/grappa/wire"
)

// wireSession is the on-disk shape of spec.md §6's persistence contract:
// a role tag plus group ids, with exactly one of KappaBytes (admin) or
// IntervalBytes (member) populated.
type wireSession struct {
	Role          string `cbor:"role"` // "admin" or "member"
	MemberGroupID string `cbor:"member_group_id"`
	AdminGroupID  string `cbor:"admin_group_id,omitempty"`
	KappaBytes    []byte `cbor:"kappa,omitempty"`
	IntervalBytes []byte `cbor:"interval,omitempty"`
}

// MarshalCBOR encodes a session for persistence via state.Store.
func (s *Session) MarshalCBOR() ([]byte, error) {
	switch st := s.State.(type) {
	case AdminState:
		kappaBytes, err := st.Kappa.MarshalCBOR()
		if err != nil {
			return nil, err
		}
		return wire.Marshal(&wireSession{
			Role:          "admin",
			MemberGroupID: st.MemberGroupID,
			AdminGroupID:  st.AdminGroupID,
			KappaBytes:    kappaBytes,
		})
	case MemberState:
		intervalBytes, err := st.Interval.MarshalCBOR()
		if err != nil {
			return nil, err
		}
		return wire.Marshal(&wireSession{
			Role:          "member",
			MemberGroupID: st.MemberGroupID,
			IntervalBytes: intervalBytes,
		})
	default:
		return nil, fmt.Errorf("grappa: unknown client state type %T", s.State)
	}
}

// UnmarshalCBOR decodes a session previously produced by MarshalCBOR.
// UserID and FolderID are not part of the wire format (they are the
// store's lookup key) and must be set by the caller after this returns.
func (s *Session) UnmarshalCBOR(data []byte) error {
	var w wireSession
	if err := wire.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Role {
	case "admin":
		var ks kappa.State
		if err := ks.UnmarshalCBOR(w.KappaBytes); err != nil {
			return err
		}
		s.State = AdminState{MemberGroupID: w.MemberGroupID, AdminGroupID: w.AdminGroupID, Kappa: &ks}
	case "member":
		var iv kappa.Interval
		if err := iv.UnmarshalCBOR(w.IntervalBytes); err != nil {
			return err
		}
		s.State = MemberState{MemberGroupID: w.MemberGroupID, Interval: &iv}
	default:
		return fmt.Errorf("grappa: unknown persisted role %q", w.Role)
	}
	return nil
}
