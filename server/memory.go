package server

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// proposalRecord is one accepted (Proposal, *ApplicationMessage) pair
// sitting in a folder's queue, tracked per-recipient until each
// recipient acks it.
type proposalRecord struct {
	ids        []string
	proposal   *Proposal
	appMsg     *ApplicationMessage
	pendingFor map[string]bool
}

type folderState struct {
	acl       map[string]bool
	proposals []*proposalRecord
}

// MemoryMiddleware is an in-memory reference implementation of
// Middleware: per-folder FIFO proposal/application-message queues, an
// ACL table, and a global key-package mailbox per user. It is a test
// double, not a production delivery service (spec.md §1 scopes the real
// server out), grounded on the teacher's in-memory transport mock
// pattern (mutex-guarded slices, constructor logging).
type MemoryMiddleware struct {
	mu          sync.Mutex
	folders     map[string]*folderState
	keyPackages map[string][][]byte
}

// NewMemoryMiddleware constructs an empty in-memory server double.
func NewMemoryMiddleware() *MemoryMiddleware {
	logrus.WithFields(logrus.Fields{
		"package":  "server",
		"function": "NewMemoryMiddleware",
	}).Debug("creating in-memory middleware reference implementation")
	return &MemoryMiddleware{
		folders:     make(map[string]*folderState),
		keyPackages: make(map[string][][]byte),
	}
}

func (m *MemoryMiddleware) folder(folderID string) *folderState {
	f, ok := m.folders[folderID]
	if !ok {
		f = &folderState{acl: make(map[string]bool)}
		m.folders[folderID] = f
	}
	return f
}

// Bootstrap seeds a folder's ACL with its creator. Not part of the
// Middleware contract: grappa's CreateGroup calls it once, out of band,
// to establish the first ACL entry the rest of the protocol extends.
func (m *MemoryMiddleware) Bootstrap(creatorUID, folderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folder(folderID).acl[creatorUID] = true
}

func (m *MemoryMiddleware) SendKeyPackage(uid string, keyPackage []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyPackages[uid] = append(m.keyPackages[uid], keyPackage)
	return nil
}

func (m *MemoryMiddleware) FetchKeyPackageForUidWithFolder(uid, targetUID, folderID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.folder(folderID)
	if !f.acl[uid] {
		return nil, ErrNotAuthorized
	}
	pool := m.keyPackages[targetUID]
	if len(pool) == 0 {
		return nil, ErrNoKeyPackage
	}
	m.keyPackages[targetUID] = pool[1:]
	return pool[0], nil
}

func (m *MemoryMiddleware) enqueue(uid, folderID string, p *Proposal) ([]string, error) {
	f := m.folder(folderID)
	if !f.acl[uid] {
		return nil, ErrNotAuthorized
	}
	for _, rec := range f.proposals {
		if rec.pendingFor[uid] {
			return nil, ErrConflict
		}
	}

	pendingFor := make(map[string]bool, len(f.acl))
	for member := range f.acl {
		if member != uid {
			pendingFor[member] = true
		}
	}
	rec := &proposalRecord{
		ids:        []string{uuid.NewString()},
		proposal:   p,
		pendingFor: pendingFor,
	}
	f.proposals = append(f.proposals, rec)
	return rec.ids, nil
}

func (m *MemoryMiddleware) SendProposal(uid, folderID string, p *Proposal) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enqueue(uid, folderID, p)
}

func (m *MemoryMiddleware) ShareProposal(uid, folderID string, p *Proposal) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The new member must already be an ACL entry when enqueue builds
	// pendingFor, or it has no way to fetch its own welcome.
	if p.NewMemberUID != "" {
		m.folder(folderID).acl[p.NewMemberUID] = true
	}
	return m.enqueue(uid, folderID, p)
}

func (m *MemoryMiddleware) FetchPendingProposal(uid, folderID string) (*Proposal, *ApplicationMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.folder(folderID)
	if !f.acl[uid] {
		return nil, nil, ErrNotAuthorized
	}
	for _, rec := range f.proposals {
		if rec.pendingFor[uid] {
			return rec.proposal, rec.appMsg, nil
		}
	}
	return nil, nil, nil
}

func (m *MemoryMiddleware) AckProposal(uid, folderID string, p *Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.folder(folderID)
	var remaining []*proposalRecord
	for _, rec := range f.proposals {
		if rec.proposal == p {
			delete(rec.pendingFor, uid)
		}
		if len(rec.pendingFor) > 0 {
			remaining = append(remaining, rec)
		}
	}
	f.proposals = remaining
	return nil
}

func (m *MemoryMiddleware) SendApplicationMessage(uid, folderID string, msg *ApplicationMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.folder(folderID)
	if !f.acl[uid] {
		return ErrNotAuthorized
	}
	matched := false
	for _, rec := range f.proposals {
		if sameIDs(rec.ids, msg.MessageIDs) {
			rec.appMsg = msg
			matched = true
		}
	}
	if !matched {
		return fmt.Errorf("%w: %v", ErrUnknownMessageIDs, msg.MessageIDs)
	}
	return nil
}

func (m *MemoryMiddleware) SendRemoveSelf(uid, folderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.folder(folderID)
	delete(f.acl, uid)
	var remaining []*proposalRecord
	for _, rec := range f.proposals {
		delete(rec.pendingFor, uid)
		if len(rec.pendingFor) > 0 {
			remaining = append(remaining, rec)
		}
	}
	f.proposals = remaining
	return nil
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		if !seen[id] {
			return false
		}
	}
	return true
}
