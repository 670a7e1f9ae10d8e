package cgka

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/nicdard/grappa/cryptoutil"
	"github.com/nicdard/grappa/wire"
)

// KeyPackageLowWatermark mirrors the teacher's pre-key replenishment
// pattern: once a user's unconsumed key-package count drops to or below
// this value, InProcessClient logs a warning so a caller knows to
// replenish (spec.md §4.5's "publishes one fresh key package" is driven
// by grappa; this counter only makes the condition observable).
const KeyPackageLowWatermark = 3

type groupState struct {
	epoch      uint64
	secret     []byte // current epoch secret
	prevSecret []byte // secret immediately preceding the current one
	members    map[string]bool
	pending    *pendingCommit
}

type pendingCommit struct {
	op        string // "add", "remove", "update"
	targetUID string
	newSecret []byte
}

type wireMessage struct {
	Kind   string `cbor:"kind"` // "commit" or "app"
	Sealed []byte `cbor:"sealed"`
}

type commitPayload struct {
	Op        string `cbor:"op"`
	TargetUID string `cbor:"target_uid"`
}

type appPayload struct {
	Tag  AuthTag `cbor:"tag"`
	Data []byte  `cbor:"data"`
}

type welcomeEnvelope struct {
	Gid     string   `cbor:"gid"`
	Epoch   uint64   `cbor:"epoch"`
	Secret  []byte   `cbor:"secret"`
	Members []string `cbor:"members"`
}

// InProcessClient is a reference implementation of Client backing an
// entire simulated network of users in one shared process: group state
// is keyed by group id alone, and every (uid, gid) operation reads or
// mutates that shared state on the acting user's behalf. This is the
// simplification that lets InProcessClient stand in for a real MLS
// binding in tests: it is not a production implementation, and does not
// give each simulated user an independently-replicated view of group
// state the way a real CGKA client would.
type InProcessClient struct {
	mu         sync.Mutex
	log        *cryptoutil.Logger
	identities map[string]*cryptoutil.IdentityKeyPair
	pools      map[string]int // unconsumed key-package count per uid
	lastIssued map[string]*KeyPackage
	groups     map[string]*groupState
}

// NewInProcessClient constructs an empty in-process CGKA simulator.
func NewInProcessClient() *InProcessClient {
	return &InProcessClient{
		log:        cryptoutil.NewLogger("cgka", "InProcessClient"),
		identities: make(map[string]*cryptoutil.IdentityKeyPair),
		pools:      make(map[string]int),
		lastIssued: make(map[string]*KeyPackage),
		groups:     make(map[string]*groupState),
	}
}

func (c *InProcessClient) InitClient(uid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.identities[uid]; ok {
		return nil
	}
	id, err := cryptoutil.GenerateIdentityKeyPair()
	if err != nil {
		return err
	}
	c.identities[uid] = id
	c.pools[uid] = 0
	return nil
}

func (c *InProcessClient) GenerateKeyPackage(uid string) (*KeyPackage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.identities[uid]
	if !ok {
		return nil, ErrKeyPackageExhausted
	}
	pub := make([]byte, cryptoutil.SymmetricKeySize)
	if _, err := rand.Read(pub); err != nil {
		return nil, fmt.Errorf("cgka: sampling ephemeral key: %w", err)
	}
	sig, err := id.Sign(pub)
	if err != nil {
		return nil, err
	}
	kp := &KeyPackage{UID: uid, PublicKey: pub, Signature: sig}
	c.lastIssued[uid] = kp
	c.pools[uid]++
	return kp, nil
}

// availableKeyPackages reports uid's unconsumed key-package count. The
// low-watermark warning in CgkaAddProposal reads c.pools directly, since
// it already holds the lock.
func (c *InProcessClient) availableKeyPackages(uid string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pools[uid]
}

func (c *InProcessClient) requireGroup(gid string) (*groupState, error) {
	g, ok := c.groups[gid]
	if !ok {
		return nil, ErrUnknownGroup
	}
	return g, nil
}

func (c *InProcessClient) requireMember(g *groupState, uid string) error {
	if !g.members[uid] {
		return ErrNotMember
	}
	return nil
}

func (c *InProcessClient) CgkaInit(uid, gid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.identities[uid]; !ok {
		return ErrUnknownUser
	}
	if _, ok := c.groups[gid]; ok {
		return nil // idempotent
	}
	secret := make([]byte, cryptoutil.SymmetricKeySize)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("cgka: sampling initial epoch secret: %w", err)
	}
	c.groups[gid] = &groupState{
		epoch:   0,
		secret:  secret,
		members: map[string]bool{uid: true},
	}
	return nil
}

func sealEnvelope(kind string, payload interface{}, key, ad []byte) ([]byte, error) {
	data, err := wire.Marshal(payload)
	if err != nil {
		return nil, err
	}
	sealed, err := cryptoutil.Seal(data, key, ad)
	if err != nil {
		return nil, err
	}
	return wire.Marshal(&wireMessage{Kind: kind, Sealed: sealed})
}

func (c *InProcessClient) CgkaAddProposal(uid, gid string, kp *KeyPackage) (controlMsg, welcomeMsg []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, err := c.requireGroup(gid)
	if err != nil {
		return nil, nil, err
	}
	if err := c.requireMember(g, uid); err != nil {
		return nil, nil, err
	}
	if g.pending != nil {
		return nil, nil, ErrPendingCommitExists
	}
	holderIdentity, ok := c.identities[kp.UID]
	if !ok {
		return nil, nil, ErrUnknownUser
	}
	if !cryptoutil.Verify(kp.PublicKey, kp.Signature, holderIdentity.Public) {
		return nil, nil, fmt.Errorf("cgka: key package signature verification failed for %q", kp.UID)
	}

	newSecret := make([]byte, cryptoutil.SymmetricKeySize)
	if _, err := rand.Read(newSecret); err != nil {
		return nil, nil, fmt.Errorf("cgka: sampling new epoch secret: %w", err)
	}
	g.pending = &pendingCommit{op: "add", targetUID: kp.UID, newSecret: newSecret}

	controlMsg, err = sealEnvelope("commit", &commitPayload{Op: "add", TargetUID: kp.UID}, g.secret, []byte(gid))
	if err != nil {
		return nil, nil, err
	}

	wrapKey, err := cryptoutil.HKDFExpand(kp.PublicKey, "cgka-welcome", cryptoutil.SymmetricKeySize)
	if err != nil {
		return nil, nil, err
	}
	members := make([]string, 0, len(g.members)+1)
	for m := range g.members {
		members = append(members, m)
	}
	members = append(members, kp.UID)
	env := &welcomeEnvelope{Gid: gid, Epoch: g.epoch + 1, Secret: newSecret, Members: members}
	data, err := wire.Marshal(env)
	if err != nil {
		return nil, nil, err
	}
	welcomeMsg, err = cryptoutil.Seal(data, wrapKey, nil)
	if err != nil {
		return nil, nil, err
	}

	if remaining := c.pools[kp.UID] - 1; remaining <= KeyPackageLowWatermark {
		c.log.With("uid", kp.UID).With("available", remaining).Warn("key package pool running low")
	}
	c.pools[kp.UID]--
	if c.lastIssued[kp.UID] == kp {
		delete(c.lastIssued, kp.UID)
	}

	return controlMsg, welcomeMsg, nil
}

func (c *InProcessClient) CgkaRemoveProposal(uid, gid, targetUID string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, err := c.requireGroup(gid)
	if err != nil {
		return nil, err
	}
	if err := c.requireMember(g, uid); err != nil {
		return nil, err
	}
	if g.pending != nil {
		return nil, ErrPendingCommitExists
	}
	if !g.members[targetUID] {
		return nil, ErrNotMember
	}

	newSecret := make([]byte, cryptoutil.SymmetricKeySize)
	if _, err := rand.Read(newSecret); err != nil {
		return nil, fmt.Errorf("cgka: sampling new epoch secret: %w", err)
	}
	g.pending = &pendingCommit{op: "remove", targetUID: targetUID, newSecret: newSecret}

	return sealEnvelope("commit", &commitPayload{Op: "remove", TargetUID: targetUID}, g.secret, []byte(gid))
}

func (c *InProcessClient) CgkaUpdateKeys(uid, gid string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, err := c.requireGroup(gid)
	if err != nil {
		return nil, err
	}
	if err := c.requireMember(g, uid); err != nil {
		return nil, err
	}
	if g.pending != nil {
		return nil, ErrPendingCommitExists
	}

	newSecret := make([]byte, cryptoutil.SymmetricKeySize)
	if _, err := rand.Read(newSecret); err != nil {
		return nil, fmt.Errorf("cgka: sampling new epoch secret: %w", err)
	}
	g.pending = &pendingCommit{op: "update", newSecret: newSecret}

	return sealEnvelope("commit", &commitPayload{Op: "update"}, g.secret, []byte(gid))
}

func (c *InProcessClient) CgkaApplyPendingCommit(uid, gid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, err := c.requireGroup(gid)
	if err != nil {
		return err
	}
	if g.pending == nil {
		return ErrNoPendingCommit
	}
	p := g.pending
	g.prevSecret = g.secret
	g.secret = p.newSecret
	g.epoch++
	switch p.op {
	case "add":
		g.members[p.targetUID] = true
	case "remove":
		delete(g.members, p.targetUID)
	}
	g.pending = nil
	return nil
}

func (c *InProcessClient) CgkaDeletePendingCommit(uid, gid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, err := c.requireGroup(gid)
	if err != nil {
		return err
	}
	if g.pending == nil {
		return ErrNoPendingCommit
	}
	g.pending = nil
	return nil
}

func (c *InProcessClient) CgkaJoinGroup(uid string, welcome []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kp, ok := c.lastIssued[uid]
	if !ok {
		return "", ErrInvalidWelcome
	}
	wrapKey, err := cryptoutil.HKDFExpand(kp.PublicKey, "cgka-welcome", cryptoutil.SymmetricKeySize)
	if err != nil {
		return "", err
	}
	data, err := cryptoutil.Open(welcome, wrapKey, nil)
	if err != nil {
		return "", ErrInvalidWelcome
	}
	var env welcomeEnvelope
	if err := wire.Unmarshal(data, &env); err != nil {
		return "", ErrInvalidWelcome
	}

	members := make(map[string]bool, len(env.Members))
	for _, m := range env.Members {
		members[m] = true
	}
	c.groups[env.Gid] = &groupState{epoch: env.Epoch, secret: env.Secret, members: members}
	delete(c.lastIssued, uid)
	if c.pools[uid] > 0 {
		c.pools[uid]--
	}
	return env.Gid, nil
}

func (c *InProcessClient) PrepareAppMsg(uid, gid string, data []byte, tag AuthTag) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, err := c.requireGroup(gid)
	if err != nil {
		return nil, err
	}
	if err := c.requireMember(g, uid); err != nil {
		return nil, err
	}
	return sealEnvelope("app", &appPayload{Tag: tag, Data: data}, g.secret, []byte(gid))
}

func (c *InProcessClient) ProcessIncomingMsg(uid, gid string, msg []byte) ([]byte, AuthTag, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, err := c.requireGroup(gid)
	if err != nil {
		return nil, 0, false, err
	}

	var env wireMessage
	if err := wire.Unmarshal(msg, &env); err != nil {
		return nil, 0, false, fmt.Errorf("cgka: decoding message: %w", err)
	}

	switch env.Kind {
	case "app":
		plaintext, err := cryptoutil.Open(env.Sealed, g.secret, []byte(gid))
		if err != nil {
			return nil, 0, false, fmt.Errorf("cgka: opening application message: %w", err)
		}
		var payload appPayload
		if err := wire.Unmarshal(plaintext, &payload); err != nil {
			return nil, 0, false, err
		}
		return payload.Data, payload.Tag, false, nil
	case "commit":
		if g.prevSecret != nil {
			if _, err := cryptoutil.Open(env.Sealed, g.prevSecret, []byte(gid)); err == nil {
				return nil, 0, true, nil
			}
		}
		if _, err := cryptoutil.Open(env.Sealed, g.secret, []byte(gid)); err != nil {
			return nil, 0, false, fmt.Errorf("cgka: opening commit message: %w", err)
		}
		return nil, 0, true, nil
	default:
		return nil, 0, false, fmt.Errorf("cgka: unknown message kind %q", env.Kind)
	}
}
