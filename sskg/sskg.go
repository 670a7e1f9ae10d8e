package sskg

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math"

	"github.com/nicdard/grappa/cryptoutil"
)

// ErrExhausted is returned when an operation would advance past the
// generator's configured maximum sequence length.
var ErrExhausted = errors.New("sskg: keyspace exhausted")

// ErrAlreadyAdvanced is returned by Seek when called on a generator that
// has already produced output via Next, Seek, or Superseek; Seek's
// precondition requires a fresh generator (use Superseek instead).
var ErrAlreadyAdvanced = errors.New("sskg: seek requires a fresh generator, use Superseek")

var (
	labelSeed  = "seed"
	labelKey   = "key"
	labelLeft  = "left"
	labelRight = "right"
)

// node is one stack entry: a node secret and the height of the subtree
// rooted at it (a height-1 node is a leaf).
type node struct {
	secret []byte
	height uint
}

func (n node) clone() node {
	s := make([]byte, len(n.secret))
	copy(s, n.secret)
	return node{secret: s, height: n.height}
}

// SSKG is a single indexable sequence of forward-secure keys.
type SSKG struct {
	name    string
	maxLen  uint64
	stack   []node
	seeked  bool // true once Seek or Superseek or Next has been called
	visited uint64
}

// Generate samples a fresh random seed and returns a new SSKG producing up
// to n outputs.
func Generate(name string, n uint64) (*SSKG, error) {
	seed := make([]byte, cryptoutil.KeySize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("sskg: generating seed: %w", err)
	}
	return FromSeed(name, n, seed)
}

// FromSeed constructs an SSKG deterministically from an existing seed. Used
// by tests and by deserialization paths that reconstruct a chain's root
// material.
func FromSeed(name string, n uint64, seed []byte) (*SSKG, error) {
	if n == 0 {
		return nil, errors.New("sskg: maximum sequence length must be positive")
	}
	root, err := cryptoutil.HKDFExpand(seed, labelSeed, cryptoutil.KeySize)
	if err != nil {
		return nil, err
	}
	height := treeHeight(n)
	return &SSKG{
		name:   name,
		maxLen: n,
		stack:  []node{{secret: root, height: height}},
	}, nil
}

// treeHeight returns ceil(log2(n+1)), the height of the smallest perfect
// binary tree with at least n leaves.
func treeHeight(n uint64) uint {
	if n == 0 {
		return 0
	}
	return uint(math.Ceil(math.Log2(float64(n) + 1)))
}

// Name returns the generator's identifying label (not used cryptographically).
func (s *SSKG) Name() string { return s.name }

// MaxLen returns the configured maximum sequence length N.
func (s *SSKG) MaxLen() uint64 { return s.maxLen }

// CurrentRawKey returns the raw PRF output for the current position, for
// use as an HMAC key by dualprf.Combine.
func (s *SSKG) CurrentRawKey() ([]byte, error) {
	if len(s.stack) == 0 {
		return nil, ErrExhausted
	}
	top := s.stack[len(s.stack)-1]
	return cryptoutil.HKDFExpand(top.secret, labelKey, cryptoutil.KeySize)
}

// Clone performs a deep copy, so seeking the clone never mutates the
// parent's secret material (spec.md §3's ownership invariant).
func (s *SSKG) Clone() *SSKG {
	stack := make([]node, len(s.stack))
	for i, n := range s.stack {
		stack[i] = n.clone()
	}
	return &SSKG{
		name:    s.name,
		maxLen:  s.maxLen,
		stack:   stack,
		seeked:  s.seeked,
		visited: s.visited,
	}
}

// Exhausted reports whether the generator has produced its last output.
func (s *SSKG) Exhausted() bool {
	return len(s.stack) == 0
}

func (s *SSKG) pop() (node, error) {
	if len(s.stack) == 0 {
		return node{}, ErrExhausted
	}
	top := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return top, nil
}

func (s *SSKG) push(n node) {
	s.stack = append(s.stack, n)
}

func (s *SSKG) derive(secret []byte, label string) ([]byte, error) {
	return cryptoutil.HKDFExpand(secret, label, cryptoutil.KeySize)
}

// Next advances the generator to the next output in the sequence.
func (s *SSKG) Next() error {
	top, err := s.pop()
	if err != nil {
		return err
	}
	if top.height > 1 {
		right, err := s.derive(top.secret, labelRight)
		if err != nil {
			return err
		}
		left, err := s.derive(top.secret, labelLeft)
		if err != nil {
			return err
		}
		s.push(node{secret: right, height: top.height - 1})
		s.push(node{secret: left, height: top.height - 1})
	}
	s.seeked = true
	s.visited++
	return nil
}

// Seek moves directly to the k-th output (0-indexed). Its precondition is
// that no Next/Seek/Superseek has yet been called on this instance — call
// Superseek instead on a generator that has already advanced.
func (s *SSKG) Seek(k uint64) error {
	if s.seeked {
		return ErrAlreadyAdvanced
	}
	return s.seekFrom(k)
}

// seekFrom performs the descend-and-skip walk starting from the current
// top-of-stack node, used by both Seek (fresh generator) and the tail of
// Superseek (after discarding whole subtrees).
func (s *SSKG) seekFrom(k uint64) error {
	top, err := s.pop()
	if err != nil {
		return err
	}
	n, h, secret := k, top.height, top.secret

	for n > 0 {
		if h <= 1 {
			return ErrExhausted
		}
		h--
		pow := uint64(1) << h
		if n < pow {
			right, err := s.derive(secret, labelRight)
			if err != nil {
				return err
			}
			s.push(node{secret: right, height: h})
			secret, err = s.derive(secret, labelLeft)
			if err != nil {
				return err
			}
			n--
		} else {
			secret, err = s.derive(secret, labelRight)
			if err != nil {
				return err
			}
			n -= pow
		}
	}

	s.push(node{secret: secret, height: h})
	s.seeked = true
	s.visited += k
	return nil
}

// Superseek moves k outputs ahead of the current position. Unlike Seek it
// is usable after any sequence of prior operations: it first discards
// whole subtrees from the stack while k is at least as large as the
// subtree's remaining leaf count (2^h - 1), then descends into the
// remaining subtree exactly as Seek does.
func (s *SSKG) Superseek(k uint64) error {
	delta := k
	for {
		if len(s.stack) == 0 {
			return ErrExhausted
		}
		top := s.stack[len(s.stack)-1]
		span := (uint64(1) << top.height) - 1
		if delta < span {
			break
		}
		if _, err := s.pop(); err != nil {
			return err
		}
		delta -= span
	}
	if err := s.seekFrom(delta); err != nil {
		return err
	}
	s.visited += k - delta
	return nil
}
