package kappa

import (
	"errors"

	"github.com/nicdard/grappa/sskg"
)

// BlockKind is the tagged union of block requests accepted by Progress,
// per spec.md §9's re-architecture note: commands are modeled as sum
// types, not an inheritance hierarchy.
type BlockKind uint8

const (
	// Empty progresses without severing either chain family.
	Empty BlockKind = iota
	// ForwardBlock starts a fresh forward chain, excluding holders of the
	// prior forward chain from deriving keys at or after this epoch.
	ForwardBlock
	// BackwardBlock starts a fresh backward chain, excluding holders of
	// the new chain from deriving keys strictly before this epoch.
	BackwardBlock
	// FullBlock starts fresh forward and backward chains.
	FullBlock
)

func (b BlockKind) String() string {
	switch b {
	case Empty:
		return "empty"
	case ForwardBlock:
		return "forward_block"
	case BackwardBlock:
		return "backward_block"
	case FullBlock:
		return "full_block"
	default:
		return "unknown"
	}
}

// DefaultMaxIntervalWithoutBlocks is the reference value of M (spec.md
// §4.3): the maximum number of epochs a chain may span before it is
// forced to a new boundary even absent an explicit block.
const DefaultMaxIntervalWithoutBlocks = 32

// ErrInvalidInterval is returned when a requested epoch range is outside
// [0, MaxEpoch] or has Left > Right (spec.md §7 PreconditionViolation).
var ErrInvalidInterval = errors.New("kappa: invalid epoch interval")

// ErrEpochNotCovered is returned when GetKey is asked for an epoch
// outside the interval or state it is given.
var ErrEpochNotCovered = errors.New("kappa: epoch not covered by interval")

// forwardChain is the triple (start_epoch, SSKG, ∅) of spec.md §3: the
// i-th output of gen is the forward key at startEpoch+i.
type forwardChain struct {
	startEpoch uint64
	gen        *sskg.SSKG
}

func (c forwardChain) clone() forwardChain {
	return forwardChain{startEpoch: c.startEpoch, gen: c.gen.Clone()}
}

// backwardChain is the triple (start_epoch, SSKG, length N) of spec.md
// §3: the j-th used output (from the right) corresponds to
// startEpoch + (length - 1 - j).
type backwardChain struct {
	startEpoch uint64
	gen        *sskg.SSKG
	length     uint64
}

func (c backwardChain) clone() backwardChain {
	return backwardChain{startEpoch: c.startEpoch, gen: c.gen.Clone(), length: c.length}
}

// endEpoch returns the last epoch this backward chain covers.
func (c backwardChain) endEpoch() uint64 {
	return c.startEpoch + c.length - 1
}

// State is a folder's full KaPPA state, held by an admin client
// (spec.md §3 AdminClientState).
type State struct {
	maxEpoch int64 // -1 before the first Progress call
	forward  []forwardChain
	backward []backwardChain
	m        uint64
}

// Interval is the DoubleChainsInterval of spec.md §3: the exportable
// subset of a State covering exactly [Left, Right], owning clones (never
// aliases) of every SSKG it references.
type Interval struct {
	Left, Right uint64
	forward     []forwardChain
	backward    []backwardChain
}

// MaxEpoch returns the largest epoch this state knows, or -1 if Progress
// has never been called (should not occur once New has run init).
func (s *State) MaxEpoch() int64 { return s.maxEpoch }

// M returns the configured max-interval-without-blocks parameter.
func (s *State) M() uint64 { return s.m }
