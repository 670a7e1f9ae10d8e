// Package kappa implements KaPPA, the Double key Progression scheme of
// spec.md §4.3: two parallel families of [github.com/nicdard/grappa/sskg]
// chains — a forward family consumed left-to-right and a backward family
// consumed right-to-left — whose outputs are combined at each epoch via
// [github.com/nicdard/grappa/dualprf] into a single AES-256-GCM epoch key.
//
// A [State] owns the full chain history for a folder and can be queried
// for any epoch in [0, MaxEpoch]. A [Interval] is the exportable subset an
// admin hands to a member: the chains covering exactly [Left, Right], with
// the leading forward chain pre-seeked to the interval's start and the
// trailing backward chain shortened to the interval's end, so a holder of
// an Interval can derive exactly the epoch keys it was authorized for and
// no others.
//
// Blocks ([BlockKind]) are the mechanism for forward/backward security:
// progressing with a ForwardBlock starts a fresh forward chain unrelated
// to the previous one, so holders of the old chain cannot derive forward
// keys at or after the block (and symmetrically for BackwardBlock).
// Chains are also forced to a new boundary whenever they would otherwise
// span more than MaxIntervalWithoutBlocks epochs.
package kappa
