// Package sskg implements a Seekable Sequential Key Generator: a binary
// tree-based construction (Marson & Poettering, https://eprint.iacr.org/2014/479.pdf)
// that produces an indexable sequence of forward-secure keys from a single
// seed, with O(log N) state and O(log N) seeks.
//
// The tree has height h = ceil(log2(N+1)) where N is the maximum sequence
// length. State is a stack of (node secret, subtree height) pairs
// representing the in-order-traversal frontier of the unvisited part of the
// tree; the concatenation of leaves, in visiting order, is the output
// sequence. Advancing to the next leaf ([SSKG.Next]) pops the top of the
// stack and, unless it is already a leaf, pushes its two children (right
// before left, so left is popped first next). [SSKG.Seek] walks from a
// fresh root choosing a left (consume one leaf) or right (skip 2^(h-1)
// leaves) branch at each level. [SSKG.Superseek] first discards whole
// subtrees already behind the current position before descending, so it
// can be called repeatedly on a generator that has already advanced.
//
// Every PRF step — deriving the seed from the root, deriving a leaf's
// output key, and deriving each child from its parent — is an HKDF
// expansion under a fixed label ("seed", "key", "left", "right"), via
// [github.com/nicdard/grappa/cryptoutil.HKDFExpand].
package sskg
