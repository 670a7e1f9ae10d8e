// Package grappa implements the per-client protocol orchestrator of
// spec.md §4.5: it drives dual-group CGKA commits in the right order,
// runs kappa progressions, builds application messages, talks to the
// server middleware, and processes inbound commits — composing the
// cgka, kappa, server, metadata, and state packages into the commands a
// folder session exposes.
package grappa
