// Package cgka defines the adapter contract GRaPPA consumes from an
// underlying continuous-group-key-agreement library (an MLS-style group
// messaging stack), plus InProcessClient: a reference implementation of
// that contract built only from cryptoutil primitives.
//
// The contract is intentionally narrow — group state keyed by (user id,
// group id), one pending commit per group, welcome messages for new
// joiners, and application messages authenticated under the group's
// current epoch secret — because the real CGKA implementation is
// external to this module; grappa depends only on the Client interface.
// InProcessClient lets the rest of the module be exercised end to end
// without that external dependency, and is not a production MLS stack.
package cgka
