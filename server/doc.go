// Package server defines the delivery-service contract GRaPPA clients
// depend on (spec.md §6) and MemoryMiddleware, an in-memory reference
// implementation of it used by the package's own tests and by grappa's
// integration tests. The contract is deliberately thin: per-folder FIFO
// ordering, ACL enforcement, and opaque byte blobs for every proposal and
// application message. A production delivery service is out of scope
// (spec.md §1); MemoryMiddleware is a test double, grounded on the
// teacher's in-memory transport mock pattern.
package server
