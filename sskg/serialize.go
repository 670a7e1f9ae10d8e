package sskg

import "github.com/nicdard/grappa/wire"

// wireNode and wireSSKG are the CBOR-friendly plain-struct mirrors of the
// unexported node/SSKG fields, per spec.md §4.1's serialization contract:
// the pair (name, N, stack as a sequence of (secret_bytes, height)).

type wireNode struct {
	Secret []byte `cbor:"secret"`
	Height uint   `cbor:"height"`
}

type wireSSKG struct {
	Name    string     `cbor:"name"`
	MaxLen  uint64     `cbor:"max_len"`
	Stack   []wireNode `cbor:"stack"`
	Visited uint64     `cbor:"visited"`
}

// Export converts the SSKG to its CBOR-serializable form. The result is an
// independent copy; mutating it never affects s.
func (s *SSKG) Export() wireSSKG {
	stack := make([]wireNode, len(s.stack))
	for i, n := range s.stack {
		secret := make([]byte, len(n.secret))
		copy(secret, n.secret)
		stack[i] = wireNode{Secret: secret, Height: n.height}
	}
	return wireSSKG{Name: s.name, MaxLen: s.maxLen, Stack: stack, Visited: s.visited}
}

// Import reconstructs an SSKG from its wire form. seeked is derived from
// Visited, not from stack length: a freshly-generated, never-advanced
// generator already has a one-entry stack, so stack length alone cannot
// distinguish it from one that has been advanced.
func Import(w wireSSKG) *SSKG {
	stack := make([]node, len(w.Stack))
	for i, n := range w.Stack {
		secret := make([]byte, len(n.Secret))
		copy(secret, n.Secret)
		stack[i] = node{secret: secret, height: n.Height}
	}
	return &SSKG{name: w.Name, maxLen: w.MaxLen, stack: stack, seeked: w.Visited > 0, visited: w.Visited}
}

// MarshalCBOR implements cbor.Marshaler via the wire form.
func (s *SSKG) MarshalCBOR() ([]byte, error) {
	return wire.Marshal(s.Export())
}

// UnmarshalCBOR implements cbor.Unmarshaler via the wire form.
func (s *SSKG) UnmarshalCBOR(data []byte) error {
	var w wireSSKG
	if err := wire.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = *Import(w)
	return nil
}
