// Package callid computes the content-addressed identity of a call:
// id = H(node_ref ‖ canonical_encode(args) ‖ canonical_encode(kwargs)),
// where a Ref slot contributes its child's already-computed id rather than
// being re-encoded itself. The hash underlies every memoization and
// structural-sharing guarantee the scheduler relies on.
package callid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Size is the length in bytes of an ID.
const Size = sha256.Size

// ID is a content hash identifying a call. Two calls with an identical ID
// are the same entity.
type ID [Size]byte

// Zero reports whether id has never been assigned.
func (id ID) Zero() bool {
	return id == ID{}
}

// String renders id as lowercase hex (64 characters): a grep-friendly
// identifier.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler, letting an ID sit inside
// JSON or YAML as a plain hex string.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("callid: invalid id %q: %w", text, err)
	}
	if len(decoded) != Size {
		return fmt.Errorf("callid: invalid id length %q: want %d bytes, got %d", text, Size, len(decoded))
	}
	copy(id[:], decoded)
	return nil
}

// NodeRef names the node a call invokes: a graph id paired with the node's
// registration name. It is plain data (no pointer into the graph package)
// specifically to avoid an import cycle between internal/call and
// internal/graph — the executor resolves a NodeRef to an actual callable
// only at dispatch time.
type NodeRef struct {
	GraphID string
	Node    string
}

func (r NodeRef) String() string {
	return fmt.Sprintf("%s/%s", r.GraphID, r.Node)
}

// Builder accumulates the byte sequence a call's id is computed over, then
// finalizes it with a single sha256 sum. Using crypto/sha256 directly (no
// third-party hashing library) is deliberate: none of the example repos
// pulls in a hashing dependency, and content-addressing with the standard
// library's sha256 is the idiomatic Go default for this kind of work.
type Builder struct {
	h []byte
}

// NewBuilder starts a fresh id computation rooted at ref.
func NewBuilder(ref NodeRef) *Builder {
	b := &Builder{}
	b.writeString(ref.GraphID)
	b.writeString(ref.Node)
	return b
}

// AddLiteral folds in a literal slot's canonical encoding.
func (b *Builder) AddLiteral(encoded []byte) {
	b.writeTag('L')
	b.writeBytes(encoded)
}

// AddRef folds in a Ref slot by its child's already-computed id, so the
// hash recurses without re-encoding the child's own arguments: recursion
// terminates at literals.
func (b *Builder) AddRef(child ID) {
	b.writeTag('R')
	b.writeBytes(child[:])
}

// EndArgs marks the boundary between the positional-argument section and
// the keyword-argument section, so (args=[a], kwargs={"x": b}) cannot
// collide with (args=[a, b], kwargs={"x": ...}).
func (b *Builder) EndArgs() {
	b.writeTag(';')
}

// Sum finalizes the accumulated bytes into an ID.
func (b *Builder) Sum() ID {
	sum := sha256.Sum256(b.h)
	return ID(sum)
}

func (b *Builder) writeTag(tag byte) {
	b.h = append(b.h, tag)
}

func (b *Builder) writeString(s string) {
	b.writeBytes([]byte(s))
}

// writeBytes length-prefixes v so adjacent fields can never be confused by
// concatenation (e.g. "ab"+"c" vs "a"+"bc").
func (b *Builder) writeBytes(v []byte) {
	n := len(v)
	b.h = append(b.h,
		byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	b.h = append(b.h, v...)
}
