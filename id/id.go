// Package id defines TypeID-based identity types for datastruct entities.
//
// Every structure, node and request uses a single ID struct with a prefix
// that identifies the entity type. IDs are K-sortable (UUIDv7-based),
// globally unique and URL-safe in the format "prefix_suffix", so their
// text form can be embedded in cache keys as is.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all datastruct entity types.
const (
	PrefixQueue   Prefix = "queue"
	PrefixSet     Prefix = "set"
	PrefixNode    Prefix = "node"
	PrefixRequest Prefix = "req"
)

// ID is the primary identifier type for structures, nodes and requests.
// It is comparable and can be used directly as a map key.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for Unmarshal*.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "set_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Convenience constructors
// ──────────────────────────────────────────────────

// NewQueueID generates a new unique queue ID.
func NewQueueID() ID { return New(PrefixQueue) }

// NewSetID generates a new unique set ID.
func NewSetID() ID { return New(PrefixSet) }

// NewNodeID generates a new unique node ID.
func NewNodeID() ID { return New(PrefixNode) }

// NewRequestID generates a new unique broadcast request ID.
func NewRequestID() ID { return New(PrefixRequest) }

// ParseSetID parses a string and validates the "set" prefix.
func ParseSetID(s string) (ID, error) { return ParseWithPrefix(s, PrefixSet) }

// ParseQueueID parses a string and validates the "queue" prefix.
func ParseQueueID(s string) (ID, error) { return ParseWithPrefix(s, PrefixQueue) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler so binary codecs
// (msgpack) store the same text form as JSON.
func (i ID) MarshalBinary() ([]byte, error) {
	return i.MarshalText()
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (i *ID) UnmarshalBinary(data []byte) error {
	return i.UnmarshalText(data)
}
