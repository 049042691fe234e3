// Package key implements the composite key model used by every named
// database in a resource environment: a 128-bit Identifier, a 64-bit
// Revision, and their concatenation, each with a fixed-width internal
// (storage) encoding and a human-readable display encoding.
package key

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// InternalSize/DisplaySize describe the fixed byte widths of each encoding.
const (
	IdentifierInternalSize = 16
	IdentifierDisplaySize  = 36 + 2 // "{8-4-4-4-12}" canonical form

	RevisionInternalSize = 19
	RevisionDisplaySize  = 19

	InternalSize = IdentifierInternalSize + RevisionInternalSize
	DisplaySize  = IdentifierDisplaySize + RevisionDisplaySize
)

// Identifier is an opaque 128-bit entity identifier. The zero value is
// not a valid identifier; use NewIdentifier or one of the From* constructors.
type Identifier struct {
	uid uuid.UUID
}

// NewIdentifier generates a fresh, never-reused identifier.
func NewIdentifier() Identifier {
	return Identifier{uid: uuid.New()}
}

// IsNull reports whether this is the zero Identifier.
func (id Identifier) IsNull() bool {
	return id.uid == uuid.Nil
}

// ToInternalByteArray returns the 16-byte RFC-4122 encoding.
func (id Identifier) ToInternalByteArray() []byte {
	b := make([]byte, IdentifierInternalSize)
	copy(b, id.uid[:])
	return b
}

// IdentifierFromInternalByteArray decodes the 16-byte RFC-4122 form.
// The caller must validate with IsValidInternalIdentifier first; a
// malformed byte array is a programmer error.
func IdentifierFromInternalByteArray(b []byte) (Identifier, error) {
	if len(b) != IdentifierInternalSize {
		return Identifier{}, fmt.Errorf("key: invalid identifier length %d", len(b))
	}
	u, err := uuid.FromBytes(b)
	if err != nil {
		return Identifier{}, fmt.Errorf("key: invalid identifier bytes: %w", err)
	}
	return Identifier{uid: u}, nil
}

// ToDisplayString returns the canonical "{8-4-4-4-12}" UUID form.
func (id Identifier) ToDisplayString() string {
	return "{" + id.uid.String() + "}"
}

// ToDisplayByteArray is ToDisplayString as bytes.
func (id Identifier) ToDisplayByteArray() []byte {
	return []byte(id.ToDisplayString())
}

// IdentifierFromDisplayByteArray parses the canonical UUID string form.
func IdentifierFromDisplayByteArray(b []byte) (Identifier, error) {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return Identifier{}, fmt.Errorf("key: invalid display identifier: %w", err)
	}
	return Identifier{uid: u}, nil
}

// IsValidInternalIdentifier reports whether b is a well-formed 16-byte identifier.
func IsValidInternalIdentifier(b []byte) bool {
	_, err := IdentifierFromInternalByteArray(b)
	return err == nil
}

// IsValidDisplayIdentifier reports whether b is a well-formed display-form identifier.
func IsValidDisplayIdentifier(b []byte) bool {
	_, err := IdentifierFromDisplayByteArray(b)
	return err == nil
}

// IsValidIdentifier dispatches on length to the internal or display validator.
func IsValidIdentifier(b []byte) bool {
	switch len(b) {
	case IdentifierInternalSize:
		return IsValidInternalIdentifier(b)
	case IdentifierDisplaySize:
		return IsValidDisplayIdentifier(b)
	}
	return false
}

func (id Identifier) String() string { return id.ToDisplayString() }

// Revision is a monotonically increasing per-resource mutation counter.
// 0 means "none"; the first assigned revision is 1.
type Revision uint64

// NoRevision is the reserved "none" sentinel.
const NoRevision Revision = 0

// ToInternalByteArray returns the 19-byte zero-padded decimal encoding,
// chosen so lexicographic byte order matches numeric order.
func (r Revision) ToInternalByteArray() []byte {
	s := strconv.FormatUint(uint64(r), 10)
	padded := make([]byte, RevisionInternalSize)
	for i := range padded {
		padded[i] = '0'
	}
	copy(padded[RevisionInternalSize-len(s):], s)
	return padded
}

// RevisionFromInternalByteArray decodes the zero-padded decimal encoding.
func RevisionFromInternalByteArray(b []byte) (Revision, error) {
	if len(b) != RevisionInternalSize {
		return 0, fmt.Errorf("key: invalid revision length %d", len(b))
	}
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("key: invalid revision bytes: %w", err)
	}
	return Revision(v), nil
}

func (r Revision) ToDisplayString() string    { return string(r.ToInternalByteArray()) }
func (r Revision) ToDisplayByteArray() []byte { return r.ToInternalByteArray() }

// RevisionFromDisplayByteArray is identical to the internal decoding;
// the display and internal forms of a Revision coincide.
func RevisionFromDisplayByteArray(b []byte) (Revision, error) {
	return RevisionFromInternalByteArray(b)
}

// IsValidInternalRevision reports whether b is a well-formed 19-byte revision.
func IsValidInternalRevision(b []byte) bool {
	_, err := RevisionFromInternalByteArray(b)
	return err == nil
}

// IsValidDisplayRevision is an alias of IsValidInternalRevision; the two
// encodings are identical for Revision.
func IsValidDisplayRevision(b []byte) bool { return IsValidInternalRevision(b) }

// IsValidRevision is an alias of IsValidInternalRevision.
func IsValidRevision(b []byte) bool { return IsValidInternalRevision(b) }

// Key is the primary key of the main entity table: Identifier⧺Revision.
// Lexicographic iteration over Keys groups all revisions of one entity
// together, oldest first.
type Key struct {
	id  Identifier
	rev Revision
}

// NewKey builds a Key from an identifier and revision.
func NewKey(id Identifier, rev Revision) Key {
	return Key{id: id, rev: rev}
}

func (k Key) Identifier() Identifier { return k.id }
func (k Key) Revision() Revision     { return k.rev }

// WithRevision returns a copy of k with its revision replaced.
func (k Key) WithRevision(rev Revision) Key {
	return Key{id: k.id, rev: rev}
}

func (k Key) IsNull() bool { return k.id.IsNull() }

// ToInternalByteArray returns the 35-byte internal encoding.
func (k Key) ToInternalByteArray() []byte {
	b := make([]byte, 0, InternalSize)
	b = append(b, k.id.ToInternalByteArray()...)
	b = append(b, k.rev.ToInternalByteArray()...)
	return b
}

// KeyFromInternalByteArray decodes the 35-byte internal encoding,
// round-tripping exactly with ToInternalByteArray.
func KeyFromInternalByteArray(b []byte) (Key, error) {
	if len(b) != InternalSize {
		return Key{}, fmt.Errorf("key: invalid key length %d", len(b))
	}
	id, err := IdentifierFromInternalByteArray(b[:IdentifierInternalSize])
	if err != nil {
		return Key{}, err
	}
	rev, err := RevisionFromInternalByteArray(b[IdentifierInternalSize:])
	if err != nil {
		return Key{}, err
	}
	return Key{id: id, rev: rev}, nil
}

func (k Key) ToDisplayString() string {
	return k.id.ToDisplayString() + k.rev.ToDisplayString()
}

func (k Key) ToDisplayByteArray() []byte {
	b := make([]byte, 0, DisplaySize)
	b = append(b, k.id.ToDisplayByteArray()...)
	b = append(b, k.rev.ToDisplayByteArray()...)
	return b
}

// KeyFromDisplayByteArray decodes the display form.
func KeyFromDisplayByteArray(b []byte) (Key, error) {
	if len(b) != DisplaySize {
		return Key{}, fmt.Errorf("key: invalid display key length %d", len(b))
	}
	id, err := IdentifierFromDisplayByteArray(b[:IdentifierDisplaySize])
	if err != nil {
		return Key{}, err
	}
	rev, err := RevisionFromDisplayByteArray(b[IdentifierDisplaySize:])
	if err != nil {
		return Key{}, err
	}
	return Key{id: id, rev: rev}, nil
}

// IsValidInternal reports whether b is a well-formed 35-byte internal key.
func IsValidInternal(b []byte) bool {
	if len(b) != InternalSize {
		return false
	}
	return IsValidInternalIdentifier(b[:IdentifierInternalSize]) && IsValidInternalRevision(b[IdentifierInternalSize:])
}

// IsValidDisplay reports whether b is a well-formed display-form key.
func IsValidDisplay(b []byte) bool {
	if len(b) != DisplaySize {
		return false
	}
	return IsValidDisplayIdentifier(b[:IdentifierDisplaySize]) && IsValidDisplayRevision(b[IdentifierDisplaySize:])
}

// IsValid dispatches on length to the internal or display validator.
func IsValid(b []byte) bool {
	switch len(b) {
	case InternalSize:
		return IsValidInternal(b)
	case DisplaySize:
		return IsValidDisplay(b)
	}
	return false
}

func (k Key) String() string { return k.ToDisplayString() }
