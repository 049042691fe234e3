package key

import "testing"

func TestIdentifierRoundTrip(t *testing.T) {
	id := NewIdentifier()
	if id.IsNull() {
		t.Fatal("NewIdentifier() returned a null identifier")
	}

	internal := id.ToInternalByteArray()
	if len(internal) != IdentifierInternalSize {
		t.Fatalf("internal length = %d, want %d", len(internal), IdentifierInternalSize)
	}
	got, err := IdentifierFromInternalByteArray(internal)
	if err != nil {
		t.Fatalf("IdentifierFromInternalByteArray: %v", err)
	}
	if got != id {
		t.Fatalf("round-trip mismatch: got %v, want %v", got, id)
	}

	display := id.ToDisplayByteArray()
	if len(display) != IdentifierDisplaySize {
		t.Fatalf("display length = %d, want %d", len(display), IdentifierDisplaySize)
	}
	got2, err := IdentifierFromDisplayByteArray(display)
	if err != nil {
		t.Fatalf("IdentifierFromDisplayByteArray: %v", err)
	}
	if got2 != id {
		t.Fatalf("display round-trip mismatch: got %v, want %v", got2, id)
	}
}

func TestIdentifierInvalid(t *testing.T) {
	if IsValidIdentifier([]byte("short")) {
		t.Fatal("short byte array reported valid")
	}
	if IsValidIdentifier(make([]byte, IdentifierInternalSize+3)) {
		t.Fatal("wrong-length byte array reported valid")
	}
}

func TestRevisionRoundTrip(t *testing.T) {
	for _, r := range []Revision{0, 1, 42, 1234567890123} {
		b := r.ToInternalByteArray()
		if len(b) != RevisionInternalSize {
			t.Fatalf("revision %d: internal length = %d, want %d", r, len(b), RevisionInternalSize)
		}
		got, err := RevisionFromInternalByteArray(b)
		if err != nil {
			t.Fatalf("revision %d: %v", r, err)
		}
		if got != r {
			t.Fatalf("revision %d: round-trip got %d", r, got)
		}
	}
}

func TestRevisionLexicographicOrder(t *testing.T) {
	lo := Revision(7).ToInternalByteArray()
	hi := Revision(123).ToInternalByteArray()
	if string(lo) >= string(hi) {
		t.Fatalf("lexicographic order broken: %q >= %q", lo, hi)
	}
}

func TestKeyRoundTrip(t *testing.T) {
	id := NewIdentifier()
	k := NewKey(id, Revision(17))

	internal := k.ToInternalByteArray()
	if len(internal) != InternalSize {
		t.Fatalf("internal length = %d, want %d", len(internal), InternalSize)
	}
	got, err := KeyFromInternalByteArray(internal)
	if err != nil {
		t.Fatalf("KeyFromInternalByteArray: %v", err)
	}
	if got.Identifier() != k.Identifier() || got.Revision() != k.Revision() {
		t.Fatalf("round-trip mismatch: got %v, want %v", got, k)
	}

	display := k.ToDisplayByteArray()
	if len(display) != DisplaySize {
		t.Fatalf("display length = %d, want %d", len(display), DisplaySize)
	}
	got2, err := KeyFromDisplayByteArray(display)
	if err != nil {
		t.Fatalf("KeyFromDisplayByteArray: %v", err)
	}
	if got2.Identifier() != k.Identifier() || got2.Revision() != k.Revision() {
		t.Fatalf("display round-trip mismatch: got %v, want %v", got2, k)
	}
}

func TestKeyGroupsRevisionsTogether(t *testing.T) {
	id := NewIdentifier()
	k1 := NewKey(id, 1).ToInternalByteArray()
	k2 := NewKey(id, 2).ToInternalByteArray()
	other := NewKey(NewIdentifier(), 1).ToInternalByteArray()

	if string(k1) >= string(k2) {
		t.Fatalf("revisions of the same entity are not ordered oldest-first")
	}
	// A different identifier's key must not interleave lexicographically
	// inside this identifier's own revision range in a way that breaks grouping:
	// the 16-byte identifier prefix always differs first.
	if string(k1)[:IdentifierInternalSize] == string(other)[:IdentifierInternalSize] {
		t.Fatalf("test fixture collision")
	}
}

func TestInvalidKeyIsProgrammerError(t *testing.T) {
	if IsValid([]byte("nope")) {
		t.Fatal("garbage reported as a valid key")
	}
	if _, err := KeyFromInternalByteArray([]byte("nope")); err == nil {
		t.Fatal("expected an error decoding a malformed key")
	}
}
