// Package domain implements the per-variant entity adaptors the core
// operates on: mail, folder, event, account, identity, and resource. Each
// variant wraps a generic property bag and exposes typed accessors, but
// every variant shares the same get/set/available/changed contract so the
// entity store and pipeline can treat them uniformly.
package domain

// Type identifies which entity variant a Properties bag holds.
type Type string

const (
	TypeMail     Type = "mail"
	TypeFolder   Type = "folder"
	TypeEvent    Type = "event"
	TypeAccount  Type = "account"
	TypeIdentity Type = "identity"
	TypeResource Type = "resource"
)

// KnownTypes lists every entity variant the core has a registered type
// index (C4) for.
var KnownTypes = []Type{TypeMail, TypeFolder, TypeEvent, TypeAccount, TypeIdentity, TypeResource}

// Entity is the generic property bag every variant adaptor wraps. It
// tracks which properties have been touched since it was either created
// fresh or loaded and then mutated, so the pipeline can compute an
// accurate change-set for the revision it writes.
type Entity struct {
	typ        Type
	properties map[string]any
	changed    map[string]bool
}

// New creates an empty entity of the given type.
func New(typ Type) *Entity {
	return &Entity{typ: typ, properties: map[string]any{}, changed: map[string]bool{}}
}

// Load reconstructs an entity from a previously stored property set,
// with no properties marked as changed — the typical state right after
// reading a revision back out of the main table.
func Load(typ Type, properties map[string]any) *Entity {
	cp := make(map[string]any, len(properties))
	for k, v := range properties {
		cp[k] = v
	}
	return &Entity{typ: typ, properties: cp, changed: map[string]bool{}}
}

func (e *Entity) Type() Type { return e.typ }

// Get returns the value of property and whether it was present at all.
func (e *Entity) Get(property string) (any, bool) {
	v, ok := e.properties[property]
	return v, ok
}

// Set stores value under property and marks it changed.
func (e *Entity) Set(property string, value any) {
	e.properties[property] = value
	e.changed[property] = true
}

// Unset removes property entirely and marks it changed, so a modify that
// clears a property still produces an accurate change-set.
func (e *Entity) Unset(property string) {
	delete(e.properties, property)
	e.changed[property] = true
}

// AvailableProperties lists every property currently set on the entity.
func (e *Entity) AvailableProperties() []string {
	out := make([]string, 0, len(e.properties))
	for k := range e.properties {
		out = append(out, k)
	}
	return out
}

// ChangedProperties lists every property touched by Set/Unset since this
// Entity was created or loaded.
func (e *Entity) ChangedProperties() []string {
	out := make([]string, 0, len(e.changed))
	for k := range e.changed {
		out = append(out, k)
	}
	return out
}

// Properties returns the full property map. Callers must not mutate the
// returned map directly; use Set/Unset so change tracking stays accurate.
func (e *Entity) Properties() map[string]any {
	return e.properties
}

// ResetChangeTracking clears the changed set without altering any
// property value, used once a revision has been committed and this
// in-memory Entity becomes the new "loaded" baseline.
func (e *Entity) ResetChangeTracking() {
	e.changed = map[string]bool{}
}
