// Package typeindex maintains, per entity type, the set of secondary
// indexes (C3 equality indexes under the hood) that make querying fast:
// simple property indexes, sorted-property indexes, and secondary
// (hop-through) indexes, plus a slot for bespoke indexers such as the
// full-text index. It also resolves a query's filters into the cheapest
// available index plan.
package typeindex

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/sinklabs/sink/pkg/domain"
	"github.com/sinklabs/sink/pkg/index"
	"github.com/sinklabs/sink/pkg/store"
)

// Comparator is how a Filter's value relates to an indexed property.
type Comparator int

const (
	Equals Comparator = iota
	In
	NotEquals
	GreaterThan
	LessThan
)

// Filter is one query predicate over a single property.
type Filter struct {
	Comparator Comparator
	Value      any   // for Equals, GreaterThan, LessThan
	Values     []any // for In
}

// CustomIndexer is invoked with every add/remove alongside the built-in
// property indexers, for indexes that don't fit the simple/sorted/
// secondary shapes — the full-text index registers itself this way.
type CustomIndexer interface {
	Add(tx *store.Transaction, id []byte, e *domain.Entity) error
	Remove(tx *store.Transaction, id []byte, e *domain.Entity) error
}

type sortedKey struct {
	property     string
	sortProperty string
}

// TypeIndex is the per-entity-type registry of indexed properties.
type TypeIndex struct {
	typ                 string
	properties          []string
	sortedProperties    []sortedKey
	secondaryProperties map[string]string
	customIndexers      []CustomIndexer
}

// New creates an empty registry for the given entity type name.
func New(typ string) *TypeIndex {
	return &TypeIndex{typ: typ, secondaryProperties: map[string]string{}}
}

// AddProperty registers property for simple equality indexing.
func (ti *TypeIndex) AddProperty(property string) {
	ti.properties = append(ti.properties, property)
}

// AddSortedProperty registers a sorted index: entries are keyed by
// value(property) followed by a sort key derived from sortProperty, so a
// range scan over the index yields results pre-sorted.
func (ti *TypeIndex) AddSortedProperty(property, sortProperty string) {
	ti.sortedProperties = append(ti.sortedProperties, sortedKey{property, sortProperty})
}

// AddSecondaryIndex registers a direct left->right index, used to hop
// from one property to another without touching the main table.
func (ti *TypeIndex) AddSecondaryIndex(left, right string) {
	ti.secondaryProperties[left] = right
}

// AddCustomIndexer registers an indexer invoked on every add/remove
// alongside the built-in property indexes.
func (ti *TypeIndex) AddCustomIndexer(idx CustomIndexer) {
	ti.customIndexers = append(ti.customIndexers, idx)
}

// IndexName returns the named database an index is stored under.
func (ti *TypeIndex) IndexName(property, sortProperty string) string {
	if sortProperty == "" {
		return ti.typ + ".index." + property
	}
	return ti.typ + ".index." + property + ".sort." + sortProperty
}

// Normalize converts a property value into the byte form it is indexed
// under. Empty values become the literal "toplevel" token since an empty
// key cannot be stored.
func Normalize(value any) []byte {
	switch v := value.(type) {
	case time.Time:
		return []byte(v.UTC().Format(time.RFC3339Nano))
	case bool:
		if v {
			return []byte("t")
		}
		return []byte("f")
	case []byte:
		if len(v) == 0 {
			return []byte("toplevel")
		}
		return v
	case string:
		if v == "" {
			return []byte("toplevel")
		}
		return []byte(v)
	case nil:
		return []byte("toplevel")
	default:
		return []byte("toplevel")
	}
}

// sortKey returns the sortable suffix for a date-time sort property:
// (max uint32 - unixSeconds), zero-padded, so lexicographic order is
// newest-first. An invalid (zero) date sorts last.
func sortKey(t time.Time) []byte {
	var v uint32
	if t.IsZero() {
		v = math.MaxUint32
	} else {
		sec := t.Unix()
		if sec < 0 || sec > math.MaxUint32 {
			v = math.MaxUint32
		} else {
			v = math.MaxUint32 - uint32(sec)
		}
	}
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// Add indexes entity e under identifier id, across every registered
// simple, sorted, secondary, and custom indexer.
func (ti *TypeIndex) Add(tx *store.Transaction, id []byte, e *domain.Entity) error {
	return ti.updateIndex(tx, true, id, e)
}

// Remove reverses the indexing Add performed, using e's property values
// as they were when the entity was last indexed (its prior revision).
func (ti *TypeIndex) Remove(tx *store.Transaction, id []byte, e *domain.Entity) error {
	return ti.updateIndex(tx, false, id, e)
}

func (ti *TypeIndex) updateIndex(tx *store.Transaction, add bool, id []byte, e *domain.Entity) error {
	for _, property := range ti.properties {
		value, _ := e.Get(property)
		idx, err := index.Open(tx, ti.IndexName(property, ""))
		if err != nil {
			return err
		}
		if err := applyIndexEntry(idx, add, Normalize(value), id); err != nil {
			return err
		}
	}

	for _, sk := range ti.sortedProperties {
		value, _ := e.Get(sk.property)
		sortValue, _ := e.Get(sk.sortProperty)
		t, _ := sortValue.(time.Time)
		compositeValue := append(append([]byte{}, Normalize(value)...), sortKey(t)...)
		idx, err := index.Open(tx, ti.IndexName(sk.property, sk.sortProperty))
		if err != nil {
			return err
		}
		if err := applyIndexEntry(idx, add, compositeValue, id); err != nil {
			return err
		}
	}

	for left, right := range ti.secondaryProperties {
		leftValue, _ := e.Get(left)
		rightValue, _ := e.Get(right)
		idx, err := index.Open(tx, ti.IndexName(left+right, ""))
		if err != nil {
			return err
		}
		if err := applyIndexEntry(idx, add, Normalize(leftValue), Normalize(rightValue)); err != nil {
			return err
		}
	}

	for _, ci := range ti.customIndexers {
		var err error
		if add {
			err = ci.Add(tx, id, e)
		} else {
			err = ci.Remove(tx, id, e)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func applyIndexEntry(idx *index.Index, add bool, value, id []byte) error {
	if add {
		return idx.Add(value, id)
	}
	return idx.Remove(value, id)
}

// Plan resolves filters (and, if set, sortProperty) into the cheapest
// available index lookup. It returns the matching identifiers, the
// subset of filters the lookup already satisfies, and the sort property
// the lookup already orders by (empty if none). A nil ids slice with an
// empty appliedFilters map means no index could serve the query; the
// caller must fall back to a full type scan.
func (ti *TypeIndex) Plan(tx *store.Transaction, filters map[string]Filter, sortProperty string) (ids [][]byte, appliedFilters map[string]bool, appliedSorting string, err error) {
	appliedFilters = map[string]bool{}

	for _, sk := range ti.sortedProperties {
		f, hasFilter := filters[sk.property]
		if !hasFilter || sortProperty != sk.sortProperty {
			continue
		}
		idx, err := index.OpenExisting(tx, ti.IndexName(sk.property, sk.sortProperty))
		if store.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, nil, "", err
		}
		keys, err := lookupFilter(idx, f)
		if err != nil {
			return nil, nil, "", err
		}
		appliedFilters[sk.property] = true
		return keys, appliedFilters, sk.sortProperty, nil
	}

	for _, property := range ti.properties {
		f, hasFilter := filters[property]
		if !hasFilter {
			continue
		}
		idx, err := index.OpenExisting(tx, ti.IndexName(property, ""))
		if store.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, nil, "", err
		}
		keys, err := lookupFilter(idx, f)
		if err != nil {
			return nil, nil, "", err
		}
		appliedFilters[property] = true
		return keys, appliedFilters, "", nil
	}

	return nil, appliedFilters, "", nil
}

// lookupFilter only resolves Equals and In comparators through the
// index; any other comparator is left entirely to the query runner.
func lookupFilter(idx *index.Index, f Filter) ([][]byte, error) {
	var lookupValues [][]byte
	switch f.Comparator {
	case Equals:
		lookupValues = [][]byte{Normalize(f.Value)}
	case In:
		for _, v := range f.Values {
			lookupValues = append(lookupValues, Normalize(v))
		}
	default:
		return nil, nil
	}

	var out [][]byte
	for _, lv := range lookupValues {
		got, err := idx.LookupAll(lv, true)
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
	}
	return out, nil
}

// Lookup resolves a single property (simple or secondary) to the
// identifiers that carry value, hopping through a secondary index one
// level if necessary.
func (ti *TypeIndex) Lookup(tx *store.Transaction, property string, value any) ([][]byte, error) {
	for _, p := range ti.properties {
		if p != property {
			continue
		}
		idx, err := index.OpenExisting(tx, ti.IndexName(property, ""))
		if store.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return idx.LookupAll(Normalize(value), false)
	}

	if resultProperty, ok := ti.secondaryProperties[property]; ok {
		idx, err := index.OpenExisting(tx, ti.IndexName(property+resultProperty, ""))
		if store.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		secondaryKeys, err := idx.LookupAll(Normalize(value), false)
		if err != nil {
			return nil, err
		}
		var out [][]byte
		for _, sk := range secondaryKeys {
			hits, err := ti.Lookup(tx, resultProperty, string(sk))
			if err != nil {
				return nil, err
			}
			out = append(out, hits...)
		}
		return out, nil
	}

	return nil, nil
}
