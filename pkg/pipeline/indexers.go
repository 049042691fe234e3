package pipeline

import (
	"fmt"
	"strings"

	"github.com/sinklabs/sink/pkg/domain"
	"github.com/sinklabs/sink/pkg/fulltext"
	"github.com/sinklabs/sink/pkg/index"
	"github.com/sinklabs/sink/pkg/store"
	"github.com/sinklabs/sink/pkg/typeindex"
)

// DefaultIndexer is the built-in preprocessor that keeps a type's full
// registered index set (simple, sorted, secondary, custom) in sync with
// every revision written for that type.
type DefaultIndexer struct {
	TypeIndex *typeindex.TypeIndex
}

func (d *DefaultIndexer) NewEntity(tx *store.Transaction, id []byte, e *domain.Entity) error {
	return d.TypeIndex.Add(tx, id, e)
}

func (d *DefaultIndexer) ModifiedEntity(tx *store.Transaction, id []byte, old, new *domain.Entity) error {
	if err := d.TypeIndex.Remove(tx, id, old); err != nil {
		return err
	}
	return d.TypeIndex.Add(tx, id, new)
}

func (d *DefaultIndexer) DeletedEntity(tx *store.Transaction, id []byte, old *domain.Entity) error {
	return d.TypeIndex.Remove(tx, id, old)
}

// CustomPropertyIndexer is a lightweight preprocessor for a single
// equality index outside of a type's full TypeIndex registration —
// useful for auxiliary relations that don't warrant a whole type index.
type CustomPropertyIndexer struct {
	IndexName string
	Property  string
}

func (c *CustomPropertyIndexer) open(tx *store.Transaction) (*index.Index, error) {
	return index.Open(tx, c.IndexName)
}

func (c *CustomPropertyIndexer) NewEntity(tx *store.Transaction, id []byte, e *domain.Entity) error {
	idx, err := c.open(tx)
	if err != nil {
		return err
	}
	value, _ := e.Get(c.Property)
	return idx.Add(typeindex.Normalize(value), id)
}

func (c *CustomPropertyIndexer) ModifiedEntity(tx *store.Transaction, id []byte, old, new *domain.Entity) error {
	idx, err := c.open(tx)
	if err != nil {
		return err
	}
	oldValue, _ := old.Get(c.Property)
	if err := idx.Remove(typeindex.Normalize(oldValue), id); err != nil {
		return err
	}
	newValue, _ := new.Get(c.Property)
	return idx.Add(typeindex.Normalize(newValue), id)
}

func (c *CustomPropertyIndexer) DeletedEntity(tx *store.Transaction, id []byte, old *domain.Entity) error {
	idx, err := c.open(tx)
	if err != nil {
		return err
	}
	value, _ := old.Get(c.Property)
	return idx.Remove(typeindex.Normalize(value), id)
}

// FulltextIndexer keeps a type's string-valued properties indexed in a
// full-text index (C5). The full-text index lives in its own
// environment rather than the type's main table, so it is maintained
// outside of tx: its changes commit on their own and are not rolled
// back if the entity write later aborts. A failure here is returned as
// an error, which aborts the entity write.
type FulltextIndexer struct {
	Index *fulltext.Index
}

// stringFields extracts every string and string-slice property of e
// into a flat field map the full-text index can tokenize.
func stringFields(e *domain.Entity) map[string]string {
	fields := map[string]string{}
	for _, property := range e.AvailableProperties() {
		value, ok := e.Get(property)
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			fields[property] = v
		case []string:
			fields[property] = strings.Join(v, " ")
		}
	}
	return fields
}

func (f *FulltextIndexer) NewEntity(_ *store.Transaction, id []byte, e *domain.Entity) error {
	if err := f.Index.Add(id, stringFields(e)); err != nil {
		return fmt.Errorf("fulltext: index entity: %w", err)
	}
	return nil
}

func (f *FulltextIndexer) ModifiedEntity(_ *store.Transaction, id []byte, _, new *domain.Entity) error {
	if err := f.Index.Remove(id); err != nil {
		return fmt.Errorf("fulltext: remove stale entity: %w", err)
	}
	if err := f.Index.Add(id, stringFields(new)); err != nil {
		return fmt.Errorf("fulltext: reindex entity: %w", err)
	}
	return nil
}

func (f *FulltextIndexer) DeletedEntity(_ *store.Transaction, id []byte, _ *domain.Entity) error {
	if err := f.Index.Remove(id); err != nil {
		return fmt.Errorf("fulltext: remove deleted entity: %w", err)
	}
	return nil
}
