// Package pipeline runs the ordered preprocessor chain the entity store
// invokes inside the writing transaction on every create/modify/remove,
// keeping secondary indexes atomically consistent with the record write.
package pipeline

import (
	"fmt"

	"github.com/sinklabs/sink/pkg/domain"
	"github.com/sinklabs/sink/pkg/store"
)

// Preprocessor is invoked synchronously, inside the writing transaction,
// for every mutation. A non-nil error aborts the transaction; the writer
// surfaces it as a fatal commit error.
type Preprocessor interface {
	NewEntity(tx *store.Transaction, id []byte, e *domain.Entity) error
	ModifiedEntity(tx *store.Transaction, id []byte, old, new *domain.Entity) error
	DeletedEntity(tx *store.Transaction, id []byte, old *domain.Entity) error
}

// Pipeline is an ordered chain of preprocessors.
type Pipeline struct {
	preprocessors []Preprocessor
}

// New creates an empty pipeline; preprocessors run in the order Register
// is called.
func New() *Pipeline {
	return &Pipeline{}
}

func (p *Pipeline) Register(pp Preprocessor) {
	p.preprocessors = append(p.preprocessors, pp)
}

func (p *Pipeline) Created(tx *store.Transaction, id []byte, e *domain.Entity) error {
	for _, pp := range p.preprocessors {
		if err := pp.NewEntity(tx, id, e); err != nil {
			return fmt.Errorf("pipeline: new entity: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) Modified(tx *store.Transaction, id []byte, old, new *domain.Entity) error {
	for _, pp := range p.preprocessors {
		if err := pp.ModifiedEntity(tx, id, old, new); err != nil {
			return fmt.Errorf("pipeline: modified entity: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) Deleted(tx *store.Transaction, id []byte, old *domain.Entity) error {
	for _, pp := range p.preprocessors {
		if err := pp.DeletedEntity(tx, id, old); err != nil {
			return fmt.Errorf("pipeline: deleted entity: %w", err)
		}
	}
	return nil
}
