// Package index implements a simple secondary index: a NamedDatabase
// opened in duplicate mode, mapping an indexed value to every identifier
// that carries it.
package index

import (
	"github.com/sinklabs/sink/pkg/store"
)

// Index is a value -> []identifier multimap backed by one NamedDatabase.
type Index struct {
	db *store.NamedDatabase
}

// Open opens (creating if necessary) the named index database within tx.
// tx must be a read-write transaction the first time an index name is used.
func Open(tx *store.Transaction, name string) (*Index, error) {
	db, err := tx.CreateDatabaseIfNotExists(name, true)
	if err != nil {
		return nil, err
	}
	return &Index{db: db}, nil
}

// OpenExisting opens a previously created index database for reading.
func OpenExisting(tx *store.Transaction, name string) (*Index, error) {
	db, err := tx.Database(name)
	if err != nil {
		return nil, err
	}
	return &Index{db: db}, nil
}

// Add records that value maps to id.
func (idx *Index) Add(value, id []byte) error {
	return idx.db.Write(value, id)
}

// Remove deletes the (value, id) association, leaving any other
// identifiers indexed under value untouched.
func (idx *Index) Remove(value, id []byte) error {
	return idx.db.RemoveValue(value, id)
}

// Lookup visits every identifier indexed under value. If substring is
// true, value is treated as a prefix and every key that starts with it
// is matched as well, used for prefix/substring queries over an indexed
// property.
func (idx *Index) Lookup(value []byte, substring bool, fn func(id []byte) (keepGoing bool, err error)) error {
	if substring {
		return idx.db.ScanPrefix(value, func(_, v []byte) (bool, error) {
			return fn(v)
		})
	}
	return idx.db.Scan(value, func(_, v []byte) (bool, error) {
		return fn(v)
	})
}

// LookupAll is a convenience wrapper over Lookup collecting every
// matching identifier into a slice.
func (idx *Index) LookupAll(value []byte, substring bool) ([][]byte, error) {
	var out [][]byte
	err := idx.Lookup(value, substring, func(id []byte) (bool, error) {
		out = append(out, append([]byte{}, id...))
		return true, nil
	})
	return out, err
}
