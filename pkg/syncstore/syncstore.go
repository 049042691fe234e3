// Package syncstore maintains the bidirectional local-id/remote-id
// mapping a synchronizer uses to recognize entities it has already
// seen on a remote source, plus a small scratchpad for synchronizer
// bookkeeping values that aren't full entities.
package syncstore

import (
	"github.com/sinklabs/sink/pkg/index"
	"github.com/sinklabs/sink/pkg/key"
	"github.com/sinklabs/sink/pkg/store"
)

const valuesDB = "values"

// Store is scoped to one synchronizer's write transaction.
type Store struct {
	tx *store.Transaction
}

// New wraps tx. The transaction must stay open for the lifetime of Store.
func New(tx *store.Transaction) *Store {
	return &Store{tx: tx}
}

func ridIndexName(bufferType string) string     { return "rid.mapping." + bufferType }
func localIDIndexName(bufferType string) string { return "localid.mapping." + bufferType }

// RecordRemoteId records the localId<->remoteId pair for bufferType in
// both directions.
func (s *Store) RecordRemoteId(bufferType string, localId, remoteId []byte) error {
	rid, err := index.Open(s.tx, ridIndexName(bufferType))
	if err != nil {
		return err
	}
	if err := rid.Add(remoteId, localId); err != nil {
		return err
	}
	lid, err := index.Open(s.tx, localIDIndexName(bufferType))
	if err != nil {
		return err
	}
	return lid.Add(localId, remoteId)
}

// RemoveRemoteId undoes RecordRemoteId.
func (s *Store) RemoveRemoteId(bufferType string, localId, remoteId []byte) error {
	rid, err := index.Open(s.tx, ridIndexName(bufferType))
	if err != nil {
		return err
	}
	if err := rid.Remove(remoteId, localId); err != nil {
		return err
	}
	lid, err := index.Open(s.tx, localIDIndexName(bufferType))
	if err != nil {
		return err
	}
	return lid.Remove(localId, remoteId)
}

// UpdateRemoteId replaces the remote id currently mapped to localId with
// a new one.
func (s *Store) UpdateRemoteId(bufferType string, localId, remoteId []byte) error {
	oldRemoteId, err := s.ResolveLocalId(bufferType, localId)
	if err != nil {
		return err
	}
	if oldRemoteId != nil {
		if err := s.RemoveRemoteId(bufferType, localId, oldRemoteId); err != nil {
			return err
		}
	}
	return s.RecordRemoteId(bufferType, localId, remoteId)
}

// ResolveRemoteId finds the local id mapped to remoteId, creating and
// recording a fresh one if none exists yet.
func (s *Store) ResolveRemoteId(bufferType string, remoteId []byte) ([]byte, error) {
	if len(remoteId) == 0 {
		return nil, nil
	}
	idx, err := index.Open(s.tx, ridIndexName(bufferType))
	if err != nil {
		return nil, err
	}
	hits, err := idx.LookupAll(remoteId, false)
	if err != nil {
		return nil, err
	}
	if len(hits) > 0 {
		return hits[0], nil
	}

	localId := key.NewIdentifier().ToInternalByteArray()
	if err := idx.Add(remoteId, localId); err != nil {
		return nil, err
	}
	lid, err := index.Open(s.tx, localIDIndexName(bufferType))
	if err != nil {
		return nil, err
	}
	if err := lid.Add(localId, remoteId); err != nil {
		return nil, err
	}
	return localId, nil
}

// ResolveLocalId finds the remote id mapped to localId, or nil if the
// entity has never been synced to the remote source.
func (s *Store) ResolveLocalId(bufferType string, localId []byte) ([]byte, error) {
	if len(localId) == 0 {
		return nil, nil
	}
	idx, err := index.OpenExisting(s.tx, localIDIndexName(bufferType))
	if store.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	hits, err := idx.LookupAll(localId, false)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	return hits[0], nil
}

// ResolveLocalIds maps ResolveLocalId over localIds, dropping any that
// don't resolve.
func (s *Store) ResolveLocalIds(bufferType string, localIds [][]byte) ([][]byte, error) {
	var out [][]byte
	for _, localId := range localIds {
		remoteId, err := s.ResolveLocalId(bufferType, localId)
		if err != nil {
			return nil, err
		}
		if remoteId != nil {
			out = append(out, remoteId)
		}
	}
	return out, nil
}

// ReadValue reads the scratchpad value stored at key, or nil if absent.
func (s *Store) ReadValue(k []byte) ([]byte, error) {
	db, err := s.tx.Database(valuesDB)
	if store.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []byte
	if err := db.Scan(k, func(_, v []byte) (bool, error) {
		out = append([]byte{}, v...)
		return false, nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadPrefixedValue is ReadValue(prefix+key).
func (s *Store) ReadPrefixedValue(prefix, k []byte) ([]byte, error) {
	return s.ReadValue(append(append([]byte{}, prefix...), k...))
}

// WriteValue stores value at key in the scratchpad.
func (s *Store) WriteValue(k, value []byte) error {
	db, err := s.tx.CreateDatabaseIfNotExists(valuesDB, false)
	if err != nil {
		return err
	}
	return db.Write(k, value)
}

// WritePrefixedValue is WriteValue(prefix+key, value).
func (s *Store) WritePrefixedValue(prefix, k, value []byte) error {
	return s.WriteValue(append(append([]byte{}, prefix...), k...), value)
}

// RemoveValue deletes the scratchpad entry at prefix+key, if any.
func (s *Store) RemoveValue(prefix, k []byte) error {
	assembled := append(append([]byte{}, prefix...), k...)
	if len(assembled) == 0 {
		return nil
	}
	db, err := s.tx.Database(valuesDB)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return db.Remove(assembled)
}

// RemovePrefix deletes every scratchpad entry whose key has prefix as a
// byte prefix.
func (s *Store) RemovePrefix(prefix []byte) error {
	if len(prefix) == 0 {
		return nil
	}
	db, err := s.tx.Database(valuesDB)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var keys [][]byte
	if err := db.ScanPrefix(prefix, func(k, _ []byte) (bool, error) {
		keys = append(keys, append([]byte{}, k...))
		return true, nil
	}); err != nil {
		return err
	}
	for _, k := range keys {
		if err := db.Remove(k); err != nil {
			return err
		}
	}
	return nil
}
