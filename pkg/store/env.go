// Package store wraps go.etcd.io/bbolt with the Environment/Transaction/
// NamedDatabase model the core is built on: one bbolt file per resource,
// any number of named databases (buckets) inside it created on demand, and
// an emulated duplicate-key mode for databases that need a multimap.
//
// bbolt has no native support for the duplicate-key ("DUPSORT") mode an
// LMDB-backed store would reach for. Every database that needs a multimap
// stores entries under a composite key of logicalKey⧺0x00⧺value instead,
// and Scan/FindLast select entries by logical key through that encoding.
// The stored value comes back unchanged; the key handed to a callback is
// the composite form.
package store

import (
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Mode selects whether a Transaction may write.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// Environment is one bbolt file and the databases opened inside it.
// Safe for concurrent use; internally it is a thin, reference-counted
// handle onto a process-wide registry entry so that repeated Open calls
// against the same path share a single *bolt.DB.
type Environment struct {
	path  string
	entry *registryEntry
}

// Open opens (creating if absent) the bbolt file at path. Multiple Open
// calls for the same absolute path within one process return Environments
// sharing the same underlying *bolt.DB, since bbolt allows only one open
// handle per file.
func Open(path string) (*Environment, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, Wrap(path, KindGenericStorage, "resolve path", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, Wrap(path, KindGenericStorage, "create parent directory", err)
	}

	entry, err := acquireRegistryEntry(abs)
	if err != nil {
		return nil, Wrap(path, KindGenericStorage, "open environment", err)
	}
	return &Environment{path: abs, entry: entry}, nil
}

// Path returns the absolute filesystem path of the environment.
func (e *Environment) Path() string { return e.path }

// CreateTransaction begins a new Transaction in the given Mode.
func (e *Environment) CreateTransaction(mode Mode) (*Transaction, error) {
	tx, err := e.entry.db.Begin(mode == ReadWrite)
	if err != nil {
		return nil, Wrap(e.path, KindTransaction, "begin transaction", err)
	}
	return &Transaction{env: e, tx: tx, mode: mode}, nil
}

// DiskUsage returns the size in bytes of the environment's backing file.
func (e *Environment) DiskUsage() (int64, error) {
	info, err := os.Stat(e.path)
	if err != nil {
		return 0, Wrap(e.path, KindGenericStorage, "stat environment file", err)
	}
	return info.Size(), nil
}

// Close releases this handle on the environment. The underlying *bolt.DB
// is only actually closed once every handle opened against this path has
// been closed.
func (e *Environment) Close() error {
	return releaseRegistryEntry(e.path)
}

// ForceSync flushes pending writes to disk outside of a transaction
// boundary, mirroring the "explicit fsync" escape hatch LMDB environments
// expose for callers that batch writes with NoSync semantics. bbolt always
// fsyncs on commit, so this simply confirms the file is flushed.
func (e *Environment) ForceSync() error {
	return e.entry.db.Sync()
}

// DatabaseStat summarizes one named database, for the CLI's "stat"/
// "inspect" commands.
type DatabaseStat struct {
	Name    string
	Entries int
}

// Stat opens a read-only transaction and summarizes every named
// database in the environment, grounded on bucket introspection the
// same way the CLI's "stat"/"inspect" commands walk bbolt buckets.
func (e *Environment) Stat() ([]DatabaseStat, error) {
	tx, err := e.CreateTransaction(ReadOnly)
	if err != nil {
		return nil, err
	}
	defer tx.Abort()

	var stats []DatabaseStat
	for _, name := range tx.DatabaseNames() {
		db, err := tx.Database(name)
		if err != nil {
			return nil, err
		}
		stats = append(stats, DatabaseStat{Name: name, Entries: db.Size()})
	}
	return stats, nil
}

// LastModified reports when the environment file was last written to,
// used by upgrade/inspection tooling that needs to reason about staleness
// without opening a transaction.
func (e *Environment) LastModified() (time.Time, error) {
	info, err := os.Stat(e.path)
	if err != nil {
		return time.Time{}, Wrap(e.path, KindGenericStorage, "stat environment file", err)
	}
	return info.ModTime(), nil
}
