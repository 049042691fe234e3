package store

import (
	"sync"

	bolt "go.etcd.io/bbolt"
)

// registryEntry is the shared, reference-counted handle onto one open
// bbolt file. dbiMu serializes bucket (dbi) creation across every
// Transaction opened against this environment, mirroring the "dbi
// creation is a process-wide critical section" requirement: bbolt
// transactions already serialize writers internally, but the registry
// still gives every CreateDatabaseIfNotExists call a single well-known
// lock to take, independent of how many Transactions are in flight.
type registryEntry struct {
	db       *bolt.DB
	dbiMu    sync.Mutex
	dupFlags map[string]bool // database name -> allowDuplicates, set at creation

	mu       sync.Mutex
	refCount int
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*registryEntry{}
)

func acquireRegistryEntry(absPath string) (*registryEntry, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if e, ok := registry[absPath]; ok {
		e.mu.Lock()
		e.refCount++
		e.mu.Unlock()
		return e, nil
	}

	db, err := bolt.Open(absPath, 0o600, &bolt.Options{Timeout: 0})
	if err != nil {
		return nil, err
	}
	e := &registryEntry{db: db, dupFlags: map[string]bool{}, refCount: 1}
	registry[absPath] = e
	return e, nil
}

func releaseRegistryEntry(absPath string) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	e, ok := registry[absPath]
	if !ok {
		return nil
	}
	e.mu.Lock()
	e.refCount--
	closeNow := e.refCount <= 0
	e.mu.Unlock()

	if !closeNow {
		return nil
	}
	delete(registry, absPath)
	return e.db.Close()
}

func (e *registryEntry) rememberDuplicates(name string, allowDuplicates bool) {
	e.dbiMu.Lock()
	defer e.dbiMu.Unlock()
	e.dupFlags[name] = allowDuplicates
}

func (e *registryEntry) duplicatesFlag(name string) bool {
	e.dbiMu.Lock()
	defer e.dbiMu.Unlock()
	return e.dupFlags[name]
}
