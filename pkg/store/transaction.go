package store

import bolt "go.etcd.io/bbolt"

// Transaction is a bbolt transaction scoped to one Environment.
type Transaction struct {
	env  *Environment
	tx   *bolt.Tx
	mode Mode
}

// Mode reports whether this transaction may write.
func (t *Transaction) Mode() Mode { return t.mode }

// Database opens an existing named database. It does not create one:
// callers that may need to create it should use CreateDatabaseIfNotExists.
//
// A read-only transaction is a snapshot taken when it began; a database
// created by a writer after that point is invisible to it. Database
// recovers from that case once, by renewing the underlying bbolt
// transaction onto the latest snapshot and retrying the lookup, matching
// the "reset and renew" recovery path a long-lived reader needs when a
// database it wants was created after it started.
func (t *Transaction) Database(name string) (*NamedDatabase, error) {
	b := t.tx.Bucket([]byte(name))
	if b == nil && t.mode == ReadOnly {
		if err := t.renew(); err != nil {
			return nil, err
		}
		b = t.tx.Bucket([]byte(name))
	}
	if b == nil {
		return nil, NewError(name, KindNotFound, "database does not exist")
	}
	return &NamedDatabase{name: name, bucket: b, allowDuplicates: t.env.entry.duplicatesFlag(name)}, nil
}

// CreateDatabaseIfNotExists opens the named database, creating it first
// if necessary. Only valid on a read-write transaction. Creation is
// serialized process-wide via the environment's dbi mutex so concurrent
// writers racing to create the same database never observe a transient
// "bucket already exists" failure from bbolt.
func (t *Transaction) CreateDatabaseIfNotExists(name string, allowDuplicates bool) (*NamedDatabase, error) {
	if t.mode != ReadWrite {
		return nil, NewError(name, KindReadOnly, "cannot create a database on a read-only transaction")
	}

	t.env.entry.dbiMu.Lock()
	defer t.env.entry.dbiMu.Unlock()

	b, err := t.tx.CreateBucketIfNotExists([]byte(name))
	if err != nil {
		return nil, Wrap(name, KindGenericStorage, "create database", err)
	}
	t.env.entry.dupFlags[name] = allowDuplicates
	return &NamedDatabase{name: name, bucket: b, allowDuplicates: allowDuplicates}, nil
}

// DatabaseNames lists every named database currently present, for the
// CLI's "inspect"/"stat" commands.
func (t *Transaction) DatabaseNames() []string {
	var names []string
	_ = t.tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
		names = append(names, string(name))
		return nil
	})
	return names
}

// renew rolls back the current snapshot and begins a fresh one in its
// place, so the transaction becomes a snapshot of the environment's
// current state. Only meaningful for read-only transactions.
func (t *Transaction) renew() error {
	if err := t.tx.Rollback(); err != nil {
		return Wrap(t.env.path, KindTransaction, "renew: rollback stale snapshot", err)
	}
	tx, err := t.env.entry.db.Begin(false)
	if err != nil {
		return Wrap(t.env.path, KindTransaction, "renew: begin new snapshot", err)
	}
	t.tx = tx
	return nil
}

// Commit commits a read-write transaction. A failed commit is fatal to
// the writer process: the core never attempts to retry a failed commit.
func (t *Transaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return Wrap(t.env.path, KindTransaction, "commit", err)
	}
	return nil
}

// Abort rolls back the transaction, discarding any writes. Safe to call
// on a read-only transaction to release its snapshot.
func (t *Transaction) Abort() error {
	if err := t.tx.Rollback(); err != nil {
		return Wrap(t.env.path, KindTransaction, "abort", err)
	}
	return nil
}
