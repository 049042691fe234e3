package store

import (
	"bytes"

	bolt "go.etcd.io/bbolt"
)

// dupSeparator delimits the logical key from the value in the composite
// key a duplicate-mode database stores entries under. Property values are
// never expected to embed a NUL byte; this mirrors the assumption the
// reference store itself makes for its indexed scalars.
const dupSeparator = 0x00

// NamedDatabase is one bucket inside an Environment.
type NamedDatabase struct {
	name            string
	bucket          *bolt.Bucket
	allowDuplicates bool
}

func (d *NamedDatabase) Name() string          { return d.name }
func (d *NamedDatabase) AllowsDuplicates() bool { return d.allowDuplicates }

func (d *NamedDatabase) composite(key, value []byte) []byte {
	c := make([]byte, 0, len(key)+1+len(value))
	c = append(c, key...)
	c = append(c, dupSeparator)
	c = append(c, value...)
	return c
}

// Write stores value under key. On a duplicate-mode database this adds
// one more duplicate rather than replacing prior values for the same key;
// on a plain database it overwrites any existing value for key.
func (d *NamedDatabase) Write(key, value []byte) error {
	if len(key) == 0 {
		return NewError(d.name, KindConstraintViolation, "key must not be empty")
	}
	if d.allowDuplicates {
		if err := d.bucket.Put(d.composite(key, value), value); err != nil {
			return Wrap(d.name, KindGenericStorage, "write", err)
		}
		return nil
	}
	if err := d.bucket.Put(key, value); err != nil {
		return Wrap(d.name, KindGenericStorage, "write", err)
	}
	return nil
}

// Remove deletes every entry stored under key.
func (d *NamedDatabase) Remove(key []byte) error {
	if !d.allowDuplicates {
		if err := d.bucket.Delete(key); err != nil {
			return Wrap(d.name, KindGenericStorage, "remove", err)
		}
		return nil
	}

	prefix := append(append([]byte{}, key...), dupSeparator)
	c := d.bucket.Cursor()
	var toDelete [][]byte
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		toDelete = append(toDelete, append([]byte{}, k...))
	}
	for _, k := range toDelete {
		if err := d.bucket.Delete(k); err != nil {
			return Wrap(d.name, KindGenericStorage, "remove", err)
		}
	}
	return nil
}

// RemoveValue deletes exactly one duplicate entry: the one stored under
// key with this specific value. Only meaningful on a duplicate-mode
// database; on a plain database it behaves like Remove(key).
func (d *NamedDatabase) RemoveValue(key, value []byte) error {
	if !d.allowDuplicates {
		return d.Remove(key)
	}
	if err := d.bucket.Delete(d.composite(key, value)); err != nil {
		return Wrap(d.name, KindGenericStorage, "remove value", err)
	}
	return nil
}

// PairFunc is called with each matching (key, value) pair during a scan.
// Returning keepGoing=false stops the scan early without error.
type PairFunc func(key, value []byte) (keepGoing bool, err error)

// Scan visits every entry matching prefix.
//
// If prefix is empty, every entry in the database is visited.
// Otherwise, on a duplicate-mode database every value stored under the
// logical key equal to prefix is visited; on a plain database at most one
// entry (the exact key match) is visited. To visit every raw key with
// prefix as a byte prefix, use ScanPrefix.
func (d *NamedDatabase) Scan(prefix []byte, fn PairFunc) error {
	c := d.bucket.Cursor()

	if len(prefix) == 0 {
		for k, v := c.First(); k != nil; k, v = c.Next() {
			ok, err := fn(k, v)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		return nil
	}

	if !d.allowDuplicates {
		v := d.bucket.Get(prefix)
		if v == nil {
			return nil
		}
		_, err := fn(prefix, v)
		return err
	}

	search := append(append([]byte{}, prefix...), dupSeparator)
	for k, v := c.Seek(search); k != nil && bytes.HasPrefix(k, search); k, v = c.Next() {
		ok, err := fn(k, v)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return nil
}

// ScanPrefix visits every entry whose raw key has prefix as a byte
// prefix, regardless of the database's duplicate mode. This is the
// substring-match mode §4.2 describes for index lookups that scan a key
// range rather than a single logical key.
func (d *NamedDatabase) ScanPrefix(prefix []byte, fn PairFunc) error {
	c := d.bucket.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		ok, err := fn(k, v)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return nil
}

// FindLatest visits the single entry with the greatest raw key that has
// prefix as a byte prefix. Used to find the newest revision of an
// identifier in a table keyed by identifier⧺revision.
func (d *NamedDatabase) FindLatest(prefix []byte, fn func(key, value []byte) error) error {
	c := d.bucket.Cursor()
	var lastK, lastV []byte
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		lastK, lastV = k, v
	}
	if lastK == nil {
		return NewError(d.name, KindNotFound, "no entry with that prefix")
	}
	return fn(lastK, lastV)
}

// FindLast visits the greatest duplicate stored under the logical key.
// Only meaningful on a duplicate-mode database.
func (d *NamedDatabase) FindLast(key []byte, fn func(key, value []byte) error) error {
	prefix := append(append([]byte{}, key...), dupSeparator)
	return d.FindLatest(prefix, fn)
}

// FindAllInRange visits every entry with a raw key k such that
// lower <= k <= upper, inclusive of both bounds.
func (d *NamedDatabase) FindAllInRange(lower, upper []byte, fn PairFunc) error {
	c := d.bucket.Cursor()
	for k, v := c.Seek(lower); k != nil && bytes.Compare(k, upper) <= 0; k, v = c.Next() {
		ok, err := fn(k, v)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return nil
}

// Size returns the number of key/value pairs in the database. For a
// duplicate-mode database this counts individual duplicates, not
// distinct logical keys.
func (d *NamedDatabase) Size() int {
	return d.bucket.Stats().KeyN
}

// Stat exposes the underlying bbolt bucket statistics for inspection
// tooling (page counts, overflow, etc.).
func (d *NamedDatabase) Stat() bolt.BucketStats {
	return d.bucket.Stats()
}
