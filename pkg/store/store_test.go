package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestEnv(t *testing.T) *Environment {
	t.Helper()
	env, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func TestCreateAndReopenDatabase(t *testing.T) {
	env := openTestEnv(t)

	tx, err := env.CreateTransaction(ReadWrite)
	require.NoError(t, err)
	db, err := tx.CreateDatabaseIfNotExists("widgets", false)
	require.NoError(t, err)
	require.NoError(t, db.Write([]byte("a"), []byte("1")))
	require.NoError(t, tx.Commit())

	tx2, err := env.CreateTransaction(ReadOnly)
	require.NoError(t, err)
	defer tx2.Abort()
	db2, err := tx2.Database("widgets")
	require.NoError(t, err)
	var got []byte
	require.NoError(t, db2.Scan([]byte("a"), func(k, v []byte) (bool, error) {
		got = v
		return true, nil
	}))
	assert.Equal(t, []byte("1"), got)
}

func TestDatabaseNotFound(t *testing.T) {
	env := openTestEnv(t)
	tx, err := env.CreateTransaction(ReadOnly)
	require.NoError(t, err)
	defer tx.Abort()

	_, err = tx.Database("missing")
	assert.True(t, IsNotFound(err))
}

func TestWriteOnReadOnlyTransactionRejected(t *testing.T) {
	env := openTestEnv(t)

	txw, err := env.CreateTransaction(ReadWrite)
	require.NoError(t, err)
	_, err = txw.CreateDatabaseIfNotExists("widgets", false)
	require.NoError(t, err)
	require.NoError(t, txw.Commit())

	txr, err := env.CreateTransaction(ReadOnly)
	require.NoError(t, err)
	defer txr.Abort()

	_, err = txr.CreateDatabaseIfNotExists("widgets", false)
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindReadOnly, se.Kind)
}

func TestDuplicateModeStoresEveryValue(t *testing.T) {
	env := openTestEnv(t)

	tx, err := env.CreateTransaction(ReadWrite)
	require.NoError(t, err)
	idx, err := tx.CreateDatabaseIfNotExists("index", true)
	require.NoError(t, err)
	require.NoError(t, idx.Write([]byte("red"), []byte("entity-1")))
	require.NoError(t, idx.Write([]byte("red"), []byte("entity-2")))
	require.NoError(t, idx.Write([]byte("blue"), []byte("entity-3")))
	require.NoError(t, tx.Commit())

	tx2, err := env.CreateTransaction(ReadOnly)
	require.NoError(t, err)
	defer tx2.Abort()
	idx2, err := tx2.Database("index")
	require.NoError(t, err)

	var values []string
	require.NoError(t, idx2.Scan([]byte("red"), func(k, v []byte) (bool, error) {
		values = append(values, string(v))
		return true, nil
	}))
	assert.ElementsMatch(t, []string{"entity-1", "entity-2"}, values)
}

func TestRemoveValueLeavesOtherDuplicates(t *testing.T) {
	env := openTestEnv(t)

	tx, err := env.CreateTransaction(ReadWrite)
	require.NoError(t, err)
	idx, err := tx.CreateDatabaseIfNotExists("index", true)
	require.NoError(t, err)
	require.NoError(t, idx.Write([]byte("red"), []byte("entity-1")))
	require.NoError(t, idx.Write([]byte("red"), []byte("entity-2")))
	require.NoError(t, idx.RemoveValue([]byte("red"), []byte("entity-1")))
	require.NoError(t, tx.Commit())

	tx2, err := env.CreateTransaction(ReadOnly)
	require.NoError(t, err)
	defer tx2.Abort()
	idx2, err := tx2.Database("index")
	require.NoError(t, err)

	var values []string
	require.NoError(t, idx2.Scan([]byte("red"), func(k, v []byte) (bool, error) {
		values = append(values, string(v))
		return true, nil
	}))
	assert.Equal(t, []string{"entity-2"}, values)
}

func TestFindLatestReturnsGreatestKeyWithPrefix(t *testing.T) {
	env := openTestEnv(t)

	tx, err := env.CreateTransaction(ReadWrite)
	require.NoError(t, err)
	db, err := tx.CreateDatabaseIfNotExists("revisions", false)
	require.NoError(t, err)
	require.NoError(t, db.Write([]byte("entity-1:0000001"), []byte("v1")))
	require.NoError(t, db.Write([]byte("entity-1:0000002"), []byte("v2")))
	require.NoError(t, db.Write([]byte("entity-2:0000001"), []byte("other")))
	require.NoError(t, tx.Commit())

	tx2, err := env.CreateTransaction(ReadOnly)
	require.NoError(t, err)
	defer tx2.Abort()
	db2, err := tx2.Database("revisions")
	require.NoError(t, err)

	var got string
	require.NoError(t, db2.FindLatest([]byte("entity-1:"), func(k, v []byte) error {
		got = string(v)
		return nil
	}))
	assert.Equal(t, "v2", got)
}

func TestReaderSeesDatabaseCreatedAfterItStarted(t *testing.T) {
	env := openTestEnv(t)

	reader, err := env.CreateTransaction(ReadOnly)
	require.NoError(t, err)
	defer reader.Abort()

	writer, err := env.CreateTransaction(ReadWrite)
	require.NoError(t, err)
	_, err = writer.CreateDatabaseIfNotExists("widgets", false)
	require.NoError(t, err)
	require.NoError(t, writer.Commit())

	db, err := reader.Database("widgets")
	require.NoError(t, err, "a read-only transaction should renew onto the latest snapshot")
	assert.NotNil(t, db)
}

func TestEnvironmentStatSummarizesDatabases(t *testing.T) {
	env := openTestEnv(t)

	tx, err := env.CreateTransaction(ReadWrite)
	require.NoError(t, err)
	widgets, err := tx.CreateDatabaseIfNotExists("widgets", false)
	require.NoError(t, err)
	require.NoError(t, widgets.Write([]byte("a"), []byte("1")))
	require.NoError(t, widgets.Write([]byte("b"), []byte("2")))
	_, err = tx.CreateDatabaseIfNotExists("gadgets", false)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	stats, err := env.Stat()
	require.NoError(t, err)

	byName := map[string]int{}
	for _, s := range stats {
		byName[s.Name] = s.Entries
	}
	assert.Equal(t, 2, byName["widgets"])
	assert.Equal(t, 0, byName["gadgets"])
}
