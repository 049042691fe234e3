package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinklabs/sink/pkg/store"
)

func TestAddLookupRemove(t *testing.T) {
	env, err := store.Open(filepath.Join(t.TempDir(), "idx.db"))
	require.NoError(t, err)
	defer env.Close()

	tx, err := env.CreateTransaction(store.ReadWrite)
	require.NoError(t, err)
	idx, err := Open(tx, "sender")
	require.NoError(t, err)
	require.NoError(t, idx.Add([]byte("alice@example.com"), []byte("entity-1")))
	require.NoError(t, idx.Add([]byte("alice@example.com"), []byte("entity-2")))
	require.NoError(t, idx.Add([]byte("bob@example.com"), []byte("entity-3")))
	require.NoError(t, tx.Commit())

	tx2, err := env.CreateTransaction(store.ReadOnly)
	require.NoError(t, err)
	defer tx2.Abort()
	idx2, err := OpenExisting(tx2, "sender")
	require.NoError(t, err)

	got, err := idx2.LookupAll([]byte("alice@example.com"), false)
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]byte{[]byte("entity-1"), []byte("entity-2")}, got)

	tx3, err := env.CreateTransaction(store.ReadWrite)
	require.NoError(t, err)
	idx3, err := Open(tx3, "sender")
	require.NoError(t, err)
	require.NoError(t, idx3.Remove([]byte("alice@example.com"), []byte("entity-1")))
	require.NoError(t, tx3.Commit())

	tx4, err := env.CreateTransaction(store.ReadOnly)
	require.NoError(t, err)
	defer tx4.Abort()
	idx4, err := OpenExisting(tx4, "sender")
	require.NoError(t, err)
	got2, err := idx4.LookupAll([]byte("alice@example.com"), false)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("entity-2")}, got2)
}

func TestSubstringLookup(t *testing.T) {
	env, err := store.Open(filepath.Join(t.TempDir(), "idx.db"))
	require.NoError(t, err)
	defer env.Close()

	tx, err := env.CreateTransaction(store.ReadWrite)
	require.NoError(t, err)
	idx, err := Open(tx, "subject")
	require.NoError(t, err)
	require.NoError(t, idx.Add([]byte("invoice-001"), []byte("entity-1")))
	require.NoError(t, idx.Add([]byte("invoice-002"), []byte("entity-2")))
	require.NoError(t, idx.Add([]byte("receipt-001"), []byte("entity-3")))
	require.NoError(t, tx.Commit())

	tx2, err := env.CreateTransaction(store.ReadOnly)
	require.NoError(t, err)
	defer tx2.Abort()
	idx2, err := OpenExisting(tx2, "subject")
	require.NoError(t, err)

	got, err := idx2.LookupAll([]byte("invoice"), true)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
