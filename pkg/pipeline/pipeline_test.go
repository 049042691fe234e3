package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinklabs/sink/pkg/domain"
	"github.com/sinklabs/sink/pkg/store"
	"github.com/sinklabs/sink/pkg/typeindex"
)

func TestDefaultIndexerKeepsIndexInSyncAcrossModify(t *testing.T) {
	env, err := store.Open(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	defer env.Close()

	ti := typeindex.New("mail")
	ti.AddProperty("subject")
	p := New()
	p.Register(&DefaultIndexer{TypeIndex: ti})

	tx, err := env.CreateTransaction(store.ReadWrite)
	require.NoError(t, err)

	id := []byte("entity-1")
	created := domain.NewMail()
	created.SetSubject("hello")
	require.NoError(t, p.Created(tx, id, created.Entity))

	old := domain.LoadMail(map[string]any{"subject": "hello"})
	newer := domain.LoadMail(map[string]any{"subject": "goodbye"})
	require.NoError(t, p.Modified(tx, id, old.Entity, newer.Entity))
	require.NoError(t, tx.Commit())

	tx2, err := env.CreateTransaction(store.ReadOnly)
	require.NoError(t, err)
	defer tx2.Abort()

	hits, err := ti.Lookup(tx2, "subject", "goodbye")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{id}, hits)

	stale, err := ti.Lookup(tx2, "subject", "hello")
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestCustomPropertyIndexerLifecycle(t *testing.T) {
	env, err := store.Open(filepath.Join(t.TempDir(), "pipeline2.db"))
	require.NoError(t, err)
	defer env.Close()

	p := New()
	p.Register(&CustomPropertyIndexer{IndexName: "mail.index.sender", Property: "sender"})

	tx, err := env.CreateTransaction(store.ReadWrite)
	require.NoError(t, err)

	id := []byte("entity-1")
	e := domain.NewMail()
	e.SetSender("alice@example.com")
	require.NoError(t, p.Created(tx, id, e.Entity))
	require.NoError(t, p.Deleted(tx, id, e.Entity))
	require.NoError(t, tx.Commit())

	tx2, err := env.CreateTransaction(store.ReadOnly)
	require.NoError(t, err)
	defer tx2.Abort()

	idx, err := tx2.Database("mail.index.sender")
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Size())
}
