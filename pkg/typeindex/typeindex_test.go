package typeindex

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinklabs/sink/pkg/domain"
	"github.com/sinklabs/sink/pkg/store"
)

func newTestEnv(t *testing.T) *store.Environment {
	t.Helper()
	env, err := store.Open(filepath.Join(t.TempDir(), "mail.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func mailTypeIndex() *TypeIndex {
	ti := New("mail")
	ti.AddProperty("messageId")
	ti.AddProperty("sender")
	ti.AddSortedProperty("folder", "date")
	return ti
}

func TestPlanPrefersSortedIndexWhenSortPropertyMatches(t *testing.T) {
	env := newTestEnv(t)
	ti := mailTypeIndex()

	tx, err := env.CreateTransaction(store.ReadWrite)
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m1 := domain.NewMail()
	m1.SetFolder("inbox")
	m1.SetDate(base)
	require.NoError(t, ti.Add(tx, []byte("entity-1"), m1.Entity))

	m2 := domain.NewMail()
	m2.SetFolder("inbox")
	m2.SetDate(base.Add(time.Hour))
	require.NoError(t, ti.Add(tx, []byte("entity-2"), m2.Entity))

	require.NoError(t, tx.Commit())

	tx2, err := env.CreateTransaction(store.ReadOnly)
	require.NoError(t, err)
	defer tx2.Abort()

	ids, applied, sorting, err := ti.Plan(tx2, map[string]Filter{
		"folder": {Comparator: Equals, Value: "inbox"},
	}, "date")
	require.NoError(t, err)
	assert.True(t, applied["folder"])
	assert.Equal(t, "date", sorting)
	assert.Len(t, ids, 2)
}

func TestPlanFallsBackToSimpleIndex(t *testing.T) {
	env := newTestEnv(t)
	ti := mailTypeIndex()

	tx, err := env.CreateTransaction(store.ReadWrite)
	require.NoError(t, err)
	m := domain.NewMail()
	m.SetMessageId("m1")
	require.NoError(t, ti.Add(tx, []byte("entity-1"), m.Entity))
	require.NoError(t, tx.Commit())

	tx2, err := env.CreateTransaction(store.ReadOnly)
	require.NoError(t, err)
	defer tx2.Abort()

	ids, applied, sorting, err := ti.Plan(tx2, map[string]Filter{
		"messageId": {Comparator: Equals, Value: "m1"},
	}, "")
	require.NoError(t, err)
	assert.True(t, applied["messageId"])
	assert.Empty(t, sorting)
	assert.Equal(t, [][]byte{[]byte("entity-1")}, ids)
}

func TestPlanReturnsNoPlanWhenNoIndexMatches(t *testing.T) {
	env := newTestEnv(t)
	ti := mailTypeIndex()

	tx, err := env.CreateTransaction(store.ReadOnly)
	require.NoError(t, err)
	defer tx.Abort()

	ids, applied, _, err := ti.Plan(tx, map[string]Filter{
		"subject": {Comparator: Equals, Value: "x"},
	}, "")
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Empty(t, ids)
}

func TestRemoveUndoesIndexEntries(t *testing.T) {
	env := newTestEnv(t)
	ti := mailTypeIndex()

	tx, err := env.CreateTransaction(store.ReadWrite)
	require.NoError(t, err)
	m := domain.NewMail()
	m.SetMessageId("m1")
	require.NoError(t, ti.Add(tx, []byte("entity-1"), m.Entity))
	require.NoError(t, ti.Remove(tx, []byte("entity-1"), m.Entity))
	require.NoError(t, tx.Commit())

	tx2, err := env.CreateTransaction(store.ReadOnly)
	require.NoError(t, err)
	defer tx2.Abort()

	ids, err := ti.Lookup(tx2, "messageId", "m1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
