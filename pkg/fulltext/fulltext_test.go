package fulltext

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "fulltext.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSearchMatchesAnyIndexedField(t *testing.T) {
	idx := openTestIndex(t)

	require.NoError(t, idx.Add([]byte("entity-1"), map[string]string{
		"subject": "Quarterly report attached",
		"sender":  "alice@example.com",
	}))
	require.NoError(t, idx.Add([]byte("entity-2"), map[string]string{
		"subject": "Lunch plans",
		"sender":  "bob@example.com",
	}))

	got, err := idx.Search("quarterly")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("entity-1")}, got)
}

func TestSearchExcludesTerm(t *testing.T) {
	idx := openTestIndex(t)

	require.NoError(t, idx.Add([]byte("entity-1"), map[string]string{"subject": "quarterly numbers final"}))
	require.NoError(t, idx.Add([]byte("entity-2"), map[string]string{"subject": "quarterly numbers draft"}))

	got, err := idx.Search("quarterly -draft")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("entity-1")}, got)
}

func TestSearchPhraseRequiresAdjacency(t *testing.T) {
	idx := openTestIndex(t)

	require.NoError(t, idx.Add([]byte("entity-1"), map[string]string{"subject": "final quarterly report"}))
	require.NoError(t, idx.Add([]byte("entity-2"), map[string]string{"subject": "quarterly and final numbers"}))

	got, err := idx.Search(`"quarterly report"`)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("entity-1")}, got)
}

func TestRemoveDropsDocumentFromResults(t *testing.T) {
	idx := openTestIndex(t)

	require.NoError(t, idx.Add([]byte("entity-1"), map[string]string{"subject": "quarterly report"}))
	require.NoError(t, idx.Remove([]byte("entity-1")))

	got, err := idx.Search("quarterly")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFieldPrefixScopesSearch(t *testing.T) {
	idx := openTestIndex(t)

	require.NoError(t, idx.Add([]byte("entity-1"), map[string]string{
		"subject": "invoice",
		"sender":  "invoice@billing.example.com",
	}))

	got, err := idx.Search("S:invoice")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("entity-1")}, got)
}
