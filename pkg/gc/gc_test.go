package gc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinklabs/sink/pkg/domain"
	"github.com/sinklabs/sink/pkg/entitystore"
)

type fixedWatermark uint64

func (f fixedWatermark) LowWatermark() (uint64, error) { return uint64(f), nil }

func newTestStore(t *testing.T) *entitystore.Store {
	t.Helper()
	s, err := entitystore.Open(filepath.Join(t.TempDir(), "entities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCollectDropsSupersededRevisionsBelowWatermark(t *testing.T) {
	s := newTestStore(t)
	typ := string(domain.TypeFolder)

	folder := domain.NewFolder()
	folder.SetName("Inbox")
	id, _, err := s.Add(typ, nil, folder.Entity)
	require.NoError(t, err)

	folder.SetName("Archive")
	_, err = s.Modify(typ, id, folder.Entity, nil, 0)
	require.NoError(t, err)

	max, err := s.MaxRevision()
	require.NoError(t, err)

	c := New(s, fixedWatermark(max), []string{typ}, 0)
	require.NoError(t, c.Collect())

	rec, ok, err := s.FindLatest(typ, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Archive", rec.Properties["name"])
}

func TestCollectNeverAdvancesPastLiveQueryWatermark(t *testing.T) {
	s := newTestStore(t)
	typ := string(domain.TypeFolder)

	folder := domain.NewFolder()
	folder.SetName("Inbox")
	id, firstRev, err := s.Add(typ, nil, folder.Entity)
	require.NoError(t, err)

	folder.SetName("Archive")
	_, err = s.Modify(typ, id, folder.Entity, nil, 0)
	require.NoError(t, err)

	// A live query still sitting at firstRev-1 pins the watermark there,
	// so the superseded revision must survive the sweep.
	c := New(s, fixedWatermark(firstRev-1), []string{typ}, 0)
	require.NoError(t, c.Collect())

	cleanedUp, err := s.CleanedUpRevision()
	require.NoError(t, err)
	assert.LessOrEqual(t, cleanedUp, firstRev-1)
}
