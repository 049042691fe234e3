package changereplay

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinklabs/sink/pkg/domain"
	"github.com/sinklabs/sink/pkg/entitystore"
	"github.com/sinklabs/sink/pkg/health"
)

type fakeChecker struct {
	result health.Result
}

func (f fakeChecker) Check(context.Context) health.Result { return f.result }
func (f fakeChecker) Type() health.CheckType              { return health.CheckTypeTCP }

func newFixtures(t *testing.T) (*entitystore.Store, *Cursor) {
	t.Helper()
	dir := t.TempDir()
	es, err := entitystore.Open(filepath.Join(dir, "entities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = es.Close() })

	cur, err := Open(filepath.Join(dir, "resource.changereplay"), "resource", es, func(context.Context, string, []byte, uint64, entitystore.Record) error {
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cur.Close() })
	return es, cur
}

func TestTriggerAdvancesCursorThroughMaxRevision(t *testing.T) {
	es, cur := newFixtures(t)
	typ := string(domain.TypeFolder)

	for i := 0; i < 10; i++ {
		f := domain.NewFolder()
		f.SetName("Inbox")
		_, _, err := es.Add(typ, nil, f.Entity)
		require.NoError(t, err)
	}

	require.NoError(t, cur.Trigger(context.Background()))
	last, err := cur.LastReplayedRevision()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), last)
}

func TestTriggerStopsAtFirstFailingRevision(t *testing.T) {
	dir := t.TempDir()
	es, err := entitystore.Open(filepath.Join(dir, "entities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = es.Close() })

	typ := string(domain.TypeFolder)
	var ids [][]byte
	for i := 0; i < 5; i++ {
		f := domain.NewFolder()
		f.SetName("Inbox")
		id, _, addErr := es.Add(typ, nil, f.Entity)
		require.NoError(t, addErr)
		ids = append(ids, id)
	}

	failAt := uint64(3)
	cur, err := Open(filepath.Join(dir, "resource.changereplay"), "resource", es, func(_ context.Context, _ string, _ []byte, revision uint64, _ entitystore.Record) error {
		if revision == failAt {
			return errors.New("simulated synchronizer failure")
		}
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cur.Close() })

	require.Error(t, cur.Trigger(context.Background()))
	last, err := cur.LastReplayedRevision()
	require.NoError(t, err)
	assert.Equal(t, failAt-1, last)
}

func TestTriggerSkipsCycleWhenCheckerReportsUnreachable(t *testing.T) {
	es, cur := newFixtures(t)
	typ := string(domain.TypeFolder)

	f := domain.NewFolder()
	f.SetName("Inbox")
	_, _, err := es.Add(typ, nil, f.Entity)
	require.NoError(t, err)

	cur.SetChecker(fakeChecker{result: health.Result{Healthy: false, Message: "connection refused"}})

	require.NoError(t, cur.Trigger(context.Background()))
	last, err := cur.LastReplayedRevision()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), last, "cursor must not advance when the connection test fails")
}

func TestChangeReplayCursorPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	es, err := entitystore.Open(filepath.Join(dir, "entities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = es.Close() })

	typ := string(domain.TypeFolder)
	for i := 0; i < 10; i++ {
		f := domain.NewFolder()
		f.SetName("Inbox")
		_, _, addErr := es.Add(typ, nil, f.Entity)
		require.NoError(t, addErr)
	}

	path := filepath.Join(dir, "resource.changereplay")
	cur, err := Open(path, "resource", es, func(context.Context, string, []byte, uint64, entitystore.Record) error { return nil })
	require.NoError(t, err)
	require.NoError(t, cur.Trigger(context.Background()))
	last, err := cur.LastReplayedRevision()
	require.NoError(t, err)
	require.Equal(t, uint64(10), last)
	require.NoError(t, cur.Close())

	for i := 0; i < 5; i++ {
		f := domain.NewFolder()
		f.SetName("Archive")
		_, _, addErr := es.Add(typ, nil, f.Entity)
		require.NoError(t, addErr)
	}

	reopened, err := Open(path, "resource", es, func(context.Context, string, []byte, uint64, entitystore.Record) error { return nil })
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	resumedFrom, err := reopened.LastReplayedRevision()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), resumedFrom)

	require.NoError(t, reopened.Trigger(context.Background()))
	final, err := reopened.LastReplayedRevision()
	require.NoError(t, err)
	assert.Equal(t, uint64(15), final)
}
