package query

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinklabs/sink/pkg/domain"
	"github.com/sinklabs/sink/pkg/entitystore"
	"github.com/sinklabs/sink/pkg/events"
	"github.com/sinklabs/sink/pkg/fulltext"
	"github.com/sinklabs/sink/pkg/pipeline"
	"github.com/sinklabs/sink/pkg/typeindex"
)

// fixture bundles everything a runner needs: an entity store, the mail
// type index it runs queries against, and optionally a revision broker
// (live queries) and a full-text index (Fulltext comparator).
type fixture struct {
	store   *entitystore.Store
	ti      *typeindex.TypeIndex
	broker  *events.Broker
	ft      *fulltext.Index
	runner  *Runner
}

func mailTypeIndex() *typeindex.TypeIndex {
	ti := typeindex.New(string(domain.TypeMail))
	ti.AddProperty("folder")
	ti.AddProperty("sender")
	ti.AddSortedProperty("folder", "date")
	return ti
}

func newFixture(t *testing.T, live, searchable bool) *fixture {
	t.Helper()

	es, err := entitystore.Open(filepath.Join(t.TempDir(), "entities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = es.Close() })

	ti := mailTypeIndex()
	p := pipeline.New()
	p.Register(&pipeline.DefaultIndexer{TypeIndex: ti})

	var ft *fulltext.Index
	if searchable {
		ft, err = fulltext.Open(filepath.Join(t.TempDir(), "fulltext.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = ft.Close() })
		p.Register(&pipeline.FulltextIndexer{Index: ft})
	}
	es.RegisterPipeline(string(domain.TypeMail), p)

	var broker *events.Broker
	if live {
		broker = events.NewBroker()
		broker.Start()
		t.Cleanup(broker.Stop)
		es.SetBroker(broker)
	}

	r := NewRunner(es, broker, ft)
	r.RegisterTypeIndex(string(domain.TypeMail), ti)

	return &fixture{store: es, ti: ti, broker: broker, ft: ft, runner: r}
}

func addMail(t *testing.T, f *fixture, folder, sender, subject string, date time.Time) []byte {
	t.Helper()
	m := domain.NewMail()
	m.SetFolder(folder)
	m.SetSender(sender)
	m.SetSubject(subject)
	m.SetDate(date)
	id, _, err := f.store.Add(string(domain.TypeMail), nil, m.Entity)
	require.NoError(t, err)
	return id
}

func drain(t *testing.T, out <-chan Event) []Event {
	t.Helper()
	var collected []Event
	for e := range out {
		collected = append(collected, e)
	}
	return collected
}

// Sorted-index queries (spec.md §8 scenario 3): a query over an indexed
// property with a matching sorted index returns results newest-first
// without the runner needing to sort them itself.
func TestExecuteUsesSortedIndexForFolderOrderedByDate(t *testing.T) {
	f := newFixture(t, false, false)

	oldest := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	middle := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	newest := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	idOld := addMail(t, f, "inbox", "alice@example.com", "first", oldest)
	idNew := addMail(t, f, "inbox", "bob@example.com", "third", newest)
	idMid := addMail(t, f, "inbox", "carol@example.com", "second", middle)
	_ = addMail(t, f, "archive", "dave@example.com", "other folder", newest)

	out, _, err := f.runner.Execute(Query{
		Type:         string(domain.TypeMail),
		Filters:      map[string]Filter{"folder": {Comparator: Equals, Value: "inbox"}},
		SortProperty: "date",
	})
	require.NoError(t, err)

	var ids [][]byte
	for _, e := range drain(t, out) {
		if e.Kind == Added {
			ids = append(ids, e.Id)
		}
	}
	require.Len(t, ids, 3)
	assert.Equal(t, idNew, ids[0])
	assert.Equal(t, idMid, ids[1])
	assert.Equal(t, idOld, ids[2])
}

// Reduce/group-by (spec.md §8 scenario 4): grouping mail by sender and
// reducing to the most recent per sender picks the max-date member, and
// a candidate missing the selector property entirely never wins the
// reduction (regression coverage for the compareAny nil-ordering fix).
func TestExecuteReduceMaxPicksLatestPerGroupAndIgnoresAbsentSelector(t *testing.T) {
	f := newFixture(t, false, false)

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	_ = addMail(t, f, "inbox", "alice@example.com", "older from alice", older)
	newestAlice := addMail(t, f, "inbox", "alice@example.com", "newest from alice", newer)

	// A third alice mail with no date set at all: properties["date"] is
	// absent, so compareAny must treat it as less than any real date.
	noDate := domain.NewMail()
	noDate.SetFolder("inbox")
	noDate.SetSender("alice@example.com")
	noDate.SetSubject("undated from alice")
	_, _, err := f.store.Add(string(domain.TypeMail), nil, noDate.Entity)
	require.NoError(t, err)

	bobOnly := addMail(t, f, "inbox", "bob@example.com", "only from bob", older)

	out, _, err := f.runner.Execute(Query{
		Type: string(domain.TypeMail),
		Reduce: &Reduce{
			Property:         "sender",
			SelectorProperty: "date",
			Selector:         ReduceMax,
		},
	})
	require.NoError(t, err)

	byID := map[string]Event{}
	for _, e := range drain(t, out) {
		if e.Kind == Added {
			byID[string(e.Id)] = e
		}
	}
	require.Len(t, byID, 2)
	aliceRep, ok := byID[string(newestAlice)]
	require.True(t, ok, "the dated, newer alice mail must be the group representative, not the undated one")
	assert.Equal(t, 3, aliceRep.Properties["_count"])
	_, ok = byID[string(bobOnly)]
	assert.True(t, ok)
}

// Live-query delta emission under concurrent inserts (spec.md §8
// scenario 5): a LiveQuery keeps emitting Added events for every mail
// that lands in the matching folder after the initial result set, with
// several writers inserting concurrently once the subscription is set up.
func TestExecuteLiveQueryEmitsAddedForConcurrentInserts(t *testing.T) {
	f := newFixture(t, true, false)

	_ = addMail(t, f, "inbox", "alice@example.com", "before", time.Now())

	out, handle, err := f.runner.Execute(Query{
		Type:    string(domain.TypeMail),
		Filters: map[string]Filter{"folder": {Comparator: Equals, Value: "inbox"}},
		Flags:   LiveQuery,
	})
	require.NoError(t, err)
	t.Cleanup(handle.Cancel)

	const concurrentInserts = 5
	done := make(chan []byte, concurrentInserts)
	for i := 0; i < concurrentInserts; i++ {
		go func(n int) {
			id := addMail(t, f, "inbox", "carol@example.com", "concurrent", time.Now())
			done <- id
		}(i)
	}

	want := map[string]bool{}
	for i := 0; i < concurrentInserts; i++ {
		want[string(<-done)] = true
	}

	seen := map[string]bool{}
	var sawInitialComplete bool
	for len(seen) < len(want) {
		select {
		case e := <-out:
			switch e.Kind {
			case InitialResultSetComplete:
				sawInitialComplete = true
			case Added:
				if want[string(e.Id)] {
					seen[string(e.Id)] = true
				}
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for live query deltas, saw %d/%d", len(seen), len(want))
		}
	}
	assert.True(t, sawInitialComplete)
	assert.Len(t, seen, concurrentInserts)
}

// Full-text plus structured-filter combination (spec.md §8 scenario 8):
// a query can combine a Fulltext comparator (matched against the
// full-text index) with an ordinary structured Equals filter, and only
// entities satisfying both survive.
func TestExecuteCombinesFulltextAndStructuredFilter(t *testing.T) {
	f := newFixture(t, false, true)

	inboxMatch := addMail(t, f, "inbox", "alice@example.com", "urgent invoice", time.Now())
	_ = addMail(t, f, "archive", "alice@example.com", "urgent invoice", time.Now())
	_ = addMail(t, f, "inbox", "alice@example.com", "quarterly newsletter", time.Now())

	out, _, err := f.runner.Execute(Query{
		Type: string(domain.TypeMail),
		Filters: map[string]Filter{
			"folder": {Comparator: Equals, Value: "inbox"},
			"_text":  {Comparator: Fulltext, Value: "urgent"},
		},
	})
	require.NoError(t, err)

	var ids [][]byte
	for _, e := range drain(t, out) {
		if e.Kind == Added {
			ids = append(ids, e.Id)
		}
	}
	require.Len(t, ids, 1)
	assert.Equal(t, inboxMatch, ids[0])
}
