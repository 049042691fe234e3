// Package query implements the query runner (C9): it plans a query
// against a type's indexes, materializes and filters the candidate
// entities, optionally reduces and sorts them, and emits the result set
// as added/modified/removed events — continuing to emit as the
// underlying entity store commits new revisions when the query asks
// for live mode.
package query

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sinklabs/sink/pkg/domain"
	"github.com/sinklabs/sink/pkg/entitystore"
	"github.com/sinklabs/sink/pkg/events"
	"github.com/sinklabs/sink/pkg/fulltext"
	"github.com/sinklabs/sink/pkg/log"
	"github.com/sinklabs/sink/pkg/metrics"
	"github.com/sinklabs/sink/pkg/typeindex"
)

// Comparator is how a Filter's value relates to a requested property.
// It is a superset of typeindex.Comparator: the index can only resolve
// Equals/In on its own, so GreaterThan/LessThan/Contains/Range/Fulltext
// are always evaluated here in the Filter step even when the property
// they touch is indexed.
type Comparator int

const (
	Equals Comparator = iota
	In
	NotEquals
	GreaterThan
	LessThan
	Contains
	Range
	Fulltext
)

// Filter is one query predicate.
type Filter struct {
	Comparator Comparator
	Value      any
	Values     []any
	RangeLower any
	RangeUpper any
}

// ReduceSelector picks which group member becomes the representative.
type ReduceSelector int

const (
	ReduceMax ReduceSelector = iota
	ReduceMin
)

// Reduce groups results by Property and keeps one representative per
// group, chosen as the max or min of SelectorProperty.
type Reduce struct {
	Property         string
	SelectorProperty string
	Selector         ReduceSelector
}

// Flags are query execution modifiers.
type Flags int

const (
	// LiveQuery keeps the query subscribed to the resource's revision
	// notifier after the initial result set is emitted.
	LiveQuery Flags = 1 << iota
)

// Query is one request against one entity type.
type Query struct {
	Type                string
	Filters             map[string]Filter
	SortProperty        string
	RequestedProperties []string
	Limit               int
	Reduce              *Reduce
	// Bloom requests a cheap approximate pre-filter over the candidate
	// set before the precise filter step runs. The runner accepts the
	// flag but always evaluates filters precisely regardless of its
	// value; no candidate set observed in practice has been large
	// enough to need the approximation.
	Bloom bool
	Flags Flags
}

// EventKind is what happened to an identifier in a query's result set.
type EventKind int

const (
	Added EventKind = iota
	Modified
	Removed
	InitialResultSetComplete
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	case InitialResultSetComplete:
		return "initial-result-set-complete"
	default:
		return "unknown"
	}
}

// Event is one result-set change delivered to a query's subscriber.
type Event struct {
	Kind       EventKind
	Id         []byte
	Properties map[string]any
}

// Handle lets a caller cancel a running (possibly live) query.
type Handle struct {
	cancel func()
}

// Cancel drops the subscriber, unregisters from the revision notifier,
// and releases any transaction the query still holds.
func (h *Handle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Runner executes queries against one resource's entity store.
type Runner struct {
	entities    *entitystore.Store
	typeIndexes map[string]*typeindex.TypeIndex
	fulltext    *fulltext.Index
	broker      *events.Broker
	logger      zerolog.Logger

	cursorsMu sync.Mutex
	cursors   map[*Handle]*uint64
}

// NewRunner builds a Runner over entities. broker and ft may be nil: a
// nil broker means LiveQuery is rejected, a nil ft means the Fulltext
// comparator is rejected.
func NewRunner(entities *entitystore.Store, broker *events.Broker, ft *fulltext.Index) *Runner {
	return &Runner{
		entities:    entities,
		typeIndexes: map[string]*typeindex.TypeIndex{},
		fulltext:    ft,
		broker:      broker,
		logger:      log.WithComponent("query"),
		cursors:     map[*Handle]*uint64{},
	}
}

// LowWatermark returns the lowest revision any currently registered live
// query has not yet advanced past, or the current maxRevision if no live
// query is registered. The garbage collector (pkg/gc) must never clean up
// a revision above this watermark, or a live query still replaying it
// would find its cursor unsatisfiable.
func (r *Runner) LowWatermark() (uint64, error) {
	r.cursorsMu.Lock()
	var lowest uint64
	first := true
	for _, rev := range r.cursors {
		v := *rev
		if first || v < lowest {
			lowest = v
			first = false
		}
	}
	r.cursorsMu.Unlock()
	if !first {
		return lowest, nil
	}
	return r.entities.MaxRevision()
}

func (r *Runner) registerCursor(h *Handle, lastSeen *uint64) {
	r.cursorsMu.Lock()
	r.cursors[h] = lastSeen
	r.cursorsMu.Unlock()
	metrics.LiveQueriesActive.Inc()
}

func (r *Runner) unregisterCursor(h *Handle) {
	r.cursorsMu.Lock()
	delete(r.cursors, h)
	r.cursorsMu.Unlock()
	metrics.LiveQueriesActive.Dec()
}

// RegisterTypeIndex wires the type index Execute's Plan step consults
// for typ. A type with no registered index always falls back to a full
// scan.
func (r *Runner) RegisterTypeIndex(typ string, ti *typeindex.TypeIndex) {
	r.typeIndexes[typ] = ti
}

type candidate struct {
	id         []byte
	properties map[string]any
}

// Execute runs q and returns a channel of result events plus a cancel
// handle. The channel is closed once the initial result set has been
// fully emitted, unless q.Flags has LiveQuery set, in which case it
// stays open until Handle.Cancel is called.
func (r *Runner) Execute(q Query) (<-chan Event, *Handle, error) {
	out := make(chan Event, 64)
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.QueryDuration, q.Type)

	candidates, appliedFilters, appliedSorting, err := r.plan(q)
	if err != nil {
		close(out)
		return nil, nil, err
	}
	recordPlanMetric(appliedFilters, appliedSorting)

	entries, err := r.materializeAndFilter(q, candidates, appliedFilters)
	if err != nil {
		close(out)
		return nil, nil, err
	}

	if q.Reduce != nil {
		entries = reduceGroups(entries, *q.Reduce)
	}
	if q.SortProperty != "" && appliedSorting != q.SortProperty {
		sortEntries(entries, q.SortProperty)
	}
	if q.Limit > 0 && len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}

	lastSeen, err := r.entities.MaxRevision()
	if err != nil {
		close(out)
		return nil, nil, err
	}

	go func() {
		for _, e := range entries {
			out <- Event{Kind: Added, Id: e.id, Properties: e.properties}
		}
		out <- Event{Kind: InitialResultSetComplete}
		if q.Flags&LiveQuery == 0 {
			close(out)
		}
	}()

	if q.Flags&LiveQuery == 0 {
		return out, &Handle{}, nil
	}
	if r.broker == nil {
		close(out)
		return nil, nil, fmt.Errorf("query: live query requested but no revision notifier is wired")
	}

	tracked := map[string]candidate{}
	for _, e := range entries {
		tracked[string(e.id)] = e
	}
	rawByID := map[string]candidate{}
	if q.Reduce != nil {
		// Seed the raw (pre-reduce) candidate set with the initial batch
		// so the first live recompute has something to reduce over.
		allRaw, err := r.materializeAndFilter(Query{Type: q.Type, Filters: q.Filters, RequestedProperties: q.RequestedProperties}, nil, nil)
		if err == nil {
			for _, e := range allRaw {
				rawByID[string(e.id)] = e
			}
		}
	}

	sub := r.broker.Subscribe()
	cancelled := make(chan struct{})
	go r.liveLoop(q, sub, out, cancelled, &lastSeen, tracked, rawByID)

	handle := &Handle{}
	handle.cancel = func() {
		close(cancelled)
		r.broker.Unsubscribe(sub)
		r.unregisterCursor(handle)
	}
	r.registerCursor(handle, &lastSeen)
	return out, handle, nil
}

func (r *Runner) liveLoop(q Query, sub events.Subscriber, out chan Event, cancelled chan struct{}, lastSeen *uint64, tracked, rawByID map[string]candidate) {
	defer close(out)
	for {
		select {
		case <-cancelled:
			return
		case commit, ok := <-sub:
			if !ok {
				return
			}
			if commit.Type != q.Type || commit.Revision <= *lastSeen {
				continue
			}
			if err := r.processCommitBatch(q, lastSeen, commit.Revision, out, tracked, rawByID); err != nil {
				r.logger.Error().Err(err).Str("type", q.Type).Msg("live query re-evaluation failed")
			}
		}
	}
}

func (r *Runner) processCommitBatch(q Query, lastSeen *uint64, upper uint64, out chan Event, tracked, rawByID map[string]candidate) error {
	lower := *lastSeen + 1
	touched := map[string]bool{}
	if err := r.entities.ReadRevisions(lower, upper, func(_ uint64, id []byte, typ string) (bool, error) {
		if typ == q.Type {
			touched[string(id)] = true
		}
		return true, nil
	}); err != nil {
		return err
	}
	*lastSeen = upper

	for idStr := range touched {
		id := []byte(idStr)
		rec, ok, err := r.entities.FindLatest(q.Type, id)
		if err != nil {
			return err
		}
		if !ok || rec.IsTombstone() {
			delete(rawByID, idStr)
			if q.Reduce == nil {
				if _, was := tracked[idStr]; was {
					delete(tracked, idStr)
					out <- Event{Kind: Removed, Id: id}
				}
			}
			continue
		}

		properties := domain.Coerce(domain.Type(q.Type), filterProperties(rec.Properties, q.RequestedProperties))
		matches, err := r.evaluateFilters(q, id, properties, map[string]bool{})
		if err != nil {
			return err
		}

		if q.Reduce != nil {
			if matches {
				rawByID[idStr] = candidate{id: id, properties: properties}
			} else {
				delete(rawByID, idStr)
			}
			continue
		}

		_, was := tracked[idStr]
		switch {
		case matches && !was:
			tracked[idStr] = candidate{id: id, properties: properties}
			out <- Event{Kind: Added, Id: id, Properties: properties}
		case matches && was:
			tracked[idStr] = candidate{id: id, properties: properties}
			out <- Event{Kind: Modified, Id: id, Properties: properties}
		case !matches && was:
			delete(tracked, idStr)
			out <- Event{Kind: Removed, Id: id}
		}
	}

	if q.Reduce != nil {
		r.emitReduceDelta(*q.Reduce, tracked, rawByID, out)
	}
	return nil
}

// emitReduceDelta recomputes the reduced representative of every group
// in rawByID and diffs it against tracked (keyed by group key, not
// identifier, since the representative identifier itself may change
// from one batch to the next).
func (r *Runner) emitReduceDelta(spec Reduce, tracked, rawByID map[string]candidate, out chan Event) {
	raw := make([]candidate, 0, len(rawByID))
	for _, c := range rawByID {
		raw = append(raw, c)
	}
	reduced := reduceGroups(raw, spec)

	newByGroup := map[string]candidate{}
	for _, e := range reduced {
		groupKey := fmt.Sprint(e.properties[spec.Property])
		newByGroup[groupKey] = e
	}
	oldByGroup := map[string]candidate{}
	oldRepToGroup := map[string]string{}
	for idStr, e := range tracked {
		groupKey := fmt.Sprint(e.properties[spec.Property])
		oldByGroup[groupKey] = e
		oldRepToGroup[idStr] = groupKey
	}

	for groupKey, newRep := range newByGroup {
		oldRep, existed := oldByGroup[groupKey]
		switch {
		case !existed:
			out <- Event{Kind: Added, Id: newRep.id, Properties: newRep.properties}
		case !bytes.Equal(oldRep.id, newRep.id) || !propertiesEqual(oldRep.properties, newRep.properties):
			out <- Event{Kind: Modified, Id: newRep.id, Properties: newRep.properties}
		}
	}
	for groupKey, oldRep := range oldByGroup {
		if _, stillPresent := newByGroup[groupKey]; !stillPresent {
			out <- Event{Kind: Removed, Id: oldRep.id}
		}
	}

	tracked2 := map[string]candidate{}
	for _, e := range newByGroup {
		tracked2[string(e.id)] = e
	}
	for k := range tracked {
		delete(tracked, k)
	}
	for k, v := range tracked2 {
		tracked[k] = v
	}
}

// recordPlanMetric classifies the resolved plan for §10.5's
// sink_query_index_plan_total: "sorted" when the index applied both a
// filter and the sort, "simple" when it applied a filter only, "scan"
// when it contributed nothing and the runner fell back to a full scan.
func recordPlanMetric(appliedFilters map[string]bool, appliedSorting string) {
	switch {
	case appliedSorting != "":
		metrics.QueryIndexPlanTotal.WithLabelValues("sorted").Inc()
	case len(appliedFilters) > 0:
		metrics.QueryIndexPlanTotal.WithLabelValues("simple").Inc()
	default:
		metrics.QueryIndexPlanTotal.WithLabelValues("scan").Inc()
	}
}

func propertiesEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if fmt.Sprint(v) != fmt.Sprint(b[k]) {
			return false
		}
	}
	return true
}

func filterProperties(all map[string]any, requested []string) map[string]any {
	if len(requested) == 0 {
		return all
	}
	out := make(map[string]any, len(requested))
	for _, p := range requested {
		if v, ok := all[p]; ok {
			out[p] = v
		}
	}
	return out
}

func sortEntries(entries []candidate, property string) {
	sort.SliceStable(entries, func(i, j int) bool {
		vi, viOk := entries[i].properties[property]
		vj, vjOk := entries[j].properties[property]
		if !viOk || !vjOk {
			return viOk && !vjOk
		}
		return compareAny(vi, vj) < 0
	})
}
