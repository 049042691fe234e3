package query

import (
	"fmt"

	"github.com/sinklabs/sink/pkg/domain"
	"github.com/sinklabs/sink/pkg/store"
	"github.com/sinklabs/sink/pkg/typeindex"
)

// plan resolves q's filters against the registered type index, falling
// back to a full scan of every identifier of q.Type when no index can
// anchor the query (or none is registered for the type at all).
func (r *Runner) plan(q Query) (candidateIDs [][]byte, appliedFilters map[string]bool, appliedSorting string, err error) {
	ti, hasIndex := r.typeIndexes[q.Type]
	if hasIndex {
		tx, err := r.entities.Env().CreateTransaction(store.ReadOnly)
		if err != nil {
			return nil, nil, "", err
		}
		defer tx.Abort()

		ids, applied, sorting, err := ti.Plan(tx, planFilters(q.Filters), q.SortProperty)
		if err != nil {
			return nil, nil, "", err
		}
		if ids != nil {
			return ids, applied, sorting, nil
		}
	}

	var all [][]byte
	if err := r.entities.ReadAllUids(q.Type, func(id []byte) (bool, error) {
		all = append(all, append([]byte{}, id...))
		return true, nil
	}); err != nil {
		return nil, nil, "", err
	}
	return all, map[string]bool{}, "", nil
}

// planFilters keeps only the filters the type index can itself resolve
// (Equals/In); any other comparator is always left to the Filter step.
func planFilters(filters map[string]Filter) map[string]typeindex.Filter {
	out := map[string]typeindex.Filter{}
	for property, f := range filters {
		switch f.Comparator {
		case Equals:
			out[property] = typeindex.Filter{Comparator: typeindex.Equals, Value: f.Value}
		case In:
			out[property] = typeindex.Filter{Comparator: typeindex.In, Values: f.Values}
		}
	}
	return out
}

// materializeAndFilter reads the latest live record of every candidate
// identifier (or, if candidateIDs is nil, every identifier of q.Type),
// decodes its requested properties, and evaluates every filter of q
// against them, including filters the plan already resolved
// (appliedFilters is not consulted).
func (r *Runner) materializeAndFilter(q Query, candidateIDs [][]byte, appliedFilters map[string]bool) ([]candidate, error) {
	ids := candidateIDs
	if ids == nil {
		if err := r.entities.ReadAllUids(q.Type, func(id []byte) (bool, error) {
			ids = append(ids, append([]byte{}, id...))
			return true, nil
		}); err != nil {
			return nil, err
		}
	}

	var fulltextHits map[string]bool
	for _, f := range q.Filters {
		if f.Comparator == Fulltext {
			queryText, _ := f.Value.(string)
			hits, err := r.searchFulltext(queryText)
			if err != nil {
				return nil, err
			}
			fulltextHits = hits
			break
		}
	}

	var out []candidate
	seen := map[string]bool{}
	for _, id := range ids {
		idStr := string(id)
		if seen[idStr] {
			continue
		}
		seen[idStr] = true

		rec, ok, err := r.entities.FindLatest(q.Type, id)
		if err != nil {
			return nil, err
		}
		if !ok || rec.IsTombstone() {
			continue
		}

		properties := domain.Coerce(domain.Type(q.Type), filterProperties(rec.Properties, q.RequestedProperties))
		matches, err := r.evaluateFilters(q, id, properties, fulltextHits)
		if err != nil {
			return nil, err
		}
		if !matches {
			continue
		}
		out = append(out, candidate{id: id, properties: properties})
	}
	return out, nil
}

func (r *Runner) searchFulltext(queryText string) (map[string]bool, error) {
	if r.fulltext == nil {
		return nil, fmt.Errorf("query: fulltext filter requested but no fulltext index is wired")
	}
	hits, err := r.fulltext.Search(queryText)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(hits))
	for _, id := range hits {
		out[string(id)] = true
	}
	return out, nil
}

// evaluateFilters checks every filter on q against properties, including
// filters the plan already resolved through an index.
func (r *Runner) evaluateFilters(q Query, id []byte, properties map[string]any, fulltextHits map[string]bool) (bool, error) {
	for property, f := range q.Filters {
		if property == "" {
			continue
		}
		value, present := properties[property]
		switch f.Comparator {
		case Equals:
			if !present || !valueEquals(value, f.Value) {
				return false, nil
			}
		case NotEquals:
			if present && valueEquals(value, f.Value) {
				return false, nil
			}
		case In:
			if !present || !valueIn(value, f.Values) {
				return false, nil
			}
		case Contains:
			s, _ := value.(string)
			sub, _ := f.Value.(string)
			if !present || !contains(s, sub) {
				return false, nil
			}
		case GreaterThan:
			if !present || compareAny(value, f.Value) <= 0 {
				return false, nil
			}
		case LessThan:
			if !present || compareAny(value, f.Value) >= 0 {
				return false, nil
			}
		case Range:
			if !present || compareAny(value, f.RangeLower) < 0 || compareAny(value, f.RangeUpper) > 0 {
				return false, nil
			}
		case Fulltext:
			if fulltextHits == nil || !fulltextHits[string(id)] {
				return false, nil
			}
		}
	}
	return true, nil
}
