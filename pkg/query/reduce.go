package query

import "fmt"

// reduceGroups groups entries by spec.Property and keeps one
// representative per group — the member whose SelectorProperty is the
// max (or min) within the group — annotating it with two synthetic
// properties: "_count" (group size) and "_collected" (every member
// identifier, as strings, in encounter order).
func reduceGroups(entries []candidate, spec Reduce) []candidate {
	type group struct {
		representative candidate
		count          int
		collected      []string
	}
	groups := map[string]*group{}
	order := []string{}

	for _, e := range entries {
		groupKey := fmt.Sprint(e.properties[spec.Property])
		g, ok := groups[groupKey]
		if !ok {
			g = &group{representative: e, count: 0}
			groups[groupKey] = g
			order = append(order, groupKey)
		}
		g.count++
		g.collected = append(g.collected, string(e.id))

		selectorValue := e.properties[spec.SelectorProperty]
		repValue := g.representative.properties[spec.SelectorProperty]
		cmp := compareAny(selectorValue, repValue)
		better := (spec.Selector == ReduceMax && cmp > 0) || (spec.Selector == ReduceMin && cmp < 0)
		if better {
			g.representative = e
		}
	}

	out := make([]candidate, 0, len(order))
	for _, groupKey := range order {
		g := groups[groupKey]
		properties := make(map[string]any, len(g.representative.properties)+2)
		for k, v := range g.representative.properties {
			properties[k] = v
		}
		properties["_count"] = g.count
		properties["_collected"] = g.collected
		out = append(out, candidate{id: g.representative.id, properties: properties})
	}
	return out
}
