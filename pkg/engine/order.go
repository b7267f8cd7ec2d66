package engine

import (
	"sort"

	"weftlabs/weft/pkg/command"
	"weftlabs/weft/pkg/graph"
)

// canonicalOrder arranges records into the total order every device agrees
// on: a topological sort of the parent links with ties between concurrent
// commands broken by identifier. Identifiers are content-derived, so the
// tie-break needs no coordination and no clock.
func canonicalOrder(records []*graph.Record) []*graph.Record {
	byID := make(map[command.ID]*graph.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	children := make(map[command.ID][]command.ID)
	indegree := make(map[command.ID]int)
	for _, rec := range records {
		if _, ok := byID[rec.Parent]; ok {
			children[rec.Parent] = append(children[rec.Parent], rec.ID)
			indegree[rec.ID]++
		}
	}

	var ready []command.ID
	for _, rec := range records {
		if indegree[rec.ID] == 0 {
			ready = append(ready, rec.ID)
		}
	}

	out := make([]*graph.Record, 0, len(records))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i].Less(ready[j]) })
		next := ready[0]
		ready = ready[1:]

		out = append(out, byID[next])
		for _, child := range children[next] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}
	return out
}
