package federation

import (
	"sort"

	"github.com/BaSui01/datafed/types"
)

// rank orders instances by merge authority: every custom instance beats
// every base instance, and within a role the earliest-configured instance
// wins. Lower is stronger.
func (r *Router) rank(d types.InstanceDescriptor) int {
	weight := 1
	if d.Role == types.RoleCustom {
		weight = 0
	}
	return weight*len(r.cfg.Instances) + r.cfg.Position(d.ID)
}

type rankedHit struct {
	hit  types.SearchHit
	rank int
}

// mergeSearchHits deduplicates hits by DCID with precedence, then sorts by
// descending score with lexical DCID as the tie-break. The result is
// independent of leg arrival order.
func mergeSearchHits(r *Router, legs []legResult[[]types.SearchHit]) []types.SearchHit {
	best := make(map[string]rankedHit)
	for _, leg := range legs {
		rank := r.rank(leg.desc)
		for _, h := range leg.value {
			cur, ok := best[h.DCID]
			if !ok || rank < cur.rank {
				best[h.DCID] = rankedHit{hit: h, rank: rank}
			}
		}
	}

	out := make([]types.SearchHit, 0, len(best))
	for _, b := range best {
		out = append(out, b.hit)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DCID < out[j].DCID
	})
	return out
}

type obsKey struct {
	variable string
	place    string
	date     string
}

type rankedObs struct {
	obs  types.Observation
	rank int
}

// mergeObservations deduplicates points by (variable, place, date) with
// instance precedence, then orders the output by the requested variable
// order, place, and date.
func mergeObservations(r *Router, legs []legResult[[]types.Observation], variableOrder []string) []types.Observation {
	best := make(map[obsKey]rankedObs)
	for _, leg := range legs {
		rank := r.rank(leg.desc)
		for _, o := range leg.value {
			key := obsKey{variable: o.VariableDCID, place: o.PlaceDCID, date: o.Date}
			cur, ok := best[key]
			if !ok || rank < cur.rank {
				best[key] = rankedObs{obs: o, rank: rank}
			}
		}
	}

	varPos := make(map[string]int, len(variableOrder))
	for i, v := range variableOrder {
		varPos[v] = i
	}
	pos := func(v string) int {
		if p, ok := varPos[v]; ok {
			return p
		}
		return len(variableOrder)
	}

	out := make([]types.Observation, 0, len(best))
	for _, b := range best {
		out = append(out, b.obs)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if pa, pb := pos(a.VariableDCID), pos(b.VariableDCID); pa != pb {
			return pa < pb
		}
		if a.VariableDCID != b.VariableDCID {
			return a.VariableDCID < b.VariableDCID
		}
		if a.PlaceDCID != b.PlaceDCID {
			return a.PlaceDCID < b.PlaceDCID
		}
		return a.Date < b.Date
	})
	return out
}

// mergePlaces merges resolved places by query name with instance
// precedence.
func mergePlaces(r *Router, legs []legResult[map[string]types.Place]) map[string]types.Place {
	type rankedPlace struct {
		place types.Place
		rank  int
	}

	best := make(map[string]rankedPlace)
	for _, leg := range legs {
		rank := r.rank(leg.desc)
		for name, p := range leg.value {
			cur, ok := best[name]
			if !ok || rank < cur.rank {
				best[name] = rankedPlace{place: p, rank: rank}
			}
		}
	}

	out := make(map[string]types.Place, len(best))
	for name, b := range best {
		out[name] = b.place
	}
	return out
}
