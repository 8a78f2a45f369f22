package federation

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/datafed/types"
)

// propRouter builds a three-instance router (one base, two custom) used
// purely for its merge precedence.
func propRouter(t *testing.T) *Router {
	t.Helper()

	clients := []*fakeClient{
		{desc: descOf("base", types.RoleBase)},
		{desc: descOf("custom-a", types.RoleCustom)},
		{desc: descOf("custom-b", types.RoleCustom)},
	}
	return newTestRouter(t, clients)
}

// genSearchLegs draws one leg per configured instance with a small DCID
// and score alphabet so collisions and ties are common.
func genSearchLegs(r *Router) *rapid.Generator[[]legResult[[]types.SearchHit]] {
	dcids := rapid.SampledFrom([]string{"VarA", "VarB", "VarC", "VarD"})
	scores := rapid.SampledFrom([]float64{0.2, 0.5, 0.5, 0.9})

	return rapid.Custom(func(t *rapid.T) []legResult[[]types.SearchHit] {
		legs := make([]legResult[[]types.SearchHit], len(r.cfg.Instances))
		for i, desc := range r.cfg.Instances {
			n := rapid.IntRange(0, 4).Draw(t, "hits")
			hits := make([]types.SearchHit, 0, n)
			for j := 0; j < n; j++ {
				hits = append(hits, types.SearchHit{
					DCID:       dcids.Draw(t, "dcid"),
					Score:      scores.Draw(t, "score"),
					InstanceID: desc.ID,
				})
			}
			legs[i] = legResult[[]types.SearchHit]{index: i, desc: desc, value: hits}
		}
		return legs
	})
}

func TestMergeSearchHits_NoDuplicateDCIDs(t *testing.T) {
	r := propRouter(t)
	rapid.Check(t, func(rt *rapid.T) {
		legs := genSearchLegs(r).Draw(rt, "legs")
		merged := mergeSearchHits(r, legs)

		seen := make(map[string]bool)
		for _, h := range merged {
			if seen[h.DCID] {
				rt.Fatalf("duplicate DCID %q in merged hits", h.DCID)
			}
			seen[h.DCID] = true
		}
	})
}

func TestMergeSearchHits_WinnerHasStrongestRank(t *testing.T) {
	r := propRouter(t)
	rapid.Check(t, func(rt *rapid.T) {
		legs := genSearchLegs(r).Draw(rt, "legs")
		merged := mergeSearchHits(r, legs)

		minRank := make(map[string]int)
		for _, leg := range legs {
			rank := r.rank(leg.desc)
			for _, h := range leg.value {
				if cur, ok := minRank[h.DCID]; !ok || rank < cur {
					minRank[h.DCID] = rank
				}
			}
		}

		for _, h := range merged {
			desc, ok := r.cfg.Descriptor(h.InstanceID)
			require.True(rt, ok)
			if got := r.rank(desc); got != minRank[h.DCID] {
				rt.Fatalf("hit %q won with rank %d, strongest contributor has rank %d", h.DCID, got, minRank[h.DCID])
			}
		}
	})
}

func TestMergeSearchHits_ArrivalOrderIndependent(t *testing.T) {
	r := propRouter(t)
	rapid.Check(t, func(rt *rapid.T) {
		legs := genSearchLegs(r).Draw(rt, "legs")

		shuffled := make([]legResult[[]types.SearchHit], len(legs))
		copy(shuffled, legs)
		perm := rapid.Permutation([]int{0, 1, 2}).Draw(rt, "perm")
		for i, p := range perm {
			shuffled[i] = legs[p]
		}

		a := mergeSearchHits(r, legs)
		b := mergeSearchHits(r, shuffled)
		require.Equal(rt, a, b)
	})
}

func TestMergeSearchHits_SortedByScoreThenDCID(t *testing.T) {
	r := propRouter(t)
	rapid.Check(t, func(rt *rapid.T) {
		legs := genSearchLegs(r).Draw(rt, "legs")
		merged := mergeSearchHits(r, legs)

		for i := 1; i < len(merged); i++ {
			prev, cur := merged[i-1], merged[i]
			if prev.Score < cur.Score {
				rt.Fatalf("scores out of order at %d: %f before %f", i, prev.Score, cur.Score)
			}
			if prev.Score == cur.Score && prev.DCID >= cur.DCID {
				rt.Fatalf("tie-break out of order at %d: %q before %q", i, prev.DCID, cur.DCID)
			}
		}
	})
}

func TestMergeObservations_OnePointPerKey(t *testing.T) {
	r := propRouter(t)

	dates := rapid.SampledFrom([]string{"2019", "2020", "2021"})
	places := rapid.SampledFrom([]string{"country/USA", "country/CAN"})
	variables := rapid.SampledFrom([]string{"Count_Person", "Count_Death"})

	rapid.Check(t, func(rt *rapid.T) {
		legs := make([]legResult[[]types.Observation], len(r.cfg.Instances))
		for i, desc := range r.cfg.Instances {
			n := rapid.IntRange(0, 5).Draw(rt, "points")
			obs := make([]types.Observation, 0, n)
			for j := 0; j < n; j++ {
				obs = append(obs, types.Observation{
					VariableDCID: variables.Draw(rt, "variable"),
					PlaceDCID:    places.Draw(rt, "place"),
					Date:         dates.Draw(rt, "date"),
					Value:        rapid.Float64Range(0, 1000).Draw(rt, "value"),
					InstanceID:   desc.ID,
				})
			}
			legs[i] = legResult[[]types.Observation]{index: i, desc: desc, value: obs}
		}

		merged := mergeObservations(r, legs, []string{"Count_Person", "Count_Death"})

		seen := make(map[obsKey]bool)
		for _, o := range merged {
			key := obsKey{variable: o.VariableDCID, place: o.PlaceDCID, date: o.Date}
			if seen[key] {
				rt.Fatalf("duplicate observation for %+v", key)
			}
			seen[key] = true
		}

		// Output is sorted by requested variable order, then place, then date.
		for i := 1; i < len(merged); i++ {
			prev, cur := merged[i-1], merged[i]
			if prev.VariableDCID == "Count_Death" && cur.VariableDCID == "Count_Person" {
				rt.Fatalf("variable order violated at %d", i)
			}
			if prev.VariableDCID == cur.VariableDCID {
				if prev.PlaceDCID > cur.PlaceDCID {
					rt.Fatalf("place order violated at %d", i)
				}
				if prev.PlaceDCID == cur.PlaceDCID && prev.Date >= cur.Date {
					rt.Fatalf("date order violated at %d", i)
				}
			}
		}
	})
}
