package federation

import (
	"context"
	"sort"
	"time"

	"github.com/BaSui01/datafed/types"
)

// ValidateChildPlaceType checks whether places of childType actually occur
// under the parent on any instance. The child type is valid when at least
// one instance returns a non-empty child list; sample children come from
// the highest-precedence instance that had any.
func (r *Router) ValidateChildPlaceType(ctx context.Context, parentDCID, childType string) (*types.PlaceTypeValidation, error) {
	const operation = "validate_child_place_type"
	start := time.Now()

	if parentDCID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty parent place")
	}
	if childType == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty child place type")
	}

	ctx, span := r.startSpan(ctx, operation)

	results := fanOut(ctx, r, func(ctx context.Context, c InstanceClient) ([]types.Place, error) {
		return c.ChildPlaces(ctx, parentDCID, childType)
	})

	ok, degraded, reasons := collect(r, operation, results)
	if len(ok) == 0 {
		r.record(operation, "error", start, 0)
		err := types.NewAllBackendsError(reasons)
		endSpan(span, degraded, err)
		return nil, err
	}

	// Highest-precedence non-empty leg supplies the evidence.
	sort.SliceStable(ok, func(i, j int) bool {
		return r.rank(ok[i].desc) < r.rank(ok[j].desc)
	})

	out := &types.PlaceTypeValidation{
		ParentDCID: parentDCID,
		ChildType:  childType,
		Degraded:   degraded,
	}
	for _, leg := range ok {
		if len(leg.value) == 0 {
			continue
		}
		out.Valid = true
		sample := leg.value
		if len(sample) > maxSampleChildren {
			sample = sample[:maxSampleChildren]
		}
		out.SampleChildren = append([]types.Place(nil), sample...)
		break
	}

	r.record(operation, statusOf(degraded), start, len(out.SampleChildren))
	endSpan(span, degraded, nil)
	return out, nil
}

// ResolvePlaces maps free-text place names to place nodes across the
// federation, merging with instance precedence. Names no instance could
// resolve are absent from the map.
func (r *Router) ResolvePlaces(ctx context.Context, names []string) (map[string]types.Place, []types.DegradedInstance, error) {
	const operation = "resolve_places"
	start := time.Now()

	if len(names) == 0 {
		return nil, nil, types.NewError(types.ErrInvalidRequest, "no place names to resolve")
	}

	ctx, span := r.startSpan(ctx, operation)

	results := fanOut(ctx, r, func(ctx context.Context, c InstanceClient) (map[string]types.Place, error) {
		return c.ResolvePlaces(ctx, names)
	})

	ok, degraded, reasons := collect(r, operation, results)
	if len(ok) == 0 {
		r.record(operation, "error", start, 0)
		err := types.NewAllBackendsError(reasons)
		endSpan(span, degraded, err)
		return nil, nil, err
	}

	merged := mergePlaces(r, ok)
	r.record(operation, statusOf(degraded), start, len(merged))
	endSpan(span, degraded, nil)
	return merged, degraded, nil
}

// ChildPlaces lists all places of the given type under the parent across
// the federation, deduplicated by DCID with instance precedence and
// sorted for deterministic output.
func (r *Router) ChildPlaces(ctx context.Context, parentDCID, childType string) ([]types.Place, []types.DegradedInstance, error) {
	const operation = "child_places"
	start := time.Now()

	if parentDCID == "" {
		return nil, nil, types.NewError(types.ErrInvalidRequest, "empty parent place")
	}
	if childType == "" {
		return nil, nil, types.NewError(types.ErrInvalidRequest, "empty child place type")
	}

	ctx, span := r.startSpan(ctx, operation)

	results := fanOut(ctx, r, func(ctx context.Context, c InstanceClient) ([]types.Place, error) {
		return c.ChildPlaces(ctx, parentDCID, childType)
	})

	ok, degraded, reasons := collect(r, operation, results)
	if len(ok) == 0 {
		r.record(operation, "error", start, 0)
		err := types.NewAllBackendsError(reasons)
		endSpan(span, degraded, err)
		return nil, nil, err
	}

	sort.SliceStable(ok, func(i, j int) bool {
		return r.rank(ok[i].desc) < r.rank(ok[j].desc)
	})

	seen := make(map[string]struct{})
	var out []types.Place
	for _, leg := range ok {
		for _, p := range leg.value {
			if _, dup := seen[p.DCID]; dup {
				continue
			}
			seen[p.DCID] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DCID < out[j].DCID })

	r.record(operation, statusOf(degraded), start, len(out))
	endSpan(span, degraded, nil)
	return out, degraded, nil
}
