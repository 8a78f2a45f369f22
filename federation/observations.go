package federation

import (
	"context"
	"time"

	"github.com/BaSui01/datafed/instance"
	"github.com/BaSui01/datafed/types"
)

// GetObservations retrieves merged data points for a variable or topic
// across every instance. Topic queries are expanded to their curated
// member variables before fan-out; the expansion order is preserved in
// the output.
func (r *Router) GetObservations(ctx context.Context, q types.ObservationQuery) (*types.ObservationSet, error) {
	const operation = "get_observations"
	start := time.Now()

	// Callers may pass a topic DCID in the variable slot; it still takes
	// the expansion path.
	if q.Topic == "" && instance.IsTopicDCID(q.Variable) {
		q.Topic, q.Variable = q.Variable, ""
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, span := r.startSpan(ctx, operation)

	set := &types.ObservationSet{}
	variables := []string{q.Variable}
	if q.Topic != "" {
		if r.topics == nil {
			err := types.NewError(types.ErrInvalidRequest, "topic queries are not enabled")
			endSpan(span, nil, err)
			return nil, err
		}
		expanded, err := r.topics.Variables(ctx, q.Topic)
		if err != nil {
			r.record(operation, "error", start, 0)
			endSpan(span, nil, err)
			return nil, err
		}
		variables = expanded
		set.TopicDCID = q.Topic
		set.MemberVariables = expanded
	}

	results := fanOut(ctx, r, func(ctx context.Context, c InstanceClient) ([]types.Observation, error) {
		return c.Observations(ctx, variables, q.Places, q.Dates)
	})

	ok, degraded, reasons := collect(r, operation, results)
	if len(ok) == 0 {
		r.record(operation, "error", start, 0)
		err := types.NewAllBackendsError(reasons)
		endSpan(span, degraded, err)
		return nil, err
	}

	set.Observations = mergeObservations(r, ok, variables)
	set.Degraded = degraded

	r.record(operation, statusOf(degraded), start, len(set.Observations))
	endSpan(span, degraded, nil)
	return set, nil
}
