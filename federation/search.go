package federation

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/datafed/types"
)

// SearchIndicators fans a free-text query out to every instance and
// returns the merged, deduplicated, score-ordered hits. maxResults <= 0
// selects the default cap. A non-empty placeFilter restricts the results
// to indicators with data in at least one of the places. Hits are
// enriched with display names on a best-effort basis.
func (r *Router) SearchIndicators(ctx context.Context, query string, maxResults int, placeFilter ...string) (*types.SearchResult, error) {
	const operation = "search_indicators"
	start := time.Now()

	if strings.TrimSpace(query) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty search query")
	}
	if maxResults <= 0 || maxResults > r.maxSearchHits {
		maxResults = r.maxSearchHits
	}

	ctx, span := r.startSpan(ctx, operation)

	results := fanOut(ctx, r, func(ctx context.Context, c InstanceClient) ([]types.SearchHit, error) {
		return c.SearchIndicators(ctx, query, false, placeFilter)
	})

	ok, degraded, reasons := collect(r, operation, results)
	if len(ok) == 0 {
		r.record(operation, "error", start, 0)
		err := types.NewAllBackendsError(reasons)
		endSpan(span, degraded, err)
		return nil, err
	}

	hits := mergeSearchHits(r, ok)
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}

	r.enrichHitNames(ctx, hits)

	r.record(operation, statusOf(degraded), start, len(hits))
	endSpan(span, degraded, nil)
	return &types.SearchResult{Hits: hits, Degraded: degraded}, nil
}

// enrichHitNames fills in display names for merged hits, asking each hit's
// winning instance. Lookup failures leave names empty; search results stay
// usable without them.
func (r *Router) enrichHitNames(ctx context.Context, hits []types.SearchHit) {
	if r.nameCache != nil {
		for i := range hits {
			if hits[i].Name != "" {
				continue
			}
			name, err := r.nameCache.Get(ctx, nameCacheKey(hits[i].DCID))
			if err == nil && name != "" {
				hits[i].Name = name
				if r.metrics != nil {
					r.metrics.RecordCacheHit("names")
				}
			} else if r.metrics != nil {
				r.metrics.RecordCacheMiss("names")
			}
		}
	}

	byInstance := make(map[string][]int)
	for i, h := range hits {
		if h.Name == "" {
			byInstance[h.InstanceID] = append(byInstance[h.InstanceID], i)
		}
	}
	if len(byInstance) == 0 {
		return
	}

	clientByID := make(map[string]InstanceClient, len(r.clients))
	for _, c := range r.clients {
		clientByID[c.Descriptor().ID] = c
	}

	for id, indices := range byInstance {
		c, ok := clientByID[id]
		if !ok {
			continue
		}
		dcids := make([]string, 0, len(indices))
		for _, i := range indices {
			dcids = append(dcids, hits[i].DCID)
		}
		names, err := c.NodeNames(ctx, dcids)
		if err != nil {
			r.logger.Debug("name enrichment skipped",
				zap.String("instance", id),
				zap.Error(err),
			)
			continue
		}
		for _, i := range indices {
			if name, ok := names[hits[i].DCID]; ok {
				hits[i].Name = name
				if r.nameCache != nil && name != "" {
					_ = r.nameCache.Set(ctx, nameCacheKey(hits[i].DCID), name, r.nameTTL)
				}
			}
		}
	}
}

func nameCacheKey(dcid string) string {
	return "datafed:name:" + dcid
}
