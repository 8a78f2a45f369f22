package instance

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/datafed/types"
)

// maxHitsPerInstance caps each instance's contribution to the merge.
const maxHitsPerInstance = 10

// internalVariablePattern matches auto-generated variable ids that are not
// meaningful to end users and are dropped from search results.
var internalVariablePattern = regexp.MustCompile(`^dc/[a-z0-9]{10,}$`)

type searchVectorRequest struct {
	Queries []string `json:"queries"`
}

type searchVectorResponse struct {
	QueryResults map[string]struct {
		SV          []string  `json:"SV"`
		CosineScore []float64 `json:"CosineScore"`
	} `json:"queryResults"`
}

// SearchIndicators runs vector search for one query against this instance
// and returns scored hits. Topic hits are excluded when skipTopics is set
// or the instance does not serve topics. Results are sorted by descending
// score with ties broken by lexical DCID, then capped. A non-empty
// placeFilter keeps only hits with data in at least one of the places.
func (c *Client) SearchIndicators(ctx context.Context, query string, skipTopics bool, placeFilter []string) ([]types.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty search query")
	}

	endpoint := c.desc.SearchURL() + "/api/nl/search-vector"
	params := url.Values{}
	if c.desc.SearchIndex != "" {
		params.Set("idx", c.desc.SearchIndex)
	}
	if skipTopics || !c.desc.SupportsTopics {
		params.Set("skip_topics", "true")
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	resp, err := postJSON[searchVectorResponse](c, ctx, endpoint, searchVectorRequest{Queries: []string{query}})
	if err != nil {
		return nil, err
	}

	result, ok := resp.QueryResults[query]
	if !ok {
		return nil, nil
	}

	hits := make([]types.SearchHit, 0, len(result.SV))
	for i, dcid := range result.SV {
		if internalVariablePattern.MatchString(dcid) {
			continue
		}
		var score float64
		if i < len(result.CosineScore) {
			score = clampScore(result.CosineScore[i])
		}
		hits = append(hits, types.SearchHit{
			DCID:       dcid,
			Score:      score,
			IsTopic:    IsTopicDCID(dcid),
			InstanceID: c.desc.ID,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DCID < hits[j].DCID
	})
	if len(hits) > maxHitsPerInstance {
		hits = hits[:maxHitsPerInstance]
	}

	if len(placeFilter) > 0 {
		hits, err = c.filterHitsByExistence(ctx, hits, placeFilter)
		if err != nil {
			return nil, err
		}
	}
	return hits, nil
}

// filterHitsByExistence drops hits with no data in any of the given
// places (OR across places). Variable hits are checked directly; topic
// hits are kept when any direct member variable has data. A topic whose
// members cannot be fetched is kept rather than silently dropped.
func (c *Client) filterHitsByExistence(ctx context.Context, hits []types.SearchHit, places []string) ([]types.SearchHit, error) {
	variables := make([]string, 0, len(hits))
	topicMembers := make(map[string][]string)
	for _, h := range hits {
		if !h.IsTopic {
			variables = append(variables, h.DCID)
			continue
		}
		t, err := c.TopicMembers(ctx, h.DCID)
		if err != nil {
			c.logger.Debug("topic member lookup skipped during existence filter",
				zap.String("topic", h.DCID),
				zap.Error(err),
			)
			continue
		}
		topicMembers[h.DCID] = t.MemberVariables
		variables = append(variables, t.MemberVariables...)
	}

	exists, err := c.variableExistence(ctx, variables, places)
	if err != nil {
		return nil, err
	}

	out := hits[:0]
	for _, h := range hits {
		if !h.IsTopic {
			if exists[h.DCID] {
				out = append(out, h)
			}
			continue
		}
		members, checked := topicMembers[h.DCID]
		if !checked {
			out = append(out, h)
			continue
		}
		for _, m := range members {
			if exists[m] {
				out = append(out, h)
				break
			}
		}
	}
	return out, nil
}

// variableExistence asks the observation API which of the variables have
// any data for any of the places. No observation values are transferred.
func (c *Client) variableExistence(ctx context.Context, variables, places []string) (map[string]bool, error) {
	if len(variables) == 0 || len(places) == 0 {
		return nil, nil
	}

	req := observationRequest{
		Select:   []string{"variable", "entity"},
		Variable: dcidsSelector{DCIDs: variables},
		Entity:   dcidsSelector{DCIDs: places},
	}
	resp, err := postJSON[observationResponse](c, ctx, c.apiURL("/v2/observation"), req)
	if err != nil {
		return nil, err
	}

	exists := make(map[string]bool, len(resp.ByVariable))
	for variable, byVar := range resp.ByVariable {
		if len(byVar.ByEntity) > 0 {
			exists[variable] = true
		}
	}
	return exists, nil
}

// clampScore forces a cosine score into [0, 1]. Some embedding backends
// report values slightly outside the range.
func clampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

// IsTopicDCID reports whether a DCID names a curated topic rather than a
// statistical variable.
func IsTopicDCID(dcid string) bool {
	return strings.Contains(dcid, "/topic/")
}
