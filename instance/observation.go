package instance

import (
	"context"
	"sort"

	"github.com/BaSui01/datafed/types"
)

type observationRequest struct {
	Select   []string      `json:"select"`
	Variable dcidsSelector `json:"variable"`
	Entity   dcidsSelector `json:"entity"`
	Date     string        `json:"date,omitempty"`
}

type dcidsSelector struct {
	DCIDs []string `json:"dcids"`
}

type observationResponse struct {
	ByVariable map[string]struct {
		ByEntity map[string]struct {
			OrderedFacets []struct {
				FacetID      string `json:"facetId"`
				Observations []struct {
					Date  string  `json:"date"`
					Value float64 `json:"value"`
				} `json:"observations"`
			} `json:"orderedFacets"`
		} `json:"byEntity"`
	} `json:"byVariable"`
	Facets map[string]FacetMetadata `json:"facets"`
}

// FacetMetadata describes the provenance of one observation facet.
type FacetMetadata struct {
	ImportName        string `json:"importName,omitempty"`
	ProvenanceURL     string `json:"provenanceUrl,omitempty"`
	MeasurementMethod string `json:"measurementMethod,omitempty"`
	ObservationPeriod string `json:"observationPeriod,omitempty"`
	Unit              string `json:"unit,omitempty"`
}

// Observations fetches data points for the given variables and places. A
// nil date range returns only the latest point per series; otherwise all
// points inside the range are returned. Only the instance's preferred
// facet per series is used, so one series yields one value per date.
func (c *Client) Observations(ctx context.Context, variables, places []string, dates *types.DateRange) ([]types.Observation, error) {
	if len(variables) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "no variables requested")
	}
	if len(places) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "no places requested")
	}

	req := observationRequest{
		Select:   []string{"date", "entity", "value", "variable"},
		Variable: dcidsSelector{DCIDs: variables},
		Entity:   dcidsSelector{DCIDs: places},
	}
	if dates.IsZero() {
		req.Date = "LATEST"
	}

	resp, err := postJSON[observationResponse](c, ctx, c.apiURL("/v2/observation"), req)
	if err != nil {
		return nil, err
	}

	var out []types.Observation
	for variable, byVar := range resp.ByVariable {
		for entity, byEnt := range byVar.ByEntity {
			// orderedFacets ranks facets by instance preference. The
			// preferred facet may not cover the requested dates, so the
			// first facet with surviving points wins the series.
			for _, facet := range byEnt.OrderedFacets {
				var kept []types.Observation
				for _, obs := range facet.Observations {
					if !dates.IsZero() && !dates.Contains(obs.Date) {
						continue
					}
					kept = append(kept, types.Observation{
						VariableDCID: variable,
						PlaceDCID:    entity,
						Date:         obs.Date,
						Value:        obs.Value,
						SourceID:     facet.FacetID,
						InstanceID:   c.desc.ID,
					})
				}
				if len(kept) > 0 {
					out = append(out, kept...)
					break
				}
			}
		}
	}

	// Map iteration order is random; sort for a stable per-instance view.
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.VariableDCID != b.VariableDCID {
			return a.VariableDCID < b.VariableDCID
		}
		if a.PlaceDCID != b.PlaceDCID {
			return a.PlaceDCID < b.PlaceDCID
		}
		return a.Date < b.Date
	})
	return out, nil
}
