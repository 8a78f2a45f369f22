package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/datafed/types"
)

// Tool names exposed to MCP clients.
const (
	ToolSearchIndicators       = "search_indicators"
	ToolGetObservations        = "get_observations"
	ToolValidateChildPlaceType = "validate_child_place_type"
)

// QueryRouter is the federation surface the tools call into.
type QueryRouter interface {
	SearchIndicators(ctx context.Context, query string, maxResults int, placeFilter ...string) (*types.SearchResult, error)
	GetObservations(ctx context.Context, q types.ObservationQuery) (*types.ObservationSet, error)
	ValidateChildPlaceType(ctx context.Context, parentDCID, childType string) (*types.PlaceTypeValidation, error)
	ResolvePlaces(ctx context.Context, names []string) (map[string]types.Place, []types.DegradedInstance, error)
	ChildPlaces(ctx context.Context, parentDCID, childType string) ([]types.Place, []types.DegradedInstance, error)
}

type searchIndicatorsArgs struct {
	Query      string   `json:"query"`
	MaxResults int      `json:"max_results"`
	PlaceDCIDs []string `json:"place_dcids"`
}

type getObservationsArgs struct {
	VariableDCID   string   `json:"variable_dcid"`
	TopicDCID      string   `json:"topic_dcid"`
	PlaceDCIDs     []string `json:"place_dcids"`
	PlaceName      string   `json:"place_name"`
	ChildPlaceType string   `json:"child_place_type"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
}

type validateChildPlaceTypeArgs struct {
	ParentPlaceDCID string `json:"parent_place_dcid"`
	ChildPlaceType  string `json:"child_place_type"`
}

// RegisterRouterTools wires the three federation operations into the
// server's tool registry.
func RegisterRouterTools(s *Server, router QueryRouter) error {
	tools := []struct {
		def     *ToolDefinition
		handler ToolHandler
	}{
		{
			def: &ToolDefinition{
				Name:        ToolSearchIndicators,
				Description: "Search statistical variables and topics across all configured Data Commons instances.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "Natural-language description of the indicator to find.",
						},
						"max_results": map[string]any{
							"type":        "integer",
							"description": "Maximum number of merged results to return.",
						},
						"place_dcids": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "string"},
							"description": "Optional place DCIDs; only indicators with data for at least one of them are returned.",
						},
					},
					"required": []string{"query"},
				},
			},
			handler: func(ctx context.Context, raw map[string]any) (any, error) {
				var args searchIndicatorsArgs
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				res, err := router.SearchIndicators(ctx, args.Query, args.MaxResults, args.PlaceDCIDs...)
				if err != nil {
					return nil, err
				}
				return toolResult(res)
			},
		},
		{
			def: &ToolDefinition{
				Name:        ToolGetObservations,
				Description: "Fetch statistical observations for a variable or topic over one or more places.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"variable_dcid": map[string]any{
							"type":        "string",
							"description": "DCID of the statistical variable. Exactly one of variable_dcid or topic_dcid is required.",
						},
						"topic_dcid": map[string]any{
							"type":        "string",
							"description": "DCID of a topic to expand into member variables.",
						},
						"place_dcids": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "string"},
							"description": "DCIDs of the places to observe. One of place_dcids or place_name is required.",
						},
						"place_name": map[string]any{
							"type":        "string",
							"description": "Free-text place name to resolve instead of place_dcids.",
						},
						"child_place_type": map[string]any{
							"type":        "string",
							"description": "When set, observe all places of this type inside the single given parent place.",
						},
						"start_date": map[string]any{
							"type":        "string",
							"description": "Inclusive start date (YYYY, YYYY-MM, or YYYY-MM-DD). Omit both dates for the latest value.",
						},
						"end_date": map[string]any{
							"type":        "string",
							"description": "Inclusive end date (YYYY, YYYY-MM, or YYYY-MM-DD).",
						},
					},
				},
			},
			handler: func(ctx context.Context, raw map[string]any) (any, error) {
				var args getObservationsArgs
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				places, err := observationPlaces(ctx, router, args)
				if err != nil {
					return nil, err
				}
				q := types.ObservationQuery{
					Variable: args.VariableDCID,
					Topic:    args.TopicDCID,
					Places:   places,
				}
				if args.StartDate != "" || args.EndDate != "" {
					q.Dates = &types.DateRange{Start: args.StartDate, End: args.EndDate}
				}
				res, err := router.GetObservations(ctx, q)
				if err != nil {
					return nil, err
				}
				return toolResult(res)
			},
		},
		{
			def: &ToolDefinition{
				Name:        ToolValidateChildPlaceType,
				Description: "Check whether a place type exists among the children of a parent place.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"parent_place_dcid": map[string]any{
							"type":        "string",
							"description": "DCID of the containing place.",
						},
						"child_place_type": map[string]any{
							"type":        "string",
							"description": "Place type to validate, e.g. County or City.",
						},
					},
					"required": []string{"parent_place_dcid", "child_place_type"},
				},
			},
			handler: func(ctx context.Context, raw map[string]any) (any, error) {
				var args validateChildPlaceTypeArgs
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				res, err := router.ValidateChildPlaceType(ctx, args.ParentPlaceDCID, args.ChildPlaceType)
				if err != nil {
					return nil, err
				}
				return toolResult(res)
			},
		},
	}

	for _, t := range tools {
		if err := s.RegisterTool(t.def, t.handler); err != nil {
			return err
		}
	}
	return nil
}

// observationPlaces turns the place arguments into concrete place DCIDs:
// a free-text place_name is resolved through the federation, and
// child_place_type swaps the single parent for its contained places.
func observationPlaces(ctx context.Context, router QueryRouter, args getObservationsArgs) ([]string, error) {
	places := append([]string(nil), args.PlaceDCIDs...)

	if args.PlaceName != "" {
		resolved, _, err := router.ResolvePlaces(ctx, []string{args.PlaceName})
		if err != nil {
			return nil, err
		}
		p, ok := resolved[args.PlaceName]
		if !ok {
			return nil, types.NewError(types.ErrNotFound, fmt.Sprintf("no place found for %q", args.PlaceName))
		}
		places = append(places, p.DCID)
	}

	if len(places) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "one of place_dcids or place_name is required")
	}

	if args.ChildPlaceType != "" {
		if len(places) != 1 {
			return nil, types.NewError(types.ErrInvalidRequest, "child_place_type requires exactly one parent place")
		}
		children, _, err := router.ChildPlaces(ctx, places[0], args.ChildPlaceType)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			return nil, types.NewError(types.ErrNotFound,
				fmt.Sprintf("no %s places under %s", args.ChildPlaceType, places[0]))
		}
		places = make([]string, 0, len(children))
		for _, c := range children {
			places = append(places, c.DCID)
		}
	}

	return places, nil
}

// decodeArgs converts the raw argument map into a typed struct.
func decodeArgs(raw map[string]any, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return types.NewError(types.ErrInvalidRequest, "invalid tool arguments").WithCause(err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("invalid tool arguments: %v", err))
	}
	return nil
}

// toolResult renders a payload as MCP tool output: a text content block
// holding the JSON plus the structured payload itself.
func toolResult(payload any) (any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to encode tool result").WithCause(err)
	}
	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": string(data)},
		},
		"structuredContent": payload,
	}, nil
}
