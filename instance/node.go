package instance

import (
	"context"
	"fmt"

	"github.com/BaSui01/datafed/types"
)

type nodeRequest struct {
	Nodes    []string `json:"nodes"`
	Property string   `json:"property"`
}

type nodeRef struct {
	DCID  string   `json:"dcid"`
	Name  string   `json:"name,omitempty"`
	Types []string `json:"types,omitempty"`
	Value string   `json:"value,omitempty"`
}

type nodeResponse struct {
	Data map[string]struct {
		Arcs map[string]struct {
			Nodes []nodeRef `json:"nodes"`
		} `json:"arcs"`
	} `json:"data"`
}

type resolveRequest struct {
	Nodes    []string `json:"nodes"`
	Property string   `json:"property"`
}

type resolveResponse struct {
	Entities []struct {
		Node       string `json:"node"`
		Candidates []struct {
			DCID         string `json:"dcid"`
			DominantType string `json:"dominantType,omitempty"`
		} `json:"candidates"`
	} `json:"entities"`
}

// ResolvePlaces maps free-text place names to place nodes. Names with no
// candidate are simply absent from the result.
func (c *Client) ResolvePlaces(ctx context.Context, names []string) (map[string]types.Place, error) {
	if len(names) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "no place names to resolve")
	}

	req := resolveRequest{Nodes: names, Property: "<-description->dcid"}
	resp, err := postJSON[resolveResponse](c, ctx, c.apiURL("/v2/resolve"), req)
	if err != nil {
		return nil, err
	}

	out := make(map[string]types.Place, len(resp.Entities))
	for _, e := range resp.Entities {
		if len(e.Candidates) == 0 {
			continue
		}
		// First candidate is the most confident match.
		best := e.Candidates[0]
		out[e.Node] = types.Place{
			DCID: best.DCID,
			Name: e.Node,
			Type: best.DominantType,
		}
	}
	return out, nil
}

// ChildPlaces lists places of the given type directly or transitively
// contained in the parent. An empty result means the child type does not
// occur under that parent on this instance.
func (c *Client) ChildPlaces(ctx context.Context, parentDCID, childType string) ([]types.Place, error) {
	if parentDCID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty parent place")
	}
	if childType == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty child place type")
	}

	req := nodeRequest{
		Nodes:    []string{parentDCID},
		Property: fmt.Sprintf("<-containedInPlace+{typeOf:%s}", childType),
	}
	resp, err := postJSON[nodeResponse](c, ctx, c.apiURL("/v2/node"), req)
	if err != nil {
		return nil, err
	}

	data, ok := resp.Data[parentDCID]
	if !ok {
		return nil, nil
	}

	var out []types.Place
	for _, arc := range data.Arcs {
		for _, n := range arc.Nodes {
			out = append(out, types.Place{DCID: n.DCID, Name: n.Name, Type: childType})
		}
	}
	return out, nil
}

// NodeNames fetches display names for the given nodes. Nodes without a
// name property are absent from the result.
func (c *Client) NodeNames(ctx context.Context, dcids []string) (map[string]string, error) {
	if len(dcids) == 0 {
		return map[string]string{}, nil
	}

	req := nodeRequest{Nodes: dcids, Property: "->name"}
	resp, err := postJSON[nodeResponse](c, ctx, c.apiURL("/v2/node"), req)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(dcids))
	for dcid, data := range resp.Data {
		arc, ok := data.Arcs["name"]
		if !ok || len(arc.Nodes) == 0 {
			continue
		}
		if v := arc.Nodes[0].Value; v != "" {
			out[dcid] = v
		} else if arc.Nodes[0].Name != "" {
			out[dcid] = arc.Nodes[0].Name
		}
	}
	return out, nil
}

// TopicMembers fetches the curated members of a topic: its ordered
// member variables and nested sub-topics.
func (c *Client) TopicMembers(ctx context.Context, topicDCID string) (*types.Topic, error) {
	if !IsTopicDCID(topicDCID) {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("%s is not a topic", topicDCID))
	}

	req := nodeRequest{Nodes: []string{topicDCID}, Property: "->[name, relevantVariable]"}
	resp, err := postJSON[nodeResponse](c, ctx, c.apiURL("/v2/node"), req)
	if err != nil {
		return nil, err
	}

	data, ok := resp.Data[topicDCID]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, fmt.Sprintf("topic %s not found", topicDCID)).
			WithInstance(c.desc.ID)
	}

	topic := &types.Topic{DCID: topicDCID}
	if arc, ok := data.Arcs["name"]; ok && len(arc.Nodes) > 0 {
		if arc.Nodes[0].Value != "" {
			topic.Name = arc.Nodes[0].Value
		} else {
			topic.Name = arc.Nodes[0].Name
		}
	}
	if arc, ok := data.Arcs["relevantVariable"]; ok {
		for _, n := range arc.Nodes {
			if IsTopicDCID(n.DCID) {
				topic.MemberTopics = append(topic.MemberTopics, n.DCID)
			} else {
				topic.MemberVariables = append(topic.MemberVariables, n.DCID)
			}
		}
	}
	return topic, nil
}
