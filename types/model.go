package types

// Place is a resolved geographic or administrative entity.
type Place struct {
	DCID string `json:"dcid"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// Variable is a statistical variable node.
type Variable struct {
	DCID string `json:"dcid"`
	Name string `json:"name,omitempty"`
}

// Topic is a curated grouping of member variables and nested sub-topics.
// Member order is curator-defined and preserved end to end.
type Topic struct {
	DCID            string   `json:"dcid"`
	Name            string   `json:"name,omitempty"`
	MemberVariables []string `json:"member_variables,omitempty"`
	MemberTopics    []string `json:"member_topics,omitempty"`
}

// SearchHit is one indicator (variable or topic) returned by federated
// search, after merging and deduplication.
type SearchHit struct {
	DCID    string  `json:"dcid"`
	Name    string  `json:"name,omitempty"`
	Score   float64 `json:"score"`
	IsTopic bool    `json:"is_topic,omitempty"`

	// InstanceID names the instance whose hit survived the merge.
	InstanceID string `json:"instance_id"`
}

// DegradedInstance reports one instance that failed to contribute to a
// partial result. The advisory is mandatory whenever a result was assembled
// without every configured instance.
type DegradedInstance struct {
	InstanceID string `json:"instance_id"`
	Reason     string `json:"reason"`
}

// SearchResult is the merged output of a federated indicator search. Hits
// are sorted by descending score, ties broken by lexical DCID, and the
// ordering is independent of backend arrival order.
type SearchResult struct {
	Hits     []SearchHit        `json:"hits"`
	Degraded []DegradedInstance `json:"degraded,omitempty"`
}

// Observation is a single (variable, place, date) data point.
type Observation struct {
	VariableDCID string  `json:"variable_dcid"`
	PlaceDCID    string  `json:"place_dcid"`
	Date         string  `json:"date"`
	Value        float64 `json:"value"`

	// SourceID identifies the provenance facet the value came from.
	SourceID string `json:"source_id,omitempty"`

	// InstanceID names the instance that supplied the value.
	InstanceID string `json:"instance_id"`
}

// ObservationQuery is a validated request for observation retrieval.
// Exactly one of Variable or Topic must be set; topic queries are expanded
// to member variables before fan-out.
type ObservationQuery struct {
	Variable string     `json:"variable,omitempty"`
	Topic    string     `json:"topic,omitempty"`
	Places   []string   `json:"places"`
	Dates    *DateRange `json:"dates,omitempty"`
}

// Validate checks the request invariants common to every transport.
func (q *ObservationQuery) Validate() error {
	if (q.Variable == "") == (q.Topic == "") {
		return NewError(ErrInvalidRequest, "exactly one of variable or topic must be set")
	}
	if len(q.Places) == 0 {
		return NewError(ErrInvalidRequest, "at least one place is required")
	}
	for _, p := range q.Places {
		if p == "" {
			return NewError(ErrInvalidRequest, "empty place identifier")
		}
	}
	if q.Dates != nil {
		if err := q.Dates.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ObservationSet is the merged output of federated observation retrieval.
type ObservationSet struct {
	Observations []Observation `json:"observations"`

	// TopicDCID is set when the query named a topic; the observations then
	// cover the topic's member variables in curated order.
	TopicDCID string `json:"topic_dcid,omitempty"`

	// MemberVariables preserves the curated member order for topic queries.
	MemberVariables []string `json:"member_variables,omitempty"`

	Degraded []DegradedInstance `json:"degraded,omitempty"`
}

// PlaceTypeValidation is the result of checking whether a child place type
// actually occurs under a parent place.
type PlaceTypeValidation struct {
	ParentDCID string `json:"parent_dcid"`
	ChildType  string `json:"child_type"`
	Valid      bool   `json:"valid"`

	// SampleChildren holds up to a handful of matching children as
	// supporting evidence when Valid is true.
	SampleChildren []Place `json:"sample_children,omitempty"`

	Degraded []DegradedInstance `json:"degraded,omitempty"`
}
