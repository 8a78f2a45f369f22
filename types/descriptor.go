package types

import (
	"fmt"
	"net/url"
	"strings"
)

// InstanceRole tells the merge layer how much authority an instance carries.
// Custom instances are treated as overrides of the public graph.
type InstanceRole string

const (
	RoleBase   InstanceRole = "base"
	RoleCustom InstanceRole = "custom"
)

// FederationMode selects how the configured instances are combined.
type FederationMode string

const (
	// ModeBaseOnly queries a single public instance.
	ModeBaseOnly FederationMode = "base-only"
	// ModeBaseCustom queries one public instance plus one custom instance.
	ModeBaseCustom FederationMode = "base+custom"
	// ModeFederated queries every configured instance equivalently; any mix
	// of roles is permitted, including zero or many base instances.
	ModeFederated FederationMode = "federated"
)

// InstanceDescriptor is the static connection record for one backend
// instance. It is created once at startup from configuration and never
// mutated afterwards, so it is safe to share across requests without
// locking.
type InstanceDescriptor struct {
	// ID uniquely identifies the instance within the federation.
	ID string `yaml:"id" json:"id"`

	// BaseURL is the root of the instance's data API.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// APIKey authenticates outbound calls. Never logged, never included in
	// error payloads.
	APIKey string `yaml:"api_key" json:"-"`

	// SearchBaseURL is the root of the indicator-search endpoint. Falls back
	// to BaseURL when empty.
	SearchBaseURL string `yaml:"search_base_url" json:"search_base_url,omitempty"`

	// SearchIndex selects the embedding index used by indicator search.
	SearchIndex string `yaml:"search_index" json:"search_index,omitempty"`

	Role InstanceRole `yaml:"role" json:"role"`

	// SupportsTopics marks instances that serve curated topic groupings.
	// Topic hits from instances without this flag are discarded.
	SupportsTopics bool `yaml:"supports_topics" json:"supports_topics"`
}

// String renders the descriptor without the credential.
func (d InstanceDescriptor) String() string {
	return fmt.Sprintf("instance(id=%s role=%s url=%s topics=%t)", d.ID, d.Role, d.BaseURL, d.SupportsTopics)
}

// SearchURL returns the effective search endpoint root.
func (d InstanceDescriptor) SearchURL() string {
	if d.SearchBaseURL != "" {
		return strings.TrimRight(d.SearchBaseURL, "/")
	}
	return strings.TrimRight(d.BaseURL, "/")
}

// FederationConfig is the validated, ordered set of backend instances. The
// order is significant: it is the deterministic tie-break between instances
// of equal precedence during merging.
type FederationConfig struct {
	Instances []InstanceDescriptor `yaml:"instances" json:"instances"`
	Mode      FederationMode       `yaml:"mode" json:"mode"`
}

// Validate checks the startup invariants. Any violation is a
// CONFIGURATION_ERROR: the process must refuse to start rather than degrade
// silently at request time.
func (c *FederationConfig) Validate() error {
	if len(c.Instances) == 0 {
		return NewError(ErrConfiguration, "no instances configured")
	}

	switch c.Mode {
	case ModeBaseOnly, ModeBaseCustom, ModeFederated:
	default:
		return NewError(ErrConfiguration, fmt.Sprintf("unknown federation mode %q", c.Mode))
	}

	seen := make(map[string]struct{}, len(c.Instances))
	baseCount := 0
	for _, d := range c.Instances {
		if d.ID == "" {
			return NewError(ErrConfiguration, "instance with empty id")
		}
		if _, dup := seen[d.ID]; dup {
			return NewError(ErrConfiguration, fmt.Sprintf("duplicate instance id %q", d.ID))
		}
		seen[d.ID] = struct{}{}

		if d.Role != RoleBase && d.Role != RoleCustom {
			return NewError(ErrConfiguration, fmt.Sprintf("instance %q: unknown role %q", d.ID, d.Role))
		}
		if d.BaseURL == "" {
			return NewError(ErrConfiguration, fmt.Sprintf("instance %q: empty base URL", d.ID))
		}
		if _, err := url.ParseRequestURI(d.BaseURL); err != nil {
			return NewError(ErrConfiguration, fmt.Sprintf("instance %q: invalid base URL", d.ID)).WithCause(err)
		}
		if d.Role == RoleBase {
			baseCount++
		}
	}

	// Federated mode permits any mix of roles; the fixed modes require
	// exactly one base instance.
	if c.Mode != ModeFederated && baseCount != 1 {
		return NewError(ErrConfiguration, fmt.Sprintf("mode %q requires exactly one base instance, got %d", c.Mode, baseCount))
	}
	if c.Mode == ModeBaseOnly && len(c.Instances) != 1 {
		return NewError(ErrConfiguration, fmt.Sprintf("mode %q permits exactly one instance, got %d", ModeBaseOnly, len(c.Instances)))
	}
	if c.Mode == ModeBaseCustom && len(c.Instances) != 2 {
		return NewError(ErrConfiguration, fmt.Sprintf("mode %q requires one base and one custom instance, got %d", ModeBaseCustom, len(c.Instances)))
	}

	return nil
}

// Descriptor returns the descriptor with the given id.
func (c *FederationConfig) Descriptor(id string) (InstanceDescriptor, bool) {
	for _, d := range c.Instances {
		if d.ID == id {
			return d, true
		}
	}
	return InstanceDescriptor{}, false
}

// Position returns the configuration index of the given instance id, used
// as the earliest-configured-wins tie-break. Unknown ids sort last.
func (c *FederationConfig) Position(id string) int {
	for i, d := range c.Instances {
		if d.ID == id {
			return i
		}
	}
	return len(c.Instances)
}
