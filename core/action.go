package core

// Availability controls whether and where an action may be executed.
type Availability string

const (
	// AvailabilityEnabled offers the action to the provider and executes it locally.
	AvailabilityEnabled Availability = "enabled"
	// AvailabilityDisabled hides the action from the provider entirely.
	AvailabilityDisabled Availability = "disabled"
	// AvailabilityRemote offers the action to the provider but routes execution
	// to the configured remote endpoint instead of the local registry.
	AvailabilityRemote Availability = "remote"
)

// ActionSpec describes a named capability offered to a provider. Name must be
// unique within a request. Parameters is a JSON-schema object describing the
// accepted arguments.
type ActionSpec struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Availability Availability   `json:"availability,omitempty"`
}

// Enabled reports whether the action may be offered to a provider.
// The zero availability value counts as enabled.
func (s ActionSpec) Enabled() bool {
	return s.Availability != AvailabilityDisabled
}

// OfferedActions filters specs down to those a provider may see. Disabled
// actions are removed regardless of what the conversation history mentions.
func OfferedActions(specs []ActionSpec) []ActionSpec {
	offered := make([]ActionSpec, 0, len(specs))
	for _, s := range specs {
		if s.Enabled() {
			offered = append(offered, s)
		}
	}
	return offered
}
