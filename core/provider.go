package core

import "context"

// EmitFunc delivers one event toward the consumer side of the run. It blocks
// under backpressure and returns ErrBusClosed once the bus has been closed;
// producers stop promptly on that error.
type EmitFunc func(Event) error

// RequestView is the read-only slice of a request handed to a provider
// adapter. Actions are pre-filtered: disabled specs never appear here.
type RequestView struct {
	ThreadID        string
	RunID           string
	Messages        []Message
	Actions         []ActionSpec
	AgentSession    *AgentSessionInput
	ForwardedParams map[string]any
}

// ProviderAdapter bridges an external LLM or agent framework to the event
// vocabulary. Run produces events through emit until the unit of work is
// complete, then returns. Contract:
//   - observe ctx between every unit of work (each streamed token, each
//     action call) and terminate promptly on cancellation
//   - uphold the per-message ordering invariants documented on Event
//   - return an error instead of panicking; the orchestrator owns the
//     adapter boundary and converts failures to terminal MetaNotice events
type ProviderAdapter interface {
	Name() string
	Run(ctx context.Context, view RequestView, emit EmitFunc) error
}

// AgentDescriptor describes an agent available for agent-run sessions,
// surfaced by discovery.
type AgentDescriptor struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Version      string   `json:"version,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}
