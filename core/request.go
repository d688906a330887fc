package core

import "fmt"

// AgentSessionInput selects the agent-run provider variant and names the
// agent to continue. ThreadID overrides the request thread id for state
// lookups when set (continuation of an older thread).
type AgentSessionInput struct {
	AgentName string `json:"agent_name"`
	ThreadID  string `json:"thread_id,omitempty"`
	NodeName  string `json:"node_name,omitempty"`
}

// GuardrailsConfig configures the pre-flight policy check. The gate decides
// how to interpret the lists and rules; an empty config still triggers the
// check when present on a request.
type GuardrailsConfig struct {
	DenyList  []string       `json:"deny_list,omitempty"`
	AllowList []string       `json:"allow_list,omitempty"`
	Rules     map[string]any `json:"rules,omitempty"`
}

// Request is one inbound "generate a response" call. ThreadID and RunID are
// generated when absent and immutable afterwards; they correlate state-store
// lookups and route output back to the caller.
type Request struct {
	ThreadID        string             `json:"thread_id,omitempty"`
	RunID           string             `json:"run_id,omitempty"`
	Messages        []Message          `json:"messages"`
	Actions         []ActionSpec       `json:"actions,omitempty"`
	AgentSession    *AgentSessionInput `json:"agent_session,omitempty"`
	Guardrails      *GuardrailsConfig  `json:"guardrails,omitempty"`
	ForwardedParams map[string]any     `json:"forwarded_params,omitempty"`
}

// Validate fails fast on malformed requests before any bus is created.
func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return &ValidationError{Field: "messages", Reason: "at least one input message is required"}
	}
	seen := make(map[string]struct{}, len(r.Actions))
	for _, a := range r.Actions {
		if a.Name == "" {
			return &ValidationError{Field: "actions", Reason: "action name must not be empty"}
		}
		if _, dup := seen[a.Name]; dup {
			return &ValidationError{Field: "actions", Reason: fmt.Sprintf("duplicate action name %q", a.Name)}
		}
		seen[a.Name] = struct{}{}
	}
	if r.AgentSession != nil && r.AgentSession.AgentName == "" {
		return &ValidationError{Field: "agent_session.agent_name", Reason: "agent name must not be empty"}
	}
	return nil
}

// ResponseCode enumerates terminal response states.
type ResponseCode string

const (
	// ResponseSuccess marks a normally completed run.
	ResponseSuccess ResponseCode = "success"
	// ResponseFailed marks a run terminated by guardrail denial or error.
	ResponseFailed ResponseCode = "failed"
	// ResponseAborted marks a run terminated by cancellation.
	ResponseAborted ResponseCode = "aborted"
)

// ResponseStatus is the single terminal value of a run's state machine,
// resolved exactly once when the event bus closes.
type ResponseStatus struct {
	Code   ResponseCode `json:"code"`
	Reason string       `json:"reason,omitempty"`
}

// ResponseOK returns the success status.
func ResponseOK() ResponseStatus { return ResponseStatus{Code: ResponseSuccess} }

// ResponseFailure returns a failed status carrying the given reason.
func ResponseFailure(reason string) ResponseStatus {
	return ResponseStatus{Code: ResponseFailed, Reason: reason}
}

// ResponseAbort returns the aborted status.
func ResponseAbort() ResponseStatus {
	return ResponseStatus{Code: ResponseAborted, Reason: "aborted"}
}

// Response is the aggregated terminal result of one request.
type Response struct {
	ThreadID string         `json:"thread_id"`
	RunID    string         `json:"run_id"`
	Status   ResponseStatus `json:"status"`
	Messages []Message      `json:"messages"`
}
