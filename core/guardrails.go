package core

import "context"

// Verdict is the outcome of a guardrails check.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow returns an allowing verdict.
func Allow() Verdict { return Verdict{Allowed: true} }

// Deny returns a denying verdict with the given policy reason.
func Deny(reason string) Verdict { return Verdict{Allowed: false, Reason: reason} }

// GuardrailsInput is what a gate inspects: the latest user input plus the
// request's guardrails configuration and conversation history.
type GuardrailsInput struct {
	LastUserMessage string
	History         []Message
	Config          GuardrailsConfig
}

// GuardrailsGate is the pre-flight policy check invoked at most once per
// request, before any provider dispatch. Implementations may be network
// bound; they must honor ctx and return promptly on cancellation or timeout.
// A check error is distinct from a denial: errors terminate the run as a
// whole, denials short-circuit it with a policy reason.
type GuardrailsGate interface {
	Check(ctx context.Context, input GuardrailsInput) (Verdict, error)
}
