package guardrails

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/runloop-ai/runloop/core"
)

// RegoGate evaluates guardrails as an OPA policy. The policy module must
// define data.runloop.guardrails.decision returning either the string
// "allow"/"deny" or an object {"allow": bool, "reason": string}. The
// evaluation input carries the user text plus the request's guardrails
// configuration.
type RegoGate struct {
	query rego.PreparedEvalQuery
}

// DefaultPolicy allows everything except inputs matching the configured deny
// list. It is the starting point for custom policies.
const DefaultPolicy = `package runloop.guardrails

import rego.v1

default decision := {"allow": true}

decision := {"allow": false, "reason": "input matches denied term"} if {
	some term in input.deny_list
	contains(lower(input.text), lower(term))
}
`

// NewRegoGate prepares the policy for evaluation once; Check then evaluates
// per request.
func NewRegoGate(ctx context.Context, policy string) (*RegoGate, error) {
	r := rego.New(
		rego.Query("data.runloop.guardrails.decision"),
		rego.Module("guardrails.rego", policy),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare guardrails policy: %w", err)
	}
	return &RegoGate{query: query}, nil
}

// Check implements core.GuardrailsGate.
func (g *RegoGate) Check(ctx context.Context, input core.GuardrailsInput) (core.Verdict, error) {
	evalInput := map[string]any{
		"text":       input.LastUserMessage,
		"deny_list":  input.Config.DenyList,
		"allow_list": input.Config.AllowList,
		"rules":      input.Config.Rules,
	}

	results, err := g.query.Eval(ctx, rego.EvalInput(evalInput))
	if err != nil {
		return core.Verdict{}, fmt.Errorf("evaluate guardrails policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// Policies are expected to define a default decision.
		return core.Allow(), nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		if val == "deny" {
			return core.Deny("denied by policy"), nil
		}
		return core.Allow(), nil
	case map[string]any:
		allowed, _ := val["allow"].(bool)
		if allowed {
			return core.Allow(), nil
		}
		reason, _ := val["reason"].(string)
		if reason == "" {
			reason = "denied by policy"
		}
		return core.Deny(reason), nil
	default:
		return core.Verdict{}, fmt.Errorf("unexpected policy decision type %T", val)
	}
}
