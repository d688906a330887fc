// Package guardrails provides pre-flight policy gates over the latest user
// input. A gate runs at most once per request, before any provider dispatch;
// a denial short-circuits the whole pipeline. Three implementations are
// provided: an in-process deny-list gate, an OPA/rego gate for expressive
// policies, and an HTTP gate for remote guardrails services.
package guardrails

import (
	"context"
	"strings"

	"github.com/runloop-ai/runloop/core"
)

// DenyListGate denies input containing any configured deny-list term, unless
// an allow-list term also matches. Matching is case-insensitive substring.
type DenyListGate struct{}

// NewDenyListGate constructs the in-process list gate.
func NewDenyListGate() *DenyListGate { return &DenyListGate{} }

// Check implements core.GuardrailsGate.
func (g *DenyListGate) Check(_ context.Context, input core.GuardrailsInput) (core.Verdict, error) {
	text := strings.ToLower(input.LastUserMessage)
	for _, term := range input.Config.AllowList {
		if term != "" && strings.Contains(text, strings.ToLower(term)) {
			return core.Allow(), nil
		}
	}
	for _, term := range input.Config.DenyList {
		if term != "" && strings.Contains(text, strings.ToLower(term)) {
			return core.Deny("input matches denied term"), nil
		}
	}
	return core.Allow(), nil
}
