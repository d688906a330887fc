package guardrails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/runloop-ai/runloop/core"
)

// DefaultHTTPTimeout bounds a remote guardrails check so the pipeline never
// blocks indefinitely on the pre-flight call.
const DefaultHTTPTimeout = 10 * time.Second

// HTTPGateOptions configure an HTTPGate.
type HTTPGateOptions struct {
	// Timeout bounds each check call.
	Timeout time.Duration
	// HTTPClient overrides the default client (tests, custom transports).
	HTTPClient *http.Client
	// Headers are attached to every check request (e.g. authorization).
	Headers map[string]string
}

// HTTPGate delegates the policy decision to a remote guardrails service via
// a JSON POST. A timeout or transport failure surfaces as an error, not a
// denial, so the orchestrator can terminate the run as errored.
type HTTPGate struct {
	url     string
	client  *http.Client
	headers map[string]string
}

type httpCheckRequest struct {
	Text      string         `json:"text"`
	DenyList  []string       `json:"deny_list,omitempty"`
	AllowList []string       `json:"allow_list,omitempty"`
	Rules     map[string]any `json:"rules,omitempty"`
}

type httpCheckResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// NewHTTPGate constructs a gate calling the service at url.
func NewHTTPGate(url string, optFns ...func(o *HTTPGateOptions)) *HTTPGate {
	opts := HTTPGateOptions{Timeout: DefaultHTTPTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPGate{url: url, client: client, headers: opts.Headers}
}

// Check implements core.GuardrailsGate.
func (g *HTTPGate) Check(ctx context.Context, input core.GuardrailsInput) (core.Verdict, error) {
	body, err := json.Marshal(httpCheckRequest{
		Text:      input.LastUserMessage,
		DenyList:  input.Config.DenyList,
		AllowList: input.Config.AllowList,
		Rules:     input.Config.Rules,
	})
	if err != nil {
		return core.Verdict{}, fmt.Errorf("encode guardrails request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return core.Verdict{}, fmt.Errorf("build guardrails request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range g.headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return core.Verdict{}, fmt.Errorf("guardrails service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.Verdict{}, fmt.Errorf("guardrails service: unexpected status %d", resp.StatusCode)
	}

	var decoded httpCheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return core.Verdict{}, fmt.Errorf("decode guardrails response: %w", err)
	}
	if decoded.Allowed {
		return core.Allow(), nil
	}
	reason := decoded.Reason
	if reason == "" {
		reason = "denied by guardrails service"
	}
	return core.Deny(reason), nil
}
