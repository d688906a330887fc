package model

import (
	"context"
	"fmt"

	"github.com/runloop-ai/runloop/core"
)

// ToolCall is a complete tool invocation surfaced by a model, unified across
// vendors.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // serialized JSON argument payload
}

// ToolCallDelta is a streamed fragment of a tool call. Index correlates
// fragments of the same call within one completion; ID and Name are set on
// the first fragment, Arguments accumulate across fragments.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// TokenUsage captures token accounting for a completed generation.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is the normalized model input produced by the completion provider.
type Request struct {
	Instructions string             `json:"instructions,omitempty"`
	Messages     []core.Message     `json:"messages"`
	Actions      []core.ActionSpec  `json:"actions,omitempty"`
	Stream       bool               `json:"stream,omitempty"`
	Params       map[string]any     `json:"params,omitempty"` // forwarded caller parameters
}

// Response is a (partial or final) chunk emitted by a model.
//
// Streaming models emit any number of partial chunks (Text and/or
// ToolCallDeltas populated) followed by exactly one final chunk with
// FinishReason set and ToolCalls holding the completed calls. Non-streaming
// models emit the final chunk only, with Text carrying the full completion.
type Response struct {
	Partial        bool            `json:"partial"`
	Text           string          `json:"text,omitempty"`
	ToolCallDeltas []ToolCallDelta `json:"tool_call_deltas,omitempty"`
	ToolCalls      []ToolCall      `json:"tool_calls,omitempty"`
	FinishReason   string          `json:"finish_reason,omitempty"` // "stop", "length", "tool_calls", ...
	Usage          *TokenUsage     `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name            string `json:"name"`
	Provider        string `json:"provider"` // "openai", "anthropic", "mock", ...
	SupportsActions bool   `json:"supports_actions"`
}

// Model is the minimal interface the completion provider drives.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model for tests and examples. Canned
// completions are keyed by the latest user text; a scripted tool call is
// emitted once before the text completion when registered for that prompt.
type MockModel struct {
	info      Info
	responses map[string]string
	toolCalls map[string]ToolCall
}

// NewMockModel constructs a MockModel with action support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock", SupportsActions: true},
		responses: make(map[string]string),
		toolCalls: make(map[string]ToolCall),
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockModel) AddResponse(prompt, response string) { m.responses[prompt] = response }

// AddToolCall scripts a tool call emitted for a prompt before the canned
// text completion. The second generation round reaching the same prompt
// (after the tool result is appended) produces the text completion.
func (m *MockModel) AddToolCall(prompt string, call ToolCall) { m.toolCalls[prompt] = call }

// Generate implements Model; streams rune-sized chunks then the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	out := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		prompt := core.LastUserText(req.Messages)

		if call, ok := m.toolCalls[prompt]; ok && !m.hasResult(req.Messages, call.ID) {
			out <- Response{
				Partial:      false,
				ToolCalls:    []ToolCall{call},
				FinishReason: "tool_calls",
			}
			return
		}

		full := m.responses[prompt]
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", prompt)
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- Response{Partial: true, Text: string(r)}:
				}
			}
		}
		final := Response{FinishReason: "stop"}
		if !req.Stream {
			final.Text = full
		}
		out <- final
	}()

	return out, errCh
}

func (m *MockModel) hasResult(messages []core.Message, callID string) bool {
	for _, msg := range messages {
		if rm, ok := msg.(core.ActionResultMessage); ok && rm.ExecutionID == callID {
			return true
		}
	}
	return false
}

// Info returns metadata describing the mock.
func (m *MockModel) Info() Info { return m.info }
