// Package anthropic provides an implementation of model.Model using the
// Anthropic Messages API. Generation is buffered; the full message is
// returned as a single final response regardless of the Stream flag.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/runloop-ai/runloop/core"
	"github.com/runloop-ai/runloop/model"
)

// Options configure the Anthropic model adapter.
type Options struct {
	Model     anthropic.Model
	MaxTokens int64
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	client := anthropic.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:     anthropic.ModelClaudeSonnet4_0,
		MaxTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements buffered generation. Responses arrive on the returned
// channel as a single final element.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)
		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		final := model.Response{FinishReason: string(resp.StopReason)}
		for _, block := range resp.Content {
			switch b := block.AsAny().(type) {
			case anthropic.TextBlock:
				final.Text += b.Text
			case anthropic.ToolUseBlock:
				final.ToolCalls = append(final.ToolCalls, model.ToolCall{
					ID:        b.ID,
					Name:      b.Name,
					Arguments: string(b.Input),
				})
			}
		}
		if resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
			final.Usage = &model.TokenUsage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
				TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			}
		}
		out <- final
	}()
	return out, errCh
}

// buildParams assembles the Messages API request. System text is carried in
// the dedicated system field rather than the message list.
func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	var system []anthropic.TextBlockParam
	if req.Instructions != "" {
		system = append(system, anthropic.TextBlockParam{Text: req.Instructions})
	}

	var messages []anthropic.MessageParam
	for _, msg := range req.Messages {
		switch v := msg.(type) {
		case core.TextMessage:
			switch v.Role {
			case core.RoleSystem, core.RoleDeveloper:
				system = append(system, anthropic.TextBlockParam{Text: v.Content})
			case core.RoleAssistant:
				messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(v.Content)))
			default:
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(v.Content)))
			}
		case core.ActionExecutionMessage:
			var input map[string]any
			if err := json.Unmarshal([]byte(v.Arguments), &input); err != nil {
				input = map[string]any{}
			}
			messages = append(messages, anthropic.NewAssistantMessage(
				anthropic.NewToolUseBlock(v.ID, input, v.Name)))
		case core.ActionResultMessage:
			content := v.Result
			isError := false
			if v.Error != "" {
				content = v.Error
				isError = true
			}
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(v.ExecutionID, content, isError)))
		case core.AgentStateMessage, core.ImageMessage:
			continue
		}
	}

	params := anthropic.MessageNewParams{
		Model:     m.opts.Model,
		MaxTokens: m.opts.MaxTokens,
		System:    system,
		Messages:  messages,
	}
	if len(req.Actions) > 0 {
		tools := make([]anthropic.ToolUnionParam, len(req.Actions))
		for i, spec := range req.Actions {
			properties := spec.Parameters["properties"]
			var required []string
			switch raw := spec.Parameters["required"].(type) {
			case []string:
				required = raw
			case []any:
				for _, r := range raw {
					if s, ok := r.(string); ok {
						required = append(required, s)
					}
				}
			}
			inputSchema := anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			}
			tools[i] = anthropic.ToolUnionParamOfTool(inputSchema, spec.Name)
		}
		params.Tools = tools
	}
	return params
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: string(m.opts.Model), Provider: "anthropic", SupportsActions: true}
}
