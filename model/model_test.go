package model

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runloop-ai/runloop/core"
)

func drain(t *testing.T, out <-chan Response, errCh <-chan error) []Response {
	t.Helper()
	var responses []Response
	for r := range out {
		responses = append(responses, r)
	}
	require.NoError(t, <-errCh)
	return responses
}

func TestMockModel_StreamingText(t *testing.T) {
	m := NewMockModel("test-model")
	m.AddResponse("hi there", "hello!")

	out, errCh := m.Generate(context.Background(), Request{
		Messages: []core.Message{core.NewTextMessage(core.RoleUser, "hi there")},
		Stream:   true,
	})
	responses := drain(t, out, errCh)
	require.NotEmpty(t, responses)

	var text strings.Builder
	for _, r := range responses[:len(responses)-1] {
		assert.True(t, r.Partial)
		text.WriteString(r.Text)
	}
	final := responses[len(responses)-1]
	assert.False(t, final.Partial)
	assert.Equal(t, "stop", final.FinishReason)
	assert.Equal(t, "hello!", text.String())
}

func TestMockModel_NonStreamingText(t *testing.T) {
	m := NewMockModel("test-model")
	m.AddResponse("hi there", "hello!")

	out, errCh := m.Generate(context.Background(), Request{
		Messages: []core.Message{core.NewTextMessage(core.RoleUser, "hi there")},
	})
	responses := drain(t, out, errCh)
	require.Len(t, responses, 1)
	assert.Equal(t, "hello!", responses[0].Text)
	assert.Equal(t, "stop", responses[0].FinishReason)
}

func TestMockModel_ScriptedToolCall(t *testing.T) {
	m := NewMockModel("test-model")
	m.AddToolCall("what is 2+3", ToolCall{ID: "call-1", Name: "calculate_sum", Arguments: `{"a":2,"b":3}`})
	m.AddResponse("what is 2+3", "The sum is 5.")

	history := []core.Message{core.NewTextMessage(core.RoleUser, "what is 2+3")}

	out, errCh := m.Generate(context.Background(), Request{Messages: history})
	first := drain(t, out, errCh)
	require.Len(t, first, 1)
	require.Len(t, first[0].ToolCalls, 1)
	assert.Equal(t, "calculate_sum", first[0].ToolCalls[0].Name)
	assert.Equal(t, "tool_calls", first[0].FinishReason)

	// With the tool result appended, the same prompt yields the text answer.
	history = append(history, core.ActionResultMessage{
		MessageMeta: core.MessageMeta{ID: "call-1-result", Role: core.RoleTool, Status: core.Succeeded()},
		ExecutionID: "call-1",
		ActionName:  "calculate_sum",
		Result:      "5",
	})
	out, errCh = m.Generate(context.Background(), Request{Messages: history})
	second := drain(t, out, errCh)
	require.Len(t, second, 1)
	assert.Empty(t, second[0].ToolCalls)
	assert.Equal(t, "The sum is 5.", second[0].Text)
}

func TestMockModel_NoMessages(t *testing.T) {
	m := NewMockModel("test-model")
	out, errCh := m.Generate(context.Background(), Request{})
	for range out {
	}
	assert.Error(t, <-errCh)
}

func TestMockModel_Info(t *testing.T) {
	m := NewMockModel("test-model")
	info := m.Info()
	assert.Equal(t, "test-model", info.Name)
	assert.Equal(t, "mock", info.Provider)
	assert.True(t, info.SupportsActions)
}
