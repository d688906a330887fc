package runloop

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runloop-ai/runloop/core"
	"github.com/runloop-ai/runloop/model"
	"github.com/runloop-ai/runloop/provider/agentrun"
)

func userRequest(text string) core.Request {
	return core.Request{Messages: []core.Message{core.NewTextMessage(core.RoleUser, text)}}
}

func TestRuntime_RunCompletion(t *testing.T) {
	m := model.NewMockModel("test")
	m.AddResponse("hi there", "hello!")

	rt, err := New(func(o *Options) { o.Model = m })
	require.NoError(t, err)
	defer rt.Close()

	resp, err := rt.Run(context.Background(), userRequest("hi there"))
	require.NoError(t, err)
	assert.Equal(t, core.ResponseSuccess, resp.Status.Code)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hello!", resp.Messages[0].(core.TextMessage).Content)
}

func TestRuntime_DefaultGateDenies(t *testing.T) {
	m := model.NewMockModel("test")
	rt, err := New(func(o *Options) { o.Model = m })
	require.NoError(t, err)
	defer rt.Close()

	req := userRequest("this mentions a blocked topic")
	req.Guardrails = &core.GuardrailsConfig{DenyList: []string{"blocked"}}

	resp, err := rt.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, core.ResponseFailed, resp.Status.Code)
}

func TestRuntime_RegisterActionAndList(t *testing.T) {
	rt, err := New(func(o *Options) { o.Model = model.NewMockModel("test") })
	require.NoError(t, err)
	defer rt.Close()

	require.NoError(t, rt.RegisterAction("ping",
		func(context.Context, map[string]any) (any, error) { return "pong", nil }))
	specs := rt.ListActions()
	require.Len(t, specs, 1)
	assert.Equal(t, "ping", specs[0].Name)
}

// echoAgent replies with the latest user text.
type echoAgent struct{}

func (echoAgent) Describe() core.AgentDescriptor {
	return core.AgentDescriptor{Name: "echo", Description: "Echoes the user", Version: "1.0.0"}
}

func (echoAgent) Run(_ context.Context, input agentrun.RunInput, session *agentrun.Session) error {
	return session.EmitText("echo: " + core.LastUserText(input.Messages))
}

func TestRuntime_AgentRunAndDiscovery(t *testing.T) {
	rt, err := New(func(o *Options) {
		o.Agents = []agentrun.AgentRunner{echoAgent{}}
	})
	require.NoError(t, err)
	defer rt.Close()

	agents := rt.ListAgents()
	require.Len(t, agents, 1)
	assert.Equal(t, "echo", agents[0].Name)

	req := userRequest("anyone home")
	req.AgentSession = &core.AgentSessionInput{AgentName: "echo"}
	resp, err := rt.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, core.ResponseSuccess, resp.Status.Code)

	var echoed bool
	for _, msg := range resp.Messages {
		if tm, ok := msg.(core.TextMessage); ok && tm.Content == "echo: anyone home" {
			echoed = true
		}
	}
	assert.True(t, echoed)
}

// stallAgent blocks until its context is cancelled.
type stallAgent struct{ started chan struct{} }

func (stallAgent) Describe() core.AgentDescriptor {
	return core.AgentDescriptor{Name: "stall"}
}

func (a stallAgent) Run(ctx context.Context, _ agentrun.RunInput, _ *agentrun.Session) error {
	close(a.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestRuntime_CancelAbortsLiveRun(t *testing.T) {
	agent := stallAgent{started: make(chan struct{})}
	rt, err := New(func(o *Options) {
		o.Agents = []agentrun.AgentRunner{agent}
	})
	require.NoError(t, err)
	defer rt.Close()

	req := userRequest("wait forever")
	req.RunID = "run-cancel-1"
	req.AgentSession = &core.AgentSessionInput{AgentName: "stall"}

	stream, err := rt.Stream(context.Background(), req)
	require.NoError(t, err)

	go func() {
		<-agent.started
		assert.True(t, rt.Cancel("run-cancel-1"))
	}()
	for range stream.Events() {
	}

	resp, err := stream.Wait()
	require.NoError(t, err)
	assert.Equal(t, core.ResponseAborted, resp.Status.Code)

	assert.False(t, rt.Cancel("run-cancel-1"), "finished runs are no longer cancellable")
	assert.False(t, rt.Cancel("never-existed"))
}

func TestRuntime_RunWithoutModelFails(t *testing.T) {
	rt, err := New()
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.Run(context.Background(), userRequest("hi"))
	require.Error(t, err)
}

func TestRuntime_ToolLoopEndToEnd(t *testing.T) {
	m := model.NewMockModel("test")
	m.AddToolCall("add two and three", model.ToolCall{
		ID: "call-1", Name: "calculate_sum", Arguments: `{"a":2,"b":3}`,
	})
	m.AddResponse("add two and three", "The answer is 5.")

	rt, err := New(func(o *Options) { o.Model = m })
	require.NoError(t, err)
	defer rt.Close()

	require.NoError(t, rt.RegisterAction("calculate_sum",
		func(_ context.Context, args map[string]any) (any, error) {
			return fmt.Sprintf("%v", args["a"].(float64)+args["b"].(float64)), nil
		}))

	req := userRequest("add two and three")
	req.Actions = rt.ListActions()

	resp, err := rt.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, core.ResponseSuccess, resp.Status.Code)

	var sawExecution, sawResult, sawText bool
	for _, msg := range resp.Messages {
		switch m := msg.(type) {
		case core.ActionExecutionMessage:
			sawExecution = m.Name == "calculate_sum"
		case core.ActionResultMessage:
			sawResult = m.Result == "5"
		case core.TextMessage:
			sawText = m.Content == "The answer is 5."
		}
	}
	assert.True(t, sawExecution)
	assert.True(t, sawResult)
	assert.True(t, sawText)
}

func TestRuntime_RunHonorsCallerTimeout(t *testing.T) {
	agent := stallAgent{started: make(chan struct{})}
	rt, err := New(func(o *Options) {
		o.Agents = []agentrun.AgentRunner{agent}
	})
	require.NoError(t, err)
	defer rt.Close()

	req := userRequest("slow")
	req.AgentSession = &core.AgentSessionInput{AgentName: "stall"}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	resp, err := rt.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, core.ResponseAborted, resp.Status.Code)
}
