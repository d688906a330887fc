package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runloop-ai/runloop/action"
	"github.com/runloop-ai/runloop/aggregate"
	"github.com/runloop-ai/runloop/core"
	"github.com/runloop-ai/runloop/internal/testutil"
	"github.com/runloop-ai/runloop/model"
)

func TestAdapter_StreamsTextRoundTrip(t *testing.T) {
	m := model.NewMockModel("test")
	m.AddResponse("hi there", "hello!")
	a := New(m, nil)

	rec := &testutil.EventRecorder{}
	err := a.Run(context.Background(), testutil.View(testutil.UserRequest("hi there")), rec.Emit)
	require.NoError(t, err)

	msgs := aggregate.Fold(rec.Events())
	require.Len(t, msgs, 1)
	tm, ok := msgs[0].(core.TextMessage)
	require.True(t, ok)
	assert.Equal(t, "hello!", tm.Content)
	assert.Equal(t, core.RoleAssistant, tm.Role)
	assert.Equal(t, core.StatusSuccess, tm.Status.Code)

	kinds := rec.Kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, core.KindTextStart, kinds[0])
	assert.Equal(t, core.KindTextEnd, kinds[len(kinds)-1])
}

func TestAdapter_ToolLoopExecutesAction(t *testing.T) {
	m := model.NewMockModel("test")
	m.AddToolCall("what is 2+3", model.ToolCall{
		ID: "call-1", Name: "calculate_sum", Arguments: `{"a":2,"b":3}`,
	})
	m.AddResponse("what is 2+3", "The sum is 5.")

	registry := action.NewRegistry()
	require.NoError(t, registry.Register("calculate_sum",
		func(_ context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		}))
	invoker := action.NewInvoker(registry, nil, time.Second)
	a := New(m, invoker)

	req := testutil.UserRequest("what is 2+3")
	req.Actions = []core.ActionSpec{{Name: "calculate_sum", Availability: core.AvailabilityEnabled}}

	rec := &testutil.EventRecorder{}
	require.NoError(t, a.Run(context.Background(), testutil.View(req), rec.Emit))

	msgs := aggregate.Fold(rec.Events())
	require.Len(t, msgs, 3, "execution, result and final text expected")

	exec, ok := msgs[0].(core.ActionExecutionMessage)
	require.True(t, ok)
	assert.Equal(t, "calculate_sum", exec.Name)
	assert.Equal(t, "call-1", exec.ID)

	res, ok := msgs[1].(core.ActionResultMessage)
	require.True(t, ok)
	assert.Equal(t, "call-1", res.ExecutionID)
	assert.Equal(t, "5", res.Result)
	assert.Equal(t, core.StatusSuccess, res.Status.Code)

	text, ok := msgs[2].(core.TextMessage)
	require.True(t, ok)
	assert.Equal(t, "The sum is 5.", text.Content)
}

func TestAdapter_UnknownActionBecomesFailedResult(t *testing.T) {
	m := model.NewMockModel("test")
	m.AddToolCall("use the tool", model.ToolCall{ID: "call-1", Name: "nonexistent", Arguments: `{}`})
	m.AddResponse("use the tool", "done anyway")

	a := New(m, action.NewInvoker(action.NewRegistry(), nil, time.Second))

	rec := &testutil.EventRecorder{}
	require.NoError(t, a.Run(context.Background(), testutil.View(testutil.UserRequest("use the tool")), rec.Emit))

	msgs := aggregate.Fold(rec.Events())
	var res *core.ActionResultMessage
	for _, msg := range msgs {
		if rm, ok := msg.(core.ActionResultMessage); ok {
			res = &rm
		}
	}
	require.NotNil(t, res, "a failed result must still be emitted")
	assert.Equal(t, core.StatusFailed, res.Status.Code)
	assert.Contains(t, res.Error, "unknown action")
}

// loopModel always answers with a tool call, so only the call budget stops it.
type loopModel struct{ calls int }

func (m *loopModel) Generate(_ context.Context, _ model.Request) (<-chan model.Response, <-chan error) {
	m.calls++
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	out <- model.Response{
		ToolCalls:    []model.ToolCall{{ID: core.NewID(), Name: "noop", Arguments: `{}`}},
		FinishReason: "tool_calls",
	}
	close(out)
	close(errCh)
	return out, errCh
}

func (m *loopModel) Info() model.Info {
	return model.Info{Name: "loop", Provider: "mock", SupportsActions: true}
}

func TestAdapter_CallLimitStopsRunawayLoop(t *testing.T) {
	registry := action.NewRegistry()
	require.NoError(t, registry.Register("noop",
		func(context.Context, map[string]any) (any, error) { return "ok", nil }))

	lm := &loopModel{}
	a := New(lm, action.NewInvoker(registry, nil, time.Second), func(o *Options) {
		o.MaxModelCalls = 3
	})

	req := testutil.UserRequest("loop forever")
	req.Actions = []core.ActionSpec{{Name: "noop"}}

	rec := &testutil.EventRecorder{}
	err := a.Run(context.Background(), testutil.View(req), rec.Emit)
	require.True(t, errors.Is(err, core.ErrCallLimit))
	assert.Equal(t, 3, lm.calls)
}

func TestAdapter_CancelledContextStopsRun(t *testing.T) {
	m := model.NewMockModel("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := New(m, nil)
	rec := &testutil.EventRecorder{}
	err := a.Run(ctx, testutil.View(testutil.UserRequest("hi")), rec.Emit)
	assert.True(t, errors.Is(err, context.Canceled))
}

// floodModel sends far more chunks than its buffer holds, without watching
// ctx, the way SDK-backed generators behave once their buffers fill.
type floodModel struct {
	started  chan struct{}
	finished chan struct{}
}

func (m *floodModel) Generate(_ context.Context, _ model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 4)
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		defer close(out)
		defer close(m.finished)
		close(m.started)
		for i := 0; i < 200; i++ {
			out <- model.Response{Partial: true, Text: "x"}
		}
		out <- model.Response{FinishReason: "stop"}
	}()
	return out, errCh
}

func (m *floodModel) Info() model.Info {
	return model.Info{Name: "flood", Provider: "mock"}
}

func TestAdapter_CancellationDoesNotStrandGenerator(t *testing.T) {
	fm := &floodModel{started: make(chan struct{}), finished: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())

	a := New(fm, nil)
	runErr := make(chan error, 1)
	go func() {
		rec := &testutil.EventRecorder{}
		runErr <- a.Run(ctx, testutil.View(testutil.UserRequest("hi")), rec.Emit)
	}()

	<-fm.started
	cancel()

	select {
	case err := <-runErr:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
	select {
	case <-fm.finished:
	case <-time.After(2 * time.Second):
		t.Fatal("generator goroutine is still blocked on its output channel")
	}
}
