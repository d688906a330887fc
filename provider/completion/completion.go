// Package completion implements the LLM-completion provider adapter. It
// drives a model.Model in a tool loop: stream one completion as text and
// action events, execute any tool calls, feed the results back, and repeat
// until the model finishes without calling tools.
package completion

import (
	"context"
	"strings"
	"time"

	"github.com/runloop-ai/runloop/core"
	"github.com/runloop-ai/runloop/logging"
	"github.com/runloop-ai/runloop/metrics"
	"github.com/runloop-ai/runloop/model"
)

// DefaultMaxModelCalls bounds the tool loop per run.
const DefaultMaxModelCalls = 10

// ActionInvoker executes one action call and returns the serialized result.
// *action.Invoker satisfies it.
type ActionInvoker interface {
	Invoke(ctx context.Context, spec core.ActionSpec, rawArgs string) (string, error)
}

// Options configure the completion adapter.
type Options struct {
	// Instructions is prepended as system guidance on every model call.
	Instructions string
	// MaxModelCalls bounds provider round-trips per run. 0 means unlimited.
	MaxModelCalls int
	// Stream requests incremental output from models that support it.
	Stream bool
	// Logger receives adapter diagnostics.
	Logger logging.Logger
}

// Adapter runs completion requests against a model. It is stateless across
// runs and safe for concurrent use.
type Adapter struct {
	model   model.Model
	invoker ActionInvoker
	opts    Options
}

var _ core.ProviderAdapter = (*Adapter)(nil)

// New creates a completion adapter for the given model. invoker may be nil
// when the request offers no actions.
func New(m model.Model, invoker ActionInvoker, optFns ...func(o *Options)) *Adapter {
	opts := Options{
		MaxModelCalls: DefaultMaxModelCalls,
		Stream:        true,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Adapter{model: m, invoker: invoker, opts: opts}
}

// Name implements core.ProviderAdapter.
func (a *Adapter) Name() string { return "completion" }

// Run implements core.ProviderAdapter. One iteration per model call; the
// loop terminates when a turn produces no tool calls, the context is
// cancelled, or the call budget is exhausted.
func (a *Adapter) Run(ctx context.Context, view core.RequestView, emit core.EmitFunc) error {
	limiter := core.NewCallLimiter(a.opts.MaxModelCalls)
	specs := make(map[string]core.ActionSpec, len(view.Actions))
	for _, s := range view.Actions {
		specs[s.Name] = s
	}
	messages := append([]core.Message(nil), view.Messages...)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := limiter.Increment(); err != nil {
			return err
		}

		metrics.ProviderCalls.WithLabelValues(a.model.Info().Provider, "started").Inc()
		out, errCh := a.model.Generate(ctx, model.Request{
			Instructions: a.opts.Instructions,
			Messages:     messages,
			Actions:      view.Actions,
			Stream:       a.opts.Stream,
			Params:       view.ForwardedParams,
		})

		turn, err := a.consumeTurn(ctx, out, errCh, emit)
		if err != nil {
			metrics.ProviderCalls.WithLabelValues(a.model.Info().Provider, "failed").Inc()
			return err
		}
		metrics.ProviderCalls.WithLabelValues(a.model.Info().Provider, "completed").Inc()

		if turn.text != "" {
			messages = append(messages, core.NewTextMessage(core.RoleAssistant, turn.text))
		}
		if len(turn.calls) == 0 {
			return nil
		}

		for _, call := range turn.calls {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, callErr := a.invoke(ctx, specs, call)
			if err := emit(core.NewActionResult(call.ID, call.Name, result, callErr)); err != nil {
				return err
			}
			messages = append(messages, executionMessage(call), resultMessage(call, result, callErr))
		}
	}
}

// turnOutcome is what one model call produced, after all events were emitted.
type turnOutcome struct {
	text   string
	calls  []model.ToolCall
	finish string
}

// consumeTurn drains one generation, translating chunks into events. Streamed
// tool-call fragments open executions eagerly; the final chunk reconciles
// them against the completed call list and closes every open execution.
func (a *Adapter) consumeTurn(
	ctx context.Context,
	out <-chan model.Response,
	errCh <-chan error,
	emit core.EmitFunc,
) (turnOutcome, error) {
	var res turnOutcome
	var buf strings.Builder
	textID := ""

	// Model goroutines send without watching ctx once their buffer fills, so
	// abandoning a generation mid-stream must not strand the producer. Both
	// channels are closed by the producer, so the drain always terminates.
	done := false
	defer func() {
		if done {
			return
		}
		go func() {
			for range out {
			}
			for range errCh {
			}
		}()
	}()

	type openCall struct{ id, name string }
	opened := make(map[int]*openCall)
	var openOrder []int

	closeText := func() error {
		if textID == "" {
			return nil
		}
		err := emit(core.NewTextEnd(textID))
		textID = ""
		return err
	}

	for r := range out {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if r.Partial {
			if r.Text != "" {
				if textID == "" {
					textID = core.NewID()
					if err := emit(core.NewTextStart(textID, core.RoleAssistant)); err != nil {
						return res, err
					}
				}
				if err := emit(core.NewTextDelta(textID, r.Text)); err != nil {
					return res, err
				}
				buf.WriteString(r.Text)
			}
			for _, d := range r.ToolCallDeltas {
				oc, ok := opened[d.Index]
				if !ok {
					if err := closeText(); err != nil {
						return res, err
					}
					id := d.ID
					if id == "" {
						id = core.NewID()
					}
					oc = &openCall{id: id, name: d.Name}
					opened[d.Index] = oc
					openOrder = append(openOrder, d.Index)
					if err := emit(core.NewActionStart(oc.id, oc.name, "")); err != nil {
						return res, err
					}
				}
				if d.Arguments != "" {
					if err := emit(core.NewActionArgsDelta(oc.id, d.Arguments)); err != nil {
						return res, err
					}
				}
			}
			continue
		}

		// Final chunk.
		res.finish = r.FinishReason
		res.calls = r.ToolCalls
		if r.Text != "" {
			id := core.NewID()
			if err := emit(core.NewTextStart(id, core.RoleAssistant)); err != nil {
				return res, err
			}
			if err := emit(core.NewTextDelta(id, r.Text)); err != nil {
				return res, err
			}
			if err := emit(core.NewTextEnd(id)); err != nil {
				return res, err
			}
			buf.WriteString(r.Text)
		}
		if err := closeText(); err != nil {
			return res, err
		}

		// Reconcile completed calls against streamed-open executions. Calls
		// never seen as deltas get the full start/args/end sequence here.
		streamed := make(map[string]bool, len(openOrder))
		for _, idx := range openOrder {
			streamed[opened[idx].id] = true
		}
		next := 0
		for i := range res.calls {
			call := &res.calls[i]
			if call.ID != "" && streamed[call.ID] {
				if err := emit(core.NewActionEnd(call.ID)); err != nil {
					return res, err
				}
				continue
			}
			if call.ID == "" && next < len(openOrder) {
				oc := opened[openOrder[next]]
				next++
				call.ID = oc.id
				if err := emit(core.NewActionEnd(call.ID)); err != nil {
					return res, err
				}
				continue
			}
			if call.ID == "" {
				call.ID = core.NewID()
			}
			if err := emit(core.NewActionStart(call.ID, call.Name, "")); err != nil {
				return res, err
			}
			if call.Arguments != "" {
				if err := emit(core.NewActionArgsDelta(call.ID, call.Arguments)); err != nil {
					return res, err
				}
			}
			if err := emit(core.NewActionEnd(call.ID)); err != nil {
				return res, err
			}
		}
	}

	done = true
	if err := <-errCh; err != nil {
		return res, &core.ProviderError{Provider: a.Name(), Err: err}
	}
	res.text = buf.String()
	return res, nil
}

// invoke routes one tool call, converting unknown actions and a missing
// invoker into failed results instead of run-terminating errors.
func (a *Adapter) invoke(ctx context.Context, specs map[string]core.ActionSpec, call model.ToolCall) (string, error) {
	spec, ok := specs[call.Name]
	if !ok {
		a.opts.Logger.Warn("model called unknown action", "action", call.Name)
		return "", &core.ValidationError{Field: "action", Reason: "unknown action " + call.Name}
	}
	if a.invoker == nil {
		return "", &core.ValidationError{Field: "action", Reason: "no action invoker configured"}
	}
	start := time.Now()
	result, err := a.invoker.Invoke(ctx, spec, call.Arguments)
	if err != nil {
		a.opts.Logger.Warn("action failed",
			"action", call.Name, "duration", time.Since(start), "error", err)
		return "", err
	}
	a.opts.Logger.Debug("action completed", "action", call.Name, "duration", time.Since(start))
	return result, nil
}

func executionMessage(call model.ToolCall) core.ActionExecutionMessage {
	return core.ActionExecutionMessage{
		MessageMeta: core.MessageMeta{
			ID:      call.ID,
			Created: time.Now().UTC(),
			Role:    core.RoleAssistant,
			Status:  core.Succeeded(),
		},
		Name:      call.Name,
		Arguments: call.Arguments,
	}
}

func resultMessage(call model.ToolCall, result string, err error) core.ActionResultMessage {
	msg := core.ActionResultMessage{
		MessageMeta: core.MessageMeta{
			ID:      call.ID + "-result",
			Created: time.Now().UTC(),
			Role:    core.RoleTool,
			Status:  core.Succeeded(),
		},
		ExecutionID: call.ID,
		ActionName:  call.Name,
		Result:      result,
	}
	if err != nil {
		msg.Status = core.Failed(err.Error())
		msg.Error = err.Error()
		msg.Result = ""
	}
	return msg
}
