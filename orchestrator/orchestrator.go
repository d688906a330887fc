// Package orchestrator drives one request end to end: validation, the
// guardrails gate, provider dispatch, the event bus lifecycle and final
// aggregation. Each run resolves to exactly one terminal status.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/runloop-ai/runloop/aggregate"
	"github.com/runloop-ai/runloop/bus"
	"github.com/runloop-ai/runloop/core"
	"github.com/runloop-ai/runloop/logging"
	"github.com/runloop-ai/runloop/metrics"
)

// DefaultGuardrailTimeout bounds the pre-flight gate check.
const DefaultGuardrailTimeout = 10 * time.Second

// Options configure an Orchestrator.
type Options struct {
	// BusCapacity is the per-subscriber queue depth for run event buses.
	BusCapacity int
	// PublishTimeout bounds a blocked publish before the event is dropped.
	PublishTimeout time.Duration
	// GuardrailTimeout bounds the gate check. A gate that does not answer in
	// time errors the run rather than silently allowing it.
	GuardrailTimeout time.Duration
	// Logger records run lifecycle transitions.
	Logger logging.Logger
}

// Orchestrator routes requests to the completion or agent-run provider and
// owns the run lifecycle around them. It is safe for concurrent use; all
// per-run state lives on the Stream.
type Orchestrator struct {
	completion core.ProviderAdapter
	agentRun   core.ProviderAdapter
	gate       core.GuardrailsGate
	opts       Options
}

// New creates an orchestrator. Either adapter may be nil; dispatching a
// request that needs the missing one fails validation. gate may be nil when
// no guardrails are enforced.
func New(completion, agentRun core.ProviderAdapter, gate core.GuardrailsGate, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		BusCapacity:      bus.DefaultCapacity,
		PublishTimeout:   bus.DefaultPublishTimeout,
		GuardrailTimeout: DefaultGuardrailTimeout,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{completion: completion, agentRun: agentRun, gate: gate, opts: opts}
}

// Stream is a live run. Events delivers the raw event stream as it is
// produced; Wait blocks until the run reaches its terminal status and
// returns the aggregated response. Callers that consume Events must drain
// it, otherwise backpressure eventually drops their events.
type Stream struct {
	ThreadID string
	RunID    string

	events  <-chan core.Event
	done    chan struct{}
	resp    *core.Response
	waitErr error
}

// Events returns the subscriber channel for this run. It closes when the
// run's bus closes.
func (s *Stream) Events() <-chan core.Event { return s.events }

// Wait blocks until the terminal status is resolved.
func (s *Stream) Wait() (*core.Response, error) {
	<-s.done
	return s.resp, s.waitErr
}

// Run executes the request to completion and returns the aggregated
// response. Terminal status mapping: guardrail denial, gate error and
// provider failure resolve to a failed response (nil error); only validation
// failures return an error with no response.
func (o *Orchestrator) Run(ctx context.Context, req core.Request) (*core.Response, error) {
	stream, err := o.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	// Drain the caller subscription so the producer never blocks on it.
	for range stream.Events() {
	}
	return stream.Wait()
}

// Stream starts the request and returns the live run. The returned error is
// non-nil only when the request itself is invalid; every other outcome,
// including denial and gate errors, resolves through Wait.
func (o *Orchestrator) Stream(ctx context.Context, req core.Request) (*Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ThreadID == "" {
		req.ThreadID = core.NewID()
	}
	if req.RunID == "" {
		req.RunID = core.NewID()
	}

	verdict, err := o.checkGuardrails(ctx, req)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("errored").Inc()
		o.opts.Logger.Error("run.guardrails.error",
			"thread_id", req.ThreadID, "run_id", req.RunID, "error", err)
		return o.erroredStream(req), nil
	}
	if !verdict.Allowed {
		metrics.GuardrailDenials.Inc()
		metrics.RunsTotal.WithLabelValues("denied").Inc()
		o.opts.Logger.Info("run.denied",
			"thread_id", req.ThreadID, "run_id", req.RunID, "reason", verdict.Reason)
		return o.deniedStream(req, verdict.Reason), nil
	}

	adapter, err := o.adapterFor(req)
	if err != nil {
		return nil, err
	}

	view := core.RequestView{
		ThreadID:        req.ThreadID,
		RunID:           req.RunID,
		Messages:        req.Messages,
		Actions:         core.OfferedActions(req.Actions),
		AgentSession:    req.AgentSession,
		ForwardedParams: req.ForwardedParams,
	}

	b := bus.New(func(opts *bus.Options) {
		opts.Capacity = o.opts.BusCapacity
		opts.PublishTimeout = o.opts.PublishTimeout
		opts.Logger = o.opts.Logger
	})

	stream := &Stream{
		ThreadID: req.ThreadID,
		RunID:    req.RunID,
		events:   b.Subscribe(),
		done:     make(chan struct{}),
	}
	aggCh := b.Subscribe()

	metrics.ActiveRuns.Inc()
	start := time.Now()
	o.opts.Logger.Info("run.start",
		"thread_id", req.ThreadID, "run_id", req.RunID, "provider", adapter.Name())

	var prodErr error
	go func() {
		defer func() {
			if r := recover(); r != nil {
				prodErr = fmt.Errorf("provider panic: %v", r)
				o.opts.Logger.Error("run.provider.panic", "run_id", req.RunID, "panic", r)
				_ = b.Publish(context.Background(),
					core.NewMetaNotice("", core.NoticeError, "provider terminated unexpectedly"))
			}
			b.Close()
		}()

		err := adapter.Run(ctx, view, func(ev core.Event) error {
			return b.Publish(ctx, ev)
		})
		if err == nil {
			return
		}
		prodErr = err
		if ctx.Err() != nil {
			_ = b.Publish(context.Background(),
				core.NewMetaNotice("", core.NoticeAborted, "run cancelled"))
			return
		}
		o.opts.Logger.Error("run.provider.error", "run_id", req.RunID, "error", err)
		_ = b.Publish(context.Background(),
			core.NewMetaNotice("", core.NoticeError, failureReason(err)))
	}()

	go func() {
		agg := aggregate.New()
		for ev := range aggCh {
			agg.Apply(ev)
		}

		status := o.resolveStatus(ctx, prodErr)
		// A message still open when the bus closes never got its End event.
		// On a clean run that is a truncated stream; otherwise the terminal
		// reason carries through.
		reason := status.Reason
		if status.Code == core.ResponseSuccess {
			reason = "stream-truncated"
		}
		agg.Finalize(reason)
		stream.resp = &core.Response{
			ThreadID: req.ThreadID,
			RunID:    req.RunID,
			Status:   status,
			Messages: agg.Messages(),
		}

		metrics.ActiveRuns.Dec()
		metrics.RunsTotal.WithLabelValues(string(status.Code)).Inc()
		metrics.RunDuration.WithLabelValues(adapter.Name()).Observe(time.Since(start).Seconds())
		o.opts.Logger.Info("run.end",
			"thread_id", req.ThreadID, "run_id", req.RunID,
			"status", string(status.Code), "duration", time.Since(start).String())
		close(stream.done)
	}()

	return stream, nil
}

// checkGuardrails runs the gate at most once, only when a gate and a request
// config are both present and there is user text to inspect.
func (o *Orchestrator) checkGuardrails(ctx context.Context, req core.Request) (core.Verdict, error) {
	if o.gate == nil || req.Guardrails == nil {
		return core.Allow(), nil
	}
	lastUser := core.LastUserText(req.Messages)
	if lastUser == "" {
		return core.Allow(), nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, o.opts.GuardrailTimeout)
	defer cancel()
	return o.gate.Check(checkCtx, core.GuardrailsInput{
		LastUserMessage: lastUser,
		History:         req.Messages,
		Config:          *req.Guardrails,
	})
}

// deniedStream resolves a denied run without dispatching a provider. The
// stream still carries the denial text so incremental consumers render it.
func (o *Orchestrator) deniedStream(req core.Request, reason string) *Stream {
	msg := core.NewTextMessage(core.RoleAssistant, reason)
	msg.Status = core.Failed(reason)

	events := make(chan core.Event, 3)
	events <- core.NewTextStart(msg.ID, core.RoleAssistant)
	events <- core.NewTextDelta(msg.ID, reason)
	events <- core.NewTextEnd(msg.ID)
	close(events)

	stream := &Stream{
		ThreadID: req.ThreadID,
		RunID:    req.RunID,
		events:   events,
		done:     make(chan struct{}),
		resp: &core.Response{
			ThreadID: req.ThreadID,
			RunID:    req.RunID,
			Status:   core.ResponseFailure(reason),
			Messages: []core.Message{msg},
		},
	}
	close(stream.done)
	return stream
}

// erroredStream resolves a run whose gate check failed before dispatch. The
// caller sees a failed response with a generic reason; gate internals never
// leak into it.
func (o *Orchestrator) erroredStream(req core.Request) *Stream {
	events := make(chan core.Event)
	close(events)

	stream := &Stream{
		ThreadID: req.ThreadID,
		RunID:    req.RunID,
		events:   events,
		done:     make(chan struct{}),
		resp: &core.Response{
			ThreadID: req.ThreadID,
			RunID:    req.RunID,
			Status:   core.ResponseFailure("internal"),
		},
	}
	close(stream.done)
	return stream
}

func (o *Orchestrator) adapterFor(req core.Request) (core.ProviderAdapter, error) {
	if req.AgentSession != nil {
		if o.agentRun == nil {
			return nil, &core.ValidationError{
				Field: "agent_session", Reason: "no agent-run provider configured"}
		}
		return o.agentRun, nil
	}
	if o.completion == nil {
		return nil, &core.ValidationError{
			Field: "messages", Reason: "no completion provider configured"}
	}
	return o.completion, nil
}

// resolveStatus maps the producer outcome to the run's single terminal status.
func (o *Orchestrator) resolveStatus(ctx context.Context, prodErr error) core.ResponseStatus {
	if ctx.Err() != nil || errors.Is(prodErr, context.Canceled) || errors.Is(prodErr, context.DeadlineExceeded) {
		return core.ResponseAbort()
	}
	if prodErr != nil {
		return core.ResponseFailure(failureReason(prodErr))
	}
	return core.ResponseOK()
}

// failureReason reduces an internal error to a caller-safe reason string.
// Provider internals never leak verbatim.
func failureReason(err error) string {
	var pe *core.ProviderError
	var ve *core.ValidationError
	switch {
	case errors.Is(err, core.ErrCallLimit):
		return "provider call limit exceeded"
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &pe):
		return fmt.Sprintf("provider %s failed", pe.Provider)
	default:
		return "internal provider failure"
	}
}
