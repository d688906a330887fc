// Package runloop is a runtime orchestration and event streaming engine for
// LLM and agent workloads. It turns one inbound request into a guarded,
// observable run: a guardrails gate screens the input, a provider adapter
// (LLM completion or agent run) streams progress events over a bounded bus,
// and an aggregator folds the stream back into ordinary messages.
package runloop

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/runloop-ai/runloop/action"
	"github.com/runloop-ai/runloop/config"
	"github.com/runloop-ai/runloop/core"
	"github.com/runloop-ai/runloop/guardrails"
	"github.com/runloop-ai/runloop/logging"
	"github.com/runloop-ai/runloop/model"
	"github.com/runloop-ai/runloop/orchestrator"
	"github.com/runloop-ai/runloop/provider/agentrun"
	"github.com/runloop-ai/runloop/provider/completion"
	"github.com/runloop-ai/runloop/state"
	"github.com/runloop-ai/runloop/state/sqlite"
)

// Options configure a Runtime. Zero values pick working defaults: in-memory
// state, a deny-list gate and configuration from config.Default().
type Options struct {
	// Model backs the LLM-completion provider. Requests without an agent
	// session need it.
	Model model.Model
	// Instructions is system guidance prepended to every completion call.
	Instructions string
	// Agents are registered for agent-run sessions.
	Agents []agentrun.AgentRunner
	// Registry holds locally executable actions. A fresh registry is created
	// when nil.
	Registry *action.Registry
	// Endpoint serves remote actions. Optional.
	Endpoint *action.EndpointClient
	// StateStore persists agent continuation state. Defaults per
	// Config.StateBackend when nil.
	StateStore core.StateStore
	// Gate is the guardrails policy check. Defaults to the deny-list gate.
	Gate core.GuardrailsGate
	// Config supplies runtime tuning. config.Default() when nil.
	Config *config.Config
	// Logger receives structured runtime logs. Built from Config when nil.
	Logger logging.Logger
}

// Runtime is the engine facade. It wires the orchestrator, providers,
// actions and state together and tracks live runs for cancellation.
type Runtime struct {
	orch     *orchestrator.Orchestrator
	agents   *agentrun.Registry
	registry *action.Registry
	store    core.StateStore
	logger   logging.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// New assembles a Runtime from the given options.
func New(optFns ...func(o *Options)) (*Runtime, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, os.Stderr)
	}
	registry := opts.Registry
	if registry == nil {
		registry = action.NewRegistry(func(o *action.RegistryOptions) {
			o.DefaultTimeout = cfg.ActionTimeout
			o.Logger = logger
		})
	}

	store := opts.StateStore
	if store == nil {
		switch cfg.StateBackend {
		case "sqlite":
			s, err := sqlite.New(cfg.StatePath)
			if err != nil {
				return nil, fmt.Errorf("open state store: %w", err)
			}
			store = s
		default:
			store = state.NewInMemoryStore()
		}
	}

	gate := opts.Gate
	if gate == nil {
		gate = guardrails.NewDenyListGate()
	}

	invoker := action.NewInvoker(registry, opts.Endpoint, cfg.ActionTimeout)

	var completionAdapter core.ProviderAdapter
	if opts.Model != nil {
		completionAdapter = completion.New(opts.Model, invoker, func(o *completion.Options) {
			o.Instructions = opts.Instructions
			o.MaxModelCalls = cfg.MaxModelCalls
			o.Logger = logger
		})
	}

	agents := agentrun.NewRegistry()
	for _, runner := range opts.Agents {
		if err := agents.Register(runner); err != nil {
			return nil, err
		}
	}
	agentAdapter := agentrun.New(agents, store, invoker, func(o *agentrun.Options) {
		o.Logger = logger
	})

	orch := orchestrator.New(completionAdapter, agentAdapter, gate, func(o *orchestrator.Options) {
		o.BusCapacity = cfg.BufferSize
		o.PublishTimeout = cfg.PublishTimeout
		o.GuardrailTimeout = cfg.GuardrailTimeout
		o.Logger = logger
	})

	return &Runtime{
		orch:     orch,
		agents:   agents,
		registry: registry,
		store:    store,
		logger:   logger,
		active:   make(map[string]context.CancelFunc),
	}, nil
}

// Run executes the request to completion and returns the aggregated response.
func (rt *Runtime) Run(ctx context.Context, req core.Request) (*core.Response, error) {
	runCtx, runID := rt.track(ctx, &req)
	defer rt.release(runID)
	return rt.orch.Run(runCtx, req)
}

// Stream starts the request and returns the live run for incremental
// consumption. The run stays cancellable until Wait resolves.
func (rt *Runtime) Stream(ctx context.Context, req core.Request) (*orchestrator.Stream, error) {
	runCtx, runID := rt.track(ctx, &req)
	stream, err := rt.orch.Stream(runCtx, req)
	if err != nil {
		rt.release(runID)
		return nil, err
	}
	go func() {
		stream.Wait()
		rt.release(runID)
	}()
	return stream, nil
}

// Cancel aborts the live run with the given id. It reports whether a run was
// found; the run itself resolves to an aborted response through its stream.
func (rt *Runtime) Cancel(runID string) bool {
	rt.mu.Lock()
	cancel, ok := rt.active[runID]
	rt.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// RegisterAction adds a local action handler under the given name.
func (rt *Runtime) RegisterAction(name string, h action.Handler) error {
	return rt.registry.Register(name, h)
}

// RegisterFunction adds a schema-validated local action.
func (rt *Runtime) RegisterFunction(f *action.FunctionAction) error {
	return rt.registry.RegisterFunction(f)
}

// ListAgents returns discovery metadata for every registered agent.
func (rt *Runtime) ListAgents() []core.AgentDescriptor {
	return rt.agents.Descriptors()
}

// ListActions returns the specs of all locally registered actions.
func (rt *Runtime) ListActions() []core.ActionSpec {
	return rt.registry.Specs()
}

// Close releases runtime resources, cancelling any live runs and closing a
// closable state store.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	for _, cancel := range rt.active {
		cancel()
	}
	rt.active = make(map[string]context.CancelFunc)
	rt.mu.Unlock()

	if closer, ok := rt.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// track assigns the run id up front so cancellation works from the moment
// the request is accepted, and derives the per-run context.
func (rt *Runtime) track(ctx context.Context, req *core.Request) (context.Context, string) {
	if req.RunID == "" {
		req.RunID = core.NewID()
	}
	runCtx, cancel := context.WithCancel(ctx)
	rt.mu.Lock()
	rt.active[req.RunID] = cancel
	rt.mu.Unlock()
	return runCtx, req.RunID
}

func (rt *Runtime) release(runID string) {
	rt.mu.Lock()
	cancel, ok := rt.active[runID]
	delete(rt.active, runID)
	rt.mu.Unlock()
	if ok {
		cancel()
	}
}
