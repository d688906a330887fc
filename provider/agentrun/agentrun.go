// Package agentrun implements the agent-run provider adapter. It hosts
// registered agent runners, loads and saves their continuation state around
// each run, and surfaces agent progress as agent-state snapshot events.
package agentrun

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/runloop-ai/runloop/core"
	"github.com/runloop-ai/runloop/logging"
	"github.com/runloop-ai/runloop/metrics"
)

// ActionInvoker executes one action call and returns the serialized result.
// *action.Invoker satisfies it.
type ActionInvoker interface {
	Invoke(ctx context.Context, spec core.ActionSpec, rawArgs string) (string, error)
}

// RunInput is the request slice handed to an agent runner for one run.
// Continuation state loaded for (thread, agent) is exposed on the Session;
// mutations made through the session are persisted when the run ends.
type RunInput struct {
	ThreadID string
	RunID    string
	NodeName string
	Messages []core.Message
	Actions  []core.ActionSpec
	Params   map[string]any
}

// AgentRunner is a pluggable agent implementation. Runners stream progress
// through the session and return when the run is complete; returned errors
// terminate the run.
type AgentRunner interface {
	// Describe returns discovery metadata for this agent.
	Describe() core.AgentDescriptor

	// Run executes one turn of the agent.
	Run(ctx context.Context, input RunInput, session *Session) error
}

// Registry holds the agents available for agent-run sessions.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]AgentRunner
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]AgentRunner)}
}

// Register adds a runner under its descriptor name. Registering a duplicate
// name fails.
func (r *Registry) Register(runner AgentRunner) error {
	name := runner.Describe().Name
	if name == "" {
		return fmt.Errorf("agent name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runners[name]; exists {
		return fmt.Errorf("agent %q already registered", name)
	}
	r.runners[name] = runner
	return nil
}

// Lookup returns the runner registered under name.
func (r *Registry) Lookup(name string) (AgentRunner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[name]
	return runner, ok
}

// Descriptors returns discovery metadata for all registered agents, sorted
// by name.
func (r *Registry) Descriptors() []core.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.AgentDescriptor, 0, len(r.runners))
	for _, runner := range r.runners {
		out = append(out, runner.Describe())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Options configure the agent-run adapter.
type Options struct {
	Logger logging.Logger
}

// Adapter routes agent-run requests to registered runners. It is safe for
// concurrent use; per-run mutable state lives in the Session.
type Adapter struct {
	registry *Registry
	store    core.StateStore
	invoker  ActionInvoker
	opts     Options
}

var _ core.ProviderAdapter = (*Adapter)(nil)

// New creates an agent-run adapter. store must be non-nil; invoker may be
// nil when no request offers actions.
func New(registry *Registry, store core.StateStore, invoker ActionInvoker, optFns ...func(o *Options)) *Adapter {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Adapter{registry: registry, store: store, invoker: invoker, opts: opts}
}

// Name implements core.ProviderAdapter.
func (a *Adapter) Name() string { return "agent-run" }

// Run implements core.ProviderAdapter. State is loaded before the runner
// starts and committed after it returns, including on runner failure so that
// partial progress survives.
func (a *Adapter) Run(ctx context.Context, view core.RequestView, emit core.EmitFunc) error {
	sess := view.AgentSession
	if sess == nil {
		return &core.ValidationError{Field: "agent_session", Reason: "agent session input is required"}
	}
	runner, ok := a.registry.Lookup(sess.AgentName)
	if !ok {
		return &core.ValidationError{
			Field:  "agent_session.agent_name",
			Reason: fmt.Sprintf("unknown agent %q", sess.AgentName),
		}
	}

	threadID := view.ThreadID
	if sess.ThreadID != "" {
		threadID = sess.ThreadID
	}
	blob, err := a.store.Load(ctx, threadID, sess.AgentName)
	if err != nil {
		return fmt.Errorf("load agent state: %w", err)
	}
	if blob == nil {
		blob = &core.StateBlob{ThreadID: threadID, AgentName: sess.AgentName, State: map[string]any{}}
	}

	session := newSession(emit, a.invoker, view.Actions, sess.AgentName, sess.NodeName, blob.State)
	if err := session.EmitState(sess.NodeName, true); err != nil {
		return err
	}

	metrics.ProviderCalls.WithLabelValues(a.Name(), "started").Inc()
	runErr := runner.Run(ctx, RunInput{
		ThreadID: threadID,
		RunID:    view.RunID,
		NodeName: sess.NodeName,
		Messages: view.Messages,
		Actions:  view.Actions,
		Params:   view.ForwardedParams,
	}, session)

	// Final snapshot plus state commit happen regardless of the run outcome.
	if err := session.EmitState("", false); err != nil && runErr == nil {
		runErr = err
	}
	if err := a.saveState(ctx, blob, session.Snapshot()); err != nil {
		a.opts.Logger.Error("agent state save failed",
			"thread", threadID, "agent", sess.AgentName, "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		metrics.ProviderCalls.WithLabelValues(a.Name(), "failed").Inc()
		return &core.ProviderError{Provider: a.Name(), Err: runErr}
	}
	metrics.ProviderCalls.WithLabelValues(a.Name(), "completed").Inc()
	return nil
}

// saveState commits the run's final state at the loaded version. A conflict
// means another run for the same key committed first; reload and retry once
// before giving up.
func (a *Adapter) saveState(ctx context.Context, blob *core.StateBlob, state map[string]any) error {
	blob.State = state
	blob.UpdatedAt = time.Now().UTC()
	err := a.store.Save(ctx, blob)
	if err == nil || !errors.Is(err, core.ErrStateConflict) {
		return err
	}
	current, loadErr := a.store.Load(ctx, blob.ThreadID, blob.AgentName)
	if loadErr != nil {
		return loadErr
	}
	if current != nil {
		blob.Version = current.Version
	}
	return a.store.Save(ctx, blob)
}
