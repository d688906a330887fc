package action

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/runloop-ai/runloop/core"
	"github.com/runloop-ai/runloop/logging"
	"github.com/runloop-ai/runloop/metrics"
)

// DefaultTimeout bounds an action execution when the caller does not supply
// its own bound.
const DefaultTimeout = 30 * time.Second

// RegistryOptions configure a Registry.
type RegistryOptions struct {
	// DefaultTimeout applies when Execute is called with timeout <= 0.
	DefaultTimeout time.Duration
	// Logger records execution outcomes.
	Logger logging.Logger
}

// Registry resolves action names to handlers and executes them with a
// per-call timeout. It is shared across concurrent requests: read-mostly
// after startup, safe for concurrent Execute calls, and each call's timeout
// is scoped to that call.
type Registry struct {
	mu             sync.RWMutex
	handlers       map[string]Handler
	specs          map[string]core.ActionSpec
	defaultTimeout time.Duration
	logger         logging.Logger
}

// NewRegistry constructs an empty registry with optional overrides.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		DefaultTimeout: DefaultTimeout,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		handlers:       make(map[string]Handler),
		specs:          make(map[string]core.ActionSpec),
		defaultTimeout: opts.DefaultTimeout,
		logger:         opts.Logger,
	}
}

// Register makes a handler available under name. Registering a duplicate
// name fails so concurrent requests never race over redefinitions.
func (r *Registry) Register(name string, h Handler) error {
	return r.register(core.ActionSpec{Name: name, Availability: core.AvailabilityEnabled}, h)
}

// RegisterFunction registers a schema-validated function action together
// with its spec.
func (r *Registry) RegisterFunction(f *FunctionAction) error {
	return r.register(f.Spec(), f.Handler())
}

func (r *Registry) register(spec core.ActionSpec, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[spec.Name]; exists {
		return fmt.Errorf("action %q is already registered", spec.Name)
	}
	r.handlers[spec.Name] = h
	r.specs[spec.Name] = spec
	return nil
}

// Specs returns the specs of every registered action. Callers use this as
// the default action set for requests that do not supply their own.
func (r *Registry) Specs() []core.ActionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]core.ActionSpec, 0, len(r.specs))
	for _, s := range r.specs {
		specs = append(specs, s)
	}
	return specs
}

// Lookup reports whether name is registered.
func (r *Registry) Lookup(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Execute resolves name and runs its handler with the given timeout
// (<= 0 uses the registry default). Failure modes:
//   - *Error{Code: NOT_FOUND} when name is unregistered
//   - *Error{Code: TIMEOUT} when the handler exceeds the bound
//   - *Error{Code: HANDLER_ERROR} wrapping the handler's failure or panic
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, timeout time.Duration) (any, error) {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		metrics.ActionCalls.WithLabelValues(name, "not_found").Inc()
		return nil, NewError(name, "action is not registered", CodeNotFound)
	}

	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	start := time.Now()
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: &Error{
					Action:  name,
					Message: fmt.Sprintf("handler panic: %v", rec),
					Code:    CodeHandlerError,
				}}
				r.logger.Error("action.execute.panic", "action", name, "recover", rec, "stack", string(debug.Stack()))
			}
		}()
		result, err := handler(execCtx, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-execCtx.Done():
		// Covers both the per-call timeout and caller cancellation; the
		// handler goroutine exits on its own once it observes execCtx.
		metrics.ActionCalls.WithLabelValues(name, "timeout").Inc()
		r.logger.Warn("action.execute.timeout", "action", name, "timeout", timeout.String())
		return nil, &Error{
			Action:  name,
			Message: fmt.Sprintf("did not complete within %s", timeout),
			Code:    CodeTimeout,
			Err:     execCtx.Err(),
		}
	case out := <-done:
		dur := time.Since(start)
		if out.err != nil {
			metrics.ActionCalls.WithLabelValues(name, "error").Inc()
			r.logger.Error("action.execute.error", "action", name, "error", out.err.Error(), "duration_ms", dur.Milliseconds())
			if actErr, ok := out.err.(*Error); ok {
				return nil, actErr
			}
			return nil, &Error{Action: name, Message: out.err.Error(), Code: CodeHandlerError, Err: out.err}
		}
		metrics.ActionCalls.WithLabelValues(name, "success").Inc()
		r.logger.Info("action.execute.success", "action", name, "duration_ms", dur.Milliseconds())
		return out.result, nil
	}
}

// DecodeArgs parses a serialized JSON argument payload as streamed by a
// model. An empty payload decodes to an empty map.
func DecodeArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("decode action arguments: %w", err)
	}
	return args, nil
}

// EncodeResult serializes a handler result for the ActionResult event payload.
func EncodeResult(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode action result: %w", err)
	}
	return string(raw), nil
}
