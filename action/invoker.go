package action

import (
	"context"
	"time"

	"github.com/runloop-ai/runloop/core"
)

// Invoker routes one action execution to the local registry or the remote
// endpoint according to the spec's availability, and normalizes the result
// into the serialized form carried by ActionResult events. Providers hold an
// Invoker per run; it owns no state beyond its references.
type Invoker struct {
	registry *Registry
	endpoint *EndpointClient
	timeout  time.Duration
}

// NewInvoker constructs an Invoker. endpoint may be nil when no remote
// actions are configured; invoking a remote spec then fails with NOT_FOUND.
func NewInvoker(registry *Registry, endpoint *EndpointClient, timeout time.Duration) *Invoker {
	return &Invoker{registry: registry, endpoint: endpoint, timeout: timeout}
}

// Invoke decodes the serialized arguments, executes the action and returns
// the serialized result. All failure modes come back as *Error values.
func (i *Invoker) Invoke(ctx context.Context, spec core.ActionSpec, rawArgs string) (string, error) {
	args, err := DecodeArgs(rawArgs)
	if err != nil {
		return "", &Error{Action: spec.Name, Message: err.Error(), Code: CodeValidation, Err: err}
	}

	var result any
	if spec.Availability == core.AvailabilityRemote {
		if i.endpoint == nil {
			return "", NewError(spec.Name, "no remote action endpoint configured", CodeNotFound)
		}
		result, err = i.endpoint.Call(ctx, spec.Name, args)
	} else {
		result, err = i.registry.Execute(ctx, spec.Name, args, i.timeout)
	}
	if err != nil {
		return "", err
	}

	encoded, err := EncodeResult(result)
	if err != nil {
		return "", &Error{Action: spec.Name, Message: err.Error(), Code: CodeHandlerError, Err: err}
	}
	return encoded, nil
}
