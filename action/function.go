package action

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/runloop-ai/runloop/core"
)

// FunctionAction exposes a plain Go function as a schema-validated action.
// Arguments are validated against the declared JSON schema before the
// function runs; validation failures surface as *Error{Code: VALIDATION_ERROR}.
// A FunctionAction has no mutable state after construction and is safe for
// concurrent use.
type FunctionAction struct {
	name        string
	description string
	parameters  map[string]any
	resolved    *jsonschema.Resolved
	fn          Handler
}

// NewFunctionAction constructs a FunctionAction from an explicit JSON-schema
// parameter map and an implementation. A nil parameters map skips validation.
//
// Example:
//
//	sum, err := action.NewFunctionAction(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []any{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionAction(name, description string, parameters map[string]any, fn Handler) (*FunctionAction, error) {
	f := &FunctionAction{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
	if parameters != nil {
		raw, err := json.Marshal(parameters)
		if err != nil {
			return nil, fmt.Errorf("marshal parameter schema for %s: %w", name, err)
		}
		schema := &jsonschema.Schema{}
		if err := json.Unmarshal(raw, schema); err != nil {
			return nil, fmt.Errorf("parse parameter schema for %s: %w", name, err)
		}
		resolved, err := schema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("resolve parameter schema for %s: %w", name, err)
		}
		f.resolved = resolved
	}
	return f, nil
}

// Name returns the unique action name.
func (f *FunctionAction) Name() string { return f.name }

// Description returns the description offered to models.
func (f *FunctionAction) Description() string { return f.description }

// Spec returns the action's offering spec (enabled, local execution).
func (f *FunctionAction) Spec() core.ActionSpec {
	return core.ActionSpec{
		Name:         f.name,
		Description:  f.description,
		Parameters:   f.parameters,
		Availability: core.AvailabilityEnabled,
	}
}

// Handler returns the executable handler: schema validation, then the
// wrapped function.
func (f *FunctionAction) Handler() Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		if f.resolved != nil {
			if err := f.resolved.Validate(args); err != nil {
				return nil, &Error{
					Action:  f.name,
					Message: fmt.Sprintf("parameter validation failed: %v", err),
					Code:    CodeValidation,
					Err:     err,
				}
			}
		}
		return f.fn(ctx, args)
	}
}
