// Package action implements the action (tool) subsystem: a registry resolving
// action names to executable handlers, an executor applying per-call timeouts
// and consistent error codes, schema-validated function actions, and a client
// for remote action endpoints. The executor never initiates execution on its
// own; provider adapters drive it when the underlying model or agent selects
// an action.
package action

import (
	"context"
	"fmt"
)

// Error codes surfaced by the executor.
const (
	// CodeNotFound marks execution of an unregistered action name.
	CodeNotFound = "NOT_FOUND"
	// CodeTimeout marks a handler that did not complete within its bound.
	CodeTimeout = "TIMEOUT"
	// CodeHandlerError wraps a handler's own failure.
	CodeHandlerError = "HANDLER_ERROR"
	// CodeValidation marks arguments rejected by the action's schema.
	CodeValidation = "VALIDATION_ERROR"
)

// Handler executes one action call with already-decoded arguments. Handlers
// must respect ctx and be safe for concurrent use across requests.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Error represents an action execution failure with a stable code.
type Error struct {
	Action  string `json:"action"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("action error [%s] in %s: %s", e.Code, e.Action, e.Message)
	}
	return fmt.Sprintf("action error in %s: %s", e.Action, e.Message)
}

// Unwrap exposes the wrapped handler error, if any.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates an Error with the given details.
func NewError(action, message, code string) *Error {
	return &Error{Action: action, Message: message, Code: code}
}
