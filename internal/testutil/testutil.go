// Package testutil provides small helpers shared by package tests.
package testutil

import (
	"sync"

	"github.com/runloop-ai/runloop/core"
)

// EventRecorder is a thread-safe core.EmitFunc sink for provider tests.
type EventRecorder struct {
	mu     sync.Mutex
	events []core.Event
}

// Emit records the event; it never fails.
func (r *EventRecorder) Emit(ev core.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a snapshot of everything recorded so far.
func (r *EventRecorder) Events() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the event kinds in recorded order.
func (r *EventRecorder) Kinds() []core.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]core.EventKind, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Kind()
	}
	return kinds
}

// UserRequest builds a minimal valid request with one user text message.
func UserRequest(text string) core.Request {
	return core.Request{
		Messages: []core.Message{core.NewTextMessage(core.RoleUser, text)},
	}
}

// View converts a request to the provider-facing slice the orchestrator
// would hand to an adapter.
func View(req core.Request) core.RequestView {
	return core.RequestView{
		ThreadID:        req.ThreadID,
		RunID:           req.RunID,
		Messages:        req.Messages,
		Actions:         core.OfferedActions(req.Actions),
		AgentSession:    req.AgentSession,
		ForwardedParams: req.ForwardedParams,
	}
}
