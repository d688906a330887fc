package agentrun

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/runloop-ai/runloop/core"
)

// Session is an agent runner's handle for one run. It carries the event
// emitter, the mutable continuation state and the action invoker. All
// methods are safe for concurrent use by the runner's goroutines.
//
// Agent-state snapshots share one message id for the whole run, so consumers
// reconstruct a single agent-state message that updates in place.
type Session struct {
	emit       core.EmitFunc
	invoker    ActionInvoker
	specs      map[string]core.ActionSpec
	agentName  string
	stateMsgID string

	mu       sync.Mutex
	nodeName string
	state    map[string]any
}

func newSession(
	emit core.EmitFunc,
	invoker ActionInvoker,
	actions []core.ActionSpec,
	agentName, nodeName string,
	state map[string]any,
) *Session {
	specs := make(map[string]core.ActionSpec, len(actions))
	for _, s := range actions {
		specs[s.Name] = s
	}
	if state == nil {
		state = map[string]any{}
	}
	return &Session{
		emit:       emit,
		invoker:    invoker,
		specs:      specs,
		agentName:  agentName,
		stateMsgID: core.NewID(),
		nodeName:   nodeName,
		state:      state,
	}
}

// EmitText streams a complete assistant text message.
func (s *Session) EmitText(content string) error {
	id := core.NewID()
	if err := s.emit(core.NewTextStart(id, core.RoleAssistant)); err != nil {
		return err
	}
	if err := s.emit(core.NewTextDelta(id, content)); err != nil {
		return err
	}
	return s.emit(core.NewTextEnd(id))
}

// StreamText opens an assistant text message and returns a writer for
// incremental fragments. The caller must Close it before emitting further
// messages.
func (s *Session) StreamText() (*TextStream, error) {
	id := core.NewID()
	if err := s.emit(core.NewTextStart(id, core.RoleAssistant)); err != nil {
		return nil, err
	}
	return &TextStream{emit: s.emit, id: id}, nil
}

// TextStream is an open streamed text message.
type TextStream struct {
	emit   core.EmitFunc
	id     string
	closed bool
}

// Write streams one text fragment.
func (t *TextStream) Write(text string) error {
	if t.closed {
		return fmt.Errorf("text stream already closed")
	}
	return t.emit(core.NewTextDelta(t.id, text))
}

// Close finalizes the message. Close is idempotent.
func (t *TextStream) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.emit(core.NewTextEnd(t.id))
}

// SetState replaces one continuation-state entry.
func (s *Session) SetState(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = value
}

// GetState returns one continuation-state entry.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state[key]
	return v, ok
}

// Snapshot returns a copy of the current continuation state.
func (s *Session) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

// EmitState publishes an agent-state snapshot reflecting the current state
// and node. running=false marks the final snapshot of the run.
func (s *Session) EmitState(nodeName string, running bool) error {
	s.mu.Lock()
	if nodeName != "" {
		s.nodeName = nodeName
	}
	node := s.nodeName
	state := make(map[string]any, len(s.state))
	for k, v := range s.state {
		state[k] = v
	}
	s.mu.Unlock()
	return s.emit(core.NewAgentStateSnapshot(s.stateMsgID, s.agentName, node, running, state))
}

// InvokeAction executes one offered action, streaming the full event
// sequence (start, args, end, result) and returning the serialized result.
// Unknown action names and execution failures still produce a result event
// before the error is returned.
func (s *Session) InvokeAction(ctx context.Context, name string, args map[string]any) (string, error) {
	id := core.NewID()
	if err := s.emit(core.NewActionStart(id, name, s.stateMsgID)); err != nil {
		return "", err
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode action arguments: %w", err)
	}
	if err := s.emit(core.NewActionArgsDelta(id, string(raw))); err != nil {
		return "", err
	}
	if err := s.emit(core.NewActionEnd(id)); err != nil {
		return "", err
	}

	result, callErr := s.call(ctx, name, string(raw))
	if err := s.emit(core.NewActionResult(id, name, result, callErr)); err != nil {
		return "", err
	}
	return result, callErr
}

func (s *Session) call(ctx context.Context, name, rawArgs string) (string, error) {
	spec, ok := s.specs[name]
	if !ok {
		return "", &core.ValidationError{Field: "action", Reason: "unknown action " + name}
	}
	if s.invoker == nil {
		return "", &core.ValidationError{Field: "action", Reason: "no action invoker configured"}
	}
	return s.invoker.Invoke(ctx, spec, rawArgs)
}
