package core

import "time"

// EventKind discriminates the members of the Event union.
type EventKind string

const (
	// KindTextStart opens a streamed text message.
	KindTextStart EventKind = "text_start"
	// KindTextDelta appends a content fragment to an open text message.
	KindTextDelta EventKind = "text_delta"
	// KindTextEnd closes a streamed text message.
	KindTextEnd EventKind = "text_end"
	// KindActionStart opens an action execution.
	KindActionStart EventKind = "action_start"
	// KindActionArgsDelta appends an argument fragment to an open action execution.
	KindActionArgsDelta EventKind = "action_args_delta"
	// KindActionEnd closes the argument stream of an action execution.
	KindActionEnd EventKind = "action_end"
	// KindActionResult carries the outcome of a completed action execution.
	KindActionResult EventKind = "action_result"
	// KindAgentStateSnapshot carries a progress snapshot of a running agent.
	KindAgentStateSnapshot EventKind = "agent_state_snapshot"
	// KindMetaNotice carries out-of-band runtime signals (errors, aborts, drops).
	KindMetaNotice EventKind = "meta_notice"
)

// Notice values carried by MetaNotice events.
const (
	NoticeBackpressureDrop  = "backpressure-drop"
	NoticeError             = "error"
	NoticeAborted           = "aborted"
	NoticeOrderingViolation = "ordering-violation"
)

// Event is the atomic unit of streamed progress emitted by a producer
// (a provider adapter or the action executor). Events are immutable after
// emission. The union is closed: only types in this package implement it.
//
// Invariants producers must uphold per message id:
//   - exactly one *Start, followed by any number of matching *Delta events,
//     followed by exactly one terminal event (*End, then ActionResult for
//     action executions)
//   - the message id is assigned once, at *Start time
//   - ActionResult is emitted only after the matching ActionEnd
type Event interface {
	Kind() EventKind
	MessageID() string
	OccurredAt() time.Time
	isEvent()
}

// Header carries the correlation fields shared by every event. ID is the
// message the event belongs to; Parent optionally links a derived message
// (e.g. an action execution spawned while streaming text) to its origin.
type Header struct {
	ID        string    `json:"message_id"`
	Parent    string    `json:"parent_message_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHeader stamps a header for the given message id.
func NewHeader(messageID string) Header {
	return Header{ID: messageID, Timestamp: time.Now().UTC()}
}

// MessageID returns the id of the message this event belongs to.
func (h Header) MessageID() string { return h.ID }

// ParentMessageID returns the originating message id, if any.
func (h Header) ParentMessageID() string { return h.Parent }

// OccurredAt returns the producer-side emission timestamp.
func (h Header) OccurredAt() time.Time { return h.Timestamp }

func (Header) isEvent() {}

// TextStart opens a streamed text message authored by Role.
type TextStart struct {
	Header
	Role Role `json:"role"`
}

// Kind implements Event.
func (TextStart) Kind() EventKind { return KindTextStart }

// TextDelta appends a fragment to the text message opened by the matching TextStart.
type TextDelta struct {
	Header
	Text string `json:"text"`
}

// Kind implements Event.
func (TextDelta) Kind() EventKind { return KindTextDelta }

// TextEnd closes a streamed text message.
type TextEnd struct {
	Header
}

// Kind implements Event.
func (TextEnd) Kind() EventKind { return KindTextEnd }

// ActionStart opens an action execution. ActionName is fixed at start time;
// arguments stream separately as ActionArgsDelta fragments.
type ActionStart struct {
	Header
	ActionName string `json:"action_name"`
}

// Kind implements Event.
func (ActionStart) Kind() EventKind { return KindActionStart }

// ActionArgsDelta appends a serialized-argument fragment to an open action execution.
type ActionArgsDelta struct {
	Header
	Args string `json:"args"`
}

// Kind implements Event.
func (ActionArgsDelta) Kind() EventKind { return KindActionArgsDelta }

// ActionEnd closes the argument stream of an action execution. The execution
// outcome follows as a separate ActionResult event.
type ActionEnd struct {
	Header
}

// Kind implements Event.
func (ActionEnd) Kind() EventKind { return KindActionEnd }

// ActionResult carries the outcome of the action execution identified by the
// header's message id. Exactly one of Result or Error is populated.
type ActionResult struct {
	Header
	ActionName string `json:"action_name"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Kind implements Event.
func (ActionResult) Kind() EventKind { return KindActionResult }

// AgentStateSnapshot carries a progress snapshot of a running agent. Repeated
// snapshots for the same message id update the reconstructed AgentStateMessage
// in place; Running=false marks the final snapshot of a run.
type AgentStateSnapshot struct {
	Header
	AgentName string         `json:"agent_name"`
	NodeName  string         `json:"node_name,omitempty"`
	Running   bool           `json:"running"`
	State     map[string]any `json:"state,omitempty"`
}

// Kind implements Event.
func (AgentStateSnapshot) Kind() EventKind { return KindAgentStateSnapshot }

// MetaNotice carries an out-of-band runtime signal. Notice is one of the
// Notice* constants; Detail is free-form diagnostic text. MetaNotice events
// never create or mutate messages.
type MetaNotice struct {
	Header
	Notice string `json:"notice"`
	Detail string `json:"detail,omitempty"`
}

// Kind implements Event.
func (MetaNotice) Kind() EventKind { return KindMetaNotice }

// NewTextStart opens a new text message and returns the start event.
func NewTextStart(messageID string, role Role) TextStart {
	return TextStart{Header: NewHeader(messageID), Role: role}
}

// NewTextDelta appends text to an open message.
func NewTextDelta(messageID, text string) TextDelta {
	return TextDelta{Header: NewHeader(messageID), Text: text}
}

// NewTextEnd closes an open text message.
func NewTextEnd(messageID string) TextEnd {
	return TextEnd{Header: NewHeader(messageID)}
}

// NewActionStart opens an action execution, optionally linked to the message
// that triggered it.
func NewActionStart(messageID, actionName, parentMessageID string) ActionStart {
	h := NewHeader(messageID)
	h.Parent = parentMessageID
	return ActionStart{Header: h, ActionName: actionName}
}

// NewActionArgsDelta appends a serialized-argument fragment.
func NewActionArgsDelta(messageID, args string) ActionArgsDelta {
	return ActionArgsDelta{Header: NewHeader(messageID), Args: args}
}

// NewActionEnd closes the argument stream of an action execution.
func NewActionEnd(messageID string) ActionEnd {
	return ActionEnd{Header: NewHeader(messageID)}
}

// NewActionResult records the outcome of an action execution. A non-nil err
// takes precedence over result.
func NewActionResult(messageID, actionName, result string, err error) ActionResult {
	ev := ActionResult{Header: NewHeader(messageID), ActionName: actionName}
	if err != nil {
		ev.Error = err.Error()
		return ev
	}
	ev.Result = result
	return ev
}

// NewAgentStateSnapshot records agent progress for the given message id.
func NewAgentStateSnapshot(messageID, agentName, nodeName string, running bool, state map[string]any) AgentStateSnapshot {
	return AgentStateSnapshot{
		Header:    NewHeader(messageID),
		AgentName: agentName,
		NodeName:  nodeName,
		Running:   running,
		State:     state,
	}
}

// NewMetaNotice creates an out-of-band signal event. messageID may be empty
// when the notice is not tied to a particular message.
func NewMetaNotice(messageID, notice, detail string) MetaNotice {
	return MetaNotice{Header: NewHeader(messageID), Notice: notice, Detail: detail}
}
