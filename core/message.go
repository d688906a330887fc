package core

import "time"

// Role identifies the conversational author of a message.
type Role string

const (
	// RoleUser marks caller-authored input.
	RoleUser Role = "user"
	// RoleAssistant marks model/agent output.
	RoleAssistant Role = "assistant"
	// RoleSystem marks system instructions and agent-state messages.
	RoleSystem Role = "system"
	// RoleTool marks action execution and result messages.
	RoleTool Role = "tool"
	// RoleDeveloper marks developer-supplied instructions.
	RoleDeveloper Role = "developer"
)

// StatusCode enumerates message lifecycle states.
type StatusCode string

const (
	// StatusInProgress marks a message still being produced.
	StatusInProgress StatusCode = "in_progress"
	// StatusSuccess marks a finalized, complete message.
	StatusSuccess StatusCode = "success"
	// StatusFailed marks a message finalized by an error; Reason says why.
	StatusFailed StatusCode = "failed"
)

// MessageStatus is the lifecycle state of a message plus an optional failure reason.
type MessageStatus struct {
	Code   StatusCode `json:"code"`
	Reason string     `json:"reason,omitempty"`
}

// InProgress returns the in-progress status.
func InProgress() MessageStatus { return MessageStatus{Code: StatusInProgress} }

// Succeeded returns the success status.
func Succeeded() MessageStatus { return MessageStatus{Code: StatusSuccess} }

// Failed returns a failed status carrying the given reason.
func Failed(reason string) MessageStatus {
	return MessageStatus{Code: StatusFailed, Reason: reason}
}

// Message is a closed union over the conversation message variants. The same
// union describes caller-supplied input (Request.Messages, normally with
// Status success) and aggregator-built output (Response.Messages). Output
// messages are built exclusively by the aggregate package.
type Message interface {
	// Meta returns the shared id/created/role/status fields.
	Meta() MessageMeta
	isMessage()
}

// MessageMeta carries the fields common to every message variant. Concrete
// variants embed it by value.
type MessageMeta struct {
	ID      string        `json:"id"`
	Created time.Time     `json:"created_at"`
	Role    Role          `json:"role"`
	Status  MessageStatus `json:"status"`
}

// Meta implements Message.
func (m MessageMeta) Meta() MessageMeta { return m }

func (MessageMeta) isMessage() {}

// TextMessage is plain conversational text.
type TextMessage struct {
	MessageMeta
	Content string `json:"content"`
}

// ActionExecutionMessage records a named action invocation and its serialized
// arguments as streamed by the producer.
type ActionExecutionMessage struct {
	MessageMeta
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ActionResultMessage records the outcome of a completed action execution.
// ExecutionID references the ActionExecutionMessage it resolves. Exactly one
// of Result or Error is populated.
type ActionResultMessage struct {
	MessageMeta
	ExecutionID string `json:"execution_id"`
	ActionName  string `json:"action_name"`
	Result      string `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
}

// AgentStateMessage is a snapshot of a running agent's progress.
type AgentStateMessage struct {
	MessageMeta
	AgentName string         `json:"agent_name"`
	NodeName  string         `json:"node_name,omitempty"`
	Running   bool           `json:"running"`
	State     map[string]any `json:"state,omitempty"`
}

// ImageMessage is a caller-supplied inline image (base64 payload).
type ImageMessage struct {
	MessageMeta
	Format string `json:"format"`
	Bytes  string `json:"bytes"`
}

// NewTextMessage builds a finalized text input message.
func NewTextMessage(role Role, content string) TextMessage {
	return TextMessage{
		MessageMeta: MessageMeta{
			ID:      NewID(),
			Created: time.Now().UTC(),
			Role:    role,
			Status:  Succeeded(),
		},
		Content: content,
	}
}

// NewImageMessage builds a finalized image input message.
func NewImageMessage(role Role, format, bytes string) ImageMessage {
	return ImageMessage{
		MessageMeta: MessageMeta{
			ID:      NewID(),
			Created: time.Now().UTC(),
			Role:    role,
			Status:  Succeeded(),
		},
		Format: format,
		Bytes:  bytes,
	}
}

// LastUserText returns the content of the most recent user-authored text
// message, or "" when none exists. The guardrails gate checks this value.
func LastUserText(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		tm, ok := messages[i].(TextMessage)
		if !ok {
			continue
		}
		if tm.Role == RoleUser {
			return tm.Content
		}
	}
	return ""
}
