// Package aggregate reconstructs structured output messages from an event
// sequence. The fold is pure and replayable: the same events always produce
// the same messages, so it serves both the orchestrator (building the final
// Response) and streaming transports (driven event-by-event and queried for
// the current snapshot at any point).
package aggregate

import (
	"fmt"
	"time"

	"github.com/runloop-ai/runloop/core"
)

type entryKind int

const (
	entryText entryKind = iota
	entryAction
	entryAgentState
)

// entry is the in-progress reconstruction of one message.
type entry struct {
	kind    entryKind
	id      string
	parent  string
	created time.Time
	role    core.Role
	status  core.MessageStatus

	// text
	content string

	// action execution
	actionName string
	args       string
	argsClosed bool
	result     *core.ActionResultMessage

	// agent state
	agentName string
	nodeName  string
	running   bool
	state     map[string]any
}

// Aggregator folds events into messages. It maintains an ordered map keyed by
// message id in first-Start order. Not safe for concurrent use; each run
// drains its bus from a single goroutine.
type Aggregator struct {
	order   []string
	entries map[string]*entry
	notices []core.MetaNotice
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{entries: make(map[string]*entry)}
}

// Fold replays a complete event sequence into its message sequence. Calling
// Fold twice on the same sequence yields identical results.
func Fold(events []core.Event) []core.Message {
	a := New()
	for _, ev := range events {
		a.Apply(ev)
	}
	return a.Messages()
}

// Apply feeds one event into the fold. An event that violates the per-message
// ordering invariants is skipped and a synthesized ordering-violation
// MetaNotice is returned (and recorded); a message handle is never silently
// created mid-stream. Apply returns nil for well-ordered events.
func (a *Aggregator) Apply(ev core.Event) *core.MetaNotice {
	switch e := ev.(type) {
	case core.TextStart:
		if _, exists := a.entries[e.MessageID()]; exists {
			return a.violation(e.MessageID(), "duplicate start")
		}
		a.add(&entry{
			kind:    entryText,
			id:      e.MessageID(),
			parent:  e.ParentMessageID(),
			created: e.OccurredAt(),
			role:    e.Role,
			status:  core.InProgress(),
		})

	case core.TextDelta:
		ent, ok := a.open(e.MessageID(), entryText)
		if !ok {
			return a.violation(e.MessageID(), "text delta outside start/end")
		}
		ent.content += e.Text

	case core.TextEnd:
		ent, ok := a.open(e.MessageID(), entryText)
		if !ok {
			return a.violation(e.MessageID(), "text end without open message")
		}
		ent.status = core.Succeeded()

	case core.ActionStart:
		if _, exists := a.entries[e.MessageID()]; exists {
			return a.violation(e.MessageID(), "duplicate start")
		}
		a.add(&entry{
			kind:       entryAction,
			id:         e.MessageID(),
			parent:     e.ParentMessageID(),
			created:    e.OccurredAt(),
			role:       core.RoleTool,
			status:     core.InProgress(),
			actionName: e.ActionName,
		})

	case core.ActionArgsDelta:
		ent, ok := a.actionEntry(e.MessageID())
		if !ok || ent.argsClosed {
			return a.violation(e.MessageID(), "args delta outside start/end")
		}
		ent.args += e.Args

	case core.ActionEnd:
		ent, ok := a.actionEntry(e.MessageID())
		if !ok || ent.argsClosed {
			return a.violation(e.MessageID(), "action end without open execution")
		}
		ent.argsClosed = true
		ent.status = core.Succeeded()

	case core.ActionResult:
		ent, ok := a.actionEntry(e.MessageID())
		if !ok {
			return a.violation(e.MessageID(), "result for unknown execution")
		}
		if !ent.argsClosed {
			return a.violation(e.MessageID(), "result before action end")
		}
		if ent.result != nil {
			return a.violation(e.MessageID(), "duplicate result")
		}
		status := core.Succeeded()
		if e.Error != "" {
			status = core.Failed(e.Error)
			ent.status = core.Failed(e.Error)
		}
		ent.result = &core.ActionResultMessage{
			MessageMeta: core.MessageMeta{
				// Derived deterministically so replays of the same event
				// sequence yield identical messages.
				ID:      e.MessageID() + "-result",
				Created: e.OccurredAt(),
				Role:    core.RoleTool,
				Status:  status,
			},
			ExecutionID: e.MessageID(),
			ActionName:  e.ActionName,
			Result:      e.Result,
			Error:       e.Error,
		}

	case core.AgentStateSnapshot:
		ent, exists := a.entries[e.MessageID()]
		if exists && ent.kind != entryAgentState {
			return a.violation(e.MessageID(), "snapshot for non-agent message")
		}
		if !exists {
			ent = &entry{
				kind:    entryAgentState,
				id:      e.MessageID(),
				created: e.OccurredAt(),
				role:    core.RoleSystem,
			}
			a.add(ent)
		}
		ent.agentName = e.AgentName
		ent.nodeName = e.NodeName
		ent.running = e.Running
		ent.state = e.State
		if e.Running {
			ent.status = core.InProgress()
		} else {
			ent.status = core.Succeeded()
		}

	case core.MetaNotice:
		a.notices = append(a.notices, e)
	}
	return nil
}

// Finalize closes out the fold when the bus has closed. Every message still
// in progress is finalized as failed with the given reason (normally
// "stream-truncated", or "aborted" on cancellation). No in-progress status
// survives into a terminal response.
func (a *Aggregator) Finalize(reason string) {
	for _, id := range a.order {
		ent := a.entries[id]
		if ent.status.Code == core.StatusInProgress {
			ent.status = core.Failed(reason)
			ent.running = false
		}
	}
}

// Messages materializes the current message snapshot in first-Start order.
// An action execution's result message follows it immediately.
func (a *Aggregator) Messages() []core.Message {
	out := make([]core.Message, 0, len(a.order))
	for _, id := range a.order {
		ent := a.entries[id]
		out = append(out, ent.message())
		if ent.result != nil {
			out = append(out, *ent.result)
		}
	}
	return out
}

// Notices returns every MetaNotice observed or synthesized during the fold.
func (a *Aggregator) Notices() []core.MetaNotice {
	notices := make([]core.MetaNotice, len(a.notices))
	copy(notices, a.notices)
	return notices
}

func (a *Aggregator) add(ent *entry) {
	a.entries[ent.id] = ent
	a.order = append(a.order, ent.id)
}

func (a *Aggregator) open(id string, kind entryKind) (*entry, bool) {
	ent, ok := a.entries[id]
	if !ok || ent.kind != kind || ent.status.Code != core.StatusInProgress {
		return nil, false
	}
	return ent, true
}

func (a *Aggregator) actionEntry(id string) (*entry, bool) {
	ent, ok := a.entries[id]
	if !ok || ent.kind != entryAction {
		return nil, false
	}
	return ent, true
}

func (a *Aggregator) violation(id, detail string) *core.MetaNotice {
	notice := core.NewMetaNotice(id, core.NoticeOrderingViolation,
		fmt.Sprintf("message %s: %s", id, detail))
	a.notices = append(a.notices, notice)
	return &notice
}

func (e *entry) message() core.Message {
	meta := core.MessageMeta{ID: e.id, Created: e.created, Role: e.role, Status: e.status}
	switch e.kind {
	case entryText:
		return core.TextMessage{MessageMeta: meta, Content: e.content}
	case entryAction:
		return core.ActionExecutionMessage{MessageMeta: meta, Name: e.actionName, Arguments: e.args}
	default:
		return core.AgentStateMessage{
			MessageMeta: meta,
			AgentName:   e.agentName,
			NodeName:    e.nodeName,
			Running:     e.running,
			State:       e.state,
		}
	}
}
