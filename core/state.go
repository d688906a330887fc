package core

import (
	"context"
	"time"
)

// StateBlob is persisted, versioned agent continuation state keyed by
// (thread id, agent name). It is mutated only by the owning agent-run
// provider through the StateStore contract.
type StateBlob struct {
	ThreadID  string         `json:"thread_id"`
	AgentName string         `json:"agent_name"`
	State     map[string]any `json:"state"`
	Version   int64          `json:"version"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a copy safe for independent mutation.
func (b *StateBlob) Clone() *StateBlob {
	if b == nil {
		return nil
	}
	clone := *b
	clone.State = make(map[string]any, len(b.State))
	for k, v := range b.State {
		clone.State[k] = v
	}
	return &clone
}

// StateStore persists agent continuation state across runs. Implementations
// must be safe for concurrent use; concurrent writers for the same key are
// serialized by version check: Save with a stale Version fails with
// ErrStateConflict instead of silently overwriting.
type StateStore interface {
	// Load returns the blob for the key, or (nil, nil) when none exists.
	Load(ctx context.Context, threadID, agentName string) (*StateBlob, error)

	// Save commits the blob. Version 0 means "create"; any other version must
	// match the stored version, which Save then increments.
	Save(ctx context.Context, blob *StateBlob) error
}
