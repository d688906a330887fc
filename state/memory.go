// Package state provides StateStore implementations for agent continuation
// state. The in-memory store is the default; the sqlite subpackage persists
// across process restarts.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/runloop-ai/runloop/core"
)

// InMemoryStore keeps agent state in process memory. Suitable for tests and
// single-process deployments without durability requirements.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*core.StateBlob
}

var _ core.StateStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory state store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string]*core.StateBlob)}
}

func stateKey(threadID, agentName string) string {
	return threadID + "\x00" + agentName
}

// Load implements core.StateStore.
func (s *InMemoryStore) Load(_ context.Context, threadID, agentName string) (*core.StateBlob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[stateKey(threadID, agentName)]
	if !ok {
		return nil, nil
	}
	return blob.Clone(), nil
}

// Save implements core.StateStore. The version check and increment happen
// atomically under the store lock.
func (s *InMemoryStore) Save(_ context.Context, blob *core.StateBlob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := stateKey(blob.ThreadID, blob.AgentName)
	existing := s.blobs[key]
	switch {
	case existing == nil && blob.Version != 0:
		return core.ErrStateConflict
	case existing != nil && blob.Version != existing.Version:
		return core.ErrStateConflict
	}

	stored := blob.Clone()
	stored.Version = blob.Version + 1
	stored.UpdatedAt = time.Now().UTC()
	s.blobs[key] = stored

	blob.Version = stored.Version
	blob.UpdatedAt = stored.UpdatedAt
	return nil
}
