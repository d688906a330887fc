package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runloop-ai/runloop/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	blob, err := s.Load(ctx, "t1", "agent")
	require.NoError(t, err)
	assert.Nil(t, blob)

	saved := &core.StateBlob{
		ThreadID:  "t1",
		AgentName: "agent",
		State:     map[string]any{"visits": float64(1), "node": "plan"},
	}
	require.NoError(t, s.Save(ctx, saved))
	assert.Equal(t, int64(1), saved.Version)

	loaded, err := s.Load(ctx, "t1", "agent")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Equal(t, float64(1), loaded.State["visits"])
	assert.Equal(t, "plan", loaded.State["node"])
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestStore_VersionedUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	blob := &core.StateBlob{ThreadID: "t1", AgentName: "agent", State: map[string]any{"n": float64(1)}}
	require.NoError(t, s.Save(ctx, blob))

	blob.State["n"] = float64(2)
	require.NoError(t, s.Save(ctx, blob))
	assert.Equal(t, int64(2), blob.Version)

	loaded, err := s.Load(ctx, "t1", "agent")
	require.NoError(t, err)
	assert.Equal(t, float64(2), loaded.State["n"])
}

func TestStore_Conflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &core.StateBlob{
		ThreadID: "t1", AgentName: "agent", State: map[string]any{}}))

	create := &core.StateBlob{ThreadID: "t1", AgentName: "agent", State: map[string]any{}}
	err := s.Save(ctx, create)
	assert.True(t, errors.Is(err, core.ErrStateConflict), "create against existing row must conflict")

	stale := &core.StateBlob{ThreadID: "t1", AgentName: "agent", State: map[string]any{}, Version: 7}
	err = s.Save(ctx, stale)
	assert.True(t, errors.Is(err, core.ErrStateConflict))
}

func TestStore_KeysAreIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &core.StateBlob{
		ThreadID: "t1", AgentName: "a", State: map[string]any{"who": "a"}}))
	require.NoError(t, s.Save(ctx, &core.StateBlob{
		ThreadID: "t1", AgentName: "b", State: map[string]any{"who": "b"}}))
	require.NoError(t, s.Save(ctx, &core.StateBlob{
		ThreadID: "t2", AgentName: "a", State: map[string]any{"who": "t2a"}}))

	loaded, err := s.Load(ctx, "t1", "b")
	require.NoError(t, err)
	assert.Equal(t, "b", loaded.State["who"])

	loaded, err = s.Load(ctx, "t2", "a")
	require.NoError(t, err)
	assert.Equal(t, "t2a", loaded.State["who"])
}
