// Package sqlite persists agent continuation state in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/runloop-ai/runloop/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS agent_state (
	thread_id  TEXT NOT NULL,
	agent_name TEXT NOT NULL,
	state      JSON NOT NULL,
	version    INTEGER NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (thread_id, agent_name)
);`

// Store is a SQLite-backed core.StateStore. Optimistic concurrency is
// enforced by a versioned UPDATE; a stale version updates zero rows and
// surfaces as core.ErrStateConflict.
type Store struct {
	db *sql.DB
}

var _ core.StateStore = (*Store)(nil)

// New opens (or creates) the database at path and ensures the schema exists.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	// The sqlite driver serializes writes; a single connection avoids
	// SQLITE_BUSY on concurrent savers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create state schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Load implements core.StateStore.
func (s *Store) Load(ctx context.Context, threadID, agentName string) (*core.StateBlob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT state, version, updated_at FROM agent_state WHERE thread_id = ? AND agent_name = ?`,
		threadID, agentName)

	var raw string
	var version int64
	var updatedAt time.Time
	if err := row.Scan(&raw, &version, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load agent state: %w", err)
	}

	blob := &core.StateBlob{
		ThreadID:  threadID,
		AgentName: agentName,
		Version:   version,
		UpdatedAt: updatedAt,
	}
	if err := json.Unmarshal([]byte(raw), &blob.State); err != nil {
		return nil, fmt.Errorf("decode agent state: %w", err)
	}
	return blob, nil
}

// Save implements core.StateStore.
func (s *Store) Save(ctx context.Context, blob *core.StateBlob) error {
	raw, err := json.Marshal(blob.State)
	if err != nil {
		return fmt.Errorf("encode agent state: %w", err)
	}
	now := time.Now().UTC()

	if blob.Version == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO agent_state (thread_id, agent_name, state, version, updated_at)
			 VALUES (?, ?, ?, 1, ?)`,
			blob.ThreadID, blob.AgentName, string(raw), now)
		if err != nil {
			// A unique-constraint failure means the row already exists at a
			// newer version.
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return core.ErrStateConflict
			}
			return fmt.Errorf("save agent state: %w", err)
		}
		blob.Version = 1
		blob.UpdatedAt = now
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_state SET state = ?, version = version + 1, updated_at = ?
		 WHERE thread_id = ? AND agent_name = ? AND version = ?`,
		string(raw), now, blob.ThreadID, blob.AgentName, blob.Version)
	if err != nil {
		return fmt.Errorf("save agent state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save agent state: %w", err)
	}
	if affected == 0 {
		return core.ErrStateConflict
	}
	blob.Version++
	blob.UpdatedAt = now
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
