package postgres

import "fmt"

// schema returns the idempotent DDL for the postgres backend. The embedding
// column is a pgvector type, so the vector extension must exist first.
func schema(dimension int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	text       TEXT NOT NULL,
	hash       TEXT NOT NULL,
	embedding  vector(%d) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_memories_owner_hash ON memories(owner_id, hash);

CREATE TABLE IF NOT EXISTS memory_history (
	id         TEXT PRIMARY KEY,
	memory_id  TEXT NOT NULL,
	owner_id   TEXT NOT NULL,
	prev_value TEXT,
	new_value  TEXT,
	event      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_history_memory ON memory_history(memory_id);
CREATE INDEX IF NOT EXISTS idx_history_owner ON memory_history(owner_id);
`, dimension)
}
