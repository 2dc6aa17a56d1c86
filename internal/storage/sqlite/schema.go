package sqlite

// Schema is the embedded schema for the sqlite backend. CREATE IF NOT EXISTS
// keeps it idempotent, so it runs on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	text       TEXT NOT NULL,
	hash       TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP
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
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_memory ON memory_history(memory_id);
CREATE INDEX IF NOT EXISTS idx_history_owner ON memory_history(owner_id);
`
