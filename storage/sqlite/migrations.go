package sqlite

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS items (
	id              TEXT PRIMARY KEY,
	subject         TEXT NOT NULL DEFAULT '',
	location        TEXT NOT NULL DEFAULT '',
	busy_status     INTEGER NOT NULL DEFAULT 0,
	reminder_set    INTEGER NOT NULL DEFAULT 0,
	reminder_delta  INTEGER NOT NULL DEFAULT 0,
	all_day         INTEGER NOT NULL DEFAULT 0,
	time_zone       TEXT NOT NULL DEFAULT 'UTC',
	recurring       INTEGER NOT NULL DEFAULT 0,
	recurrence_blob BLOB,
	etag            TEXT NOT NULL,
	modified_ns     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS embedded_messages (
	id              TEXT PRIMARY KEY,
	item_id         TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	replace_time_ns INTEGER NOT NULL,
	start_ns        INTEGER NOT NULL,
	end_ns          INTEGER NOT NULL,
	subject         TEXT NOT NULL DEFAULT '',
	location        TEXT NOT NULL DEFAULT '',
	busy_status     INTEGER NOT NULL DEFAULT 0,
	reminder_set    INTEGER NOT NULL DEFAULT 0,
	reminder_delta  INTEGER NOT NULL DEFAULT 0,
	all_day         INTEGER NOT NULL DEFAULT 0,
	body            TEXT NOT NULL DEFAULT '',
	attendees       TEXT NOT NULL DEFAULT '[]',
	cancelled       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_embedded_messages_item_id ON embedded_messages(item_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
