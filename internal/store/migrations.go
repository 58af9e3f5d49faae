package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create discussions and messages",
		SQL: `
			CREATE TABLE discussions (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				title       TEXT NOT NULL DEFAULT '',
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			);

			CREATE TABLE messages (
				id                      INTEGER PRIMARY KEY AUTOINCREMENT,
				discussion_id           INTEGER NOT NULL,
				message_type            INTEGER NOT NULL,
				sender_type             INTEGER NOT NULL,
				sender                  TEXT NOT NULL,
				content                 TEXT NOT NULL,
				metadata                TEXT,
				rank                    INTEGER NOT NULL DEFAULT 0,
				parent_message_id       INTEGER NOT NULL DEFAULT -1,
				binding                 TEXT NOT NULL DEFAULT '',
				model                   TEXT NOT NULL DEFAULT '',
				personality             TEXT NOT NULL DEFAULT '',
				created_at              TEXT NOT NULL,
				started_generating_at   TEXT,
				finished_generating_at  TEXT,
				nb_tokens               INTEGER,
				FOREIGN KEY (discussion_id) REFERENCES discussions(id) ON DELETE CASCADE
			);

			CREATE INDEX idx_messages_discussion ON messages (discussion_id, id);
		`,
	},
	{
		Version: 2,
		Name:    "create message search index with FTS5",
		SQL: `
			CREATE VIRTUAL TABLE messages_fts USING fts5(
				content,
				content='messages',
				content_rowid='id'
			);

			CREATE TRIGGER messages_ai AFTER INSERT ON messages BEGIN
				INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
			END;

			CREATE TRIGGER messages_ad AFTER DELETE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, content)
				VALUES ('delete', old.id, old.content);
			END;

			CREATE TRIGGER messages_au AFTER UPDATE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, content)
				VALUES ('delete', old.id, old.content);
				INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
			END;
		`,
	},
}
