package store

type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered schema history. Never edit an applied entry;
// append a new one.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create users",
		SQL: `
			CREATE TABLE users (
				id          TEXT PRIMARY KEY,
				email       TEXT NOT NULL DEFAULT '',
				active      INTEGER NOT NULL DEFAULT 1,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		Version: 2,
		Name:    "create prompt templates",
		SQL: `
			CREATE TABLE prompt_templates (
				key         TEXT PRIMARY KEY,
				content     TEXT NOT NULL,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		Version: 3,
		Name:    "create report log",
		SQL: `
			CREATE TABLE reports (
				id          TEXT PRIMARY KEY,
				user_id     TEXT NOT NULL,
				subject     TEXT NOT NULL,
				via         TEXT NOT NULL,
				filename    TEXT NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_reports_user ON reports (user_id, created_at);
		`,
	},
}
