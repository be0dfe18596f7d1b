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
		Name:    "create agent sessions",
		SQL: `
			CREATE TABLE hawk_agent_sessions (
				message_uid       TEXT PRIMARY KEY,
				instruction_id    TEXT NOT NULL UNIQUE,
				user_id           TEXT NOT NULL DEFAULT '',
				session_type      TEXT NOT NULL DEFAULT 'template',
				status            TEXT NOT NULL DEFAULT 'pending',
				template_category TEXT,
				template_idx      INTEGER,
				response_text     TEXT NOT NULL DEFAULT '',
				input_tokens      INTEGER,
				output_tokens     INTEGER,
				total_tokens      INTEGER,
				metadata          TEXT,
				created_at        TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at        TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_sessions_created ON hawk_agent_sessions (created_at);
			CREATE INDEX idx_sessions_category ON hawk_agent_sessions (template_category, template_idx);
		`,
	},
	{
		Version: 2,
		Name:    "create templates",
		SQL: `
			CREATE TABLE templates (
				id                TEXT PRIMARY KEY,
				family_type       TEXT NOT NULL DEFAULT '',
				template_category TEXT NOT NULL,
				prompt_text       TEXT NOT NULL,
				input_fields      TEXT,
				usage_count       INTEGER NOT NULL DEFAULT 0,
				status            TEXT NOT NULL DEFAULT 'active',
				created_at        TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_templates_category ON templates (template_category);
		`,
	},
	{
		Version: 3,
		Name:    "create positions",
		SQL: `
			CREATE TABLE positions (
				id              TEXT PRIMARY KEY,
				entity_id       TEXT,
				currency_code   TEXT NOT NULL,
				position_amount TEXT NOT NULL DEFAULT '0',
				nav_amount      TEXT NOT NULL DEFAULT '0',
				as_of_date      TEXT NOT NULL,
				dq_status       TEXT
			);

			CREATE INDEX idx_positions_currency ON positions (currency_code);
			CREATE INDEX idx_positions_asof ON positions (as_of_date);
		`,
	},
	{
		Version: 4,
		Name:    "create id counters",
		SQL: `
			CREATE TABLE id_counters (
				name TEXT PRIMARY KEY,
				next INTEGER NOT NULL DEFAULT 0
			);
		`,
	},
}
