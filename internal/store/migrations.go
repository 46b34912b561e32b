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
		Name:    "create accounts and providers",
		SQL: `
			CREATE TABLE accounts (
				id            TEXT PRIMARY KEY,
				status        TEXT NOT NULL DEFAULT 'disconnected',
				phone         TEXT NOT NULL DEFAULT '',
				challenge     TEXT NOT NULL DEFAULT '',
				last_activity TEXT NOT NULL DEFAULT '',
				created_at    TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE providers (
				id          TEXT PRIMARY KEY,
				kind        TEXT NOT NULL,
				credential  TEXT NOT NULL DEFAULT '',
				model       TEXT NOT NULL DEFAULT '',
				endpoint    TEXT NOT NULL DEFAULT '',
				daily_limit INTEGER NOT NULL DEFAULT 0,
				used_today  INTEGER NOT NULL DEFAULT 0,
				priority    INTEGER NOT NULL DEFAULT 0,
				active      INTEGER NOT NULL DEFAULT 1,
				last_reset  TEXT NOT NULL DEFAULT (date('now'))
			);

			CREATE INDEX idx_providers_active ON providers (active, priority DESC);
		`,
	},
	{
		Version: 2,
		Name:    "create usage and audit logs",
		SQL: `
			CREATE TABLE usage_logs (
				id            TEXT PRIMARY KEY,
				provider_id   TEXT NOT NULL,
				provider_kind TEXT NOT NULL,
				input_tokens  INTEGER NOT NULL DEFAULT 0,
				output_tokens INTEGER NOT NULL DEFAULT 0,
				latency_ms    INTEGER NOT NULL DEFAULT 0,
				created_at    TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_usage_provider ON usage_logs (provider_id, created_at);

			CREATE TABLE audit_logs (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				actor      TEXT NOT NULL DEFAULT '',
				action     TEXT NOT NULL,
				detail     TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		Version: 3,
		Name:    "create catalog tables",
		SQL: `
			CREATE TABLE services (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				active      INTEGER NOT NULL DEFAULT 1
			);

			CREATE TABLE packages (
				id          TEXT PRIMARY KEY,
				service_id  TEXT NOT NULL REFERENCES services(id) ON DELETE CASCADE,
				name        TEXT NOT NULL,
				price       REAL NOT NULL DEFAULT 0,
				currency    TEXT NOT NULL DEFAULT 'USD',
				description TEXT NOT NULL DEFAULT '',
				active      INTEGER NOT NULL DEFAULT 1
			);

			CREATE INDEX idx_packages_service ON packages (service_id);

			CREATE TABLE payment_methods (
				id      TEXT PRIMARY KEY,
				name    TEXT NOT NULL,
				account TEXT NOT NULL DEFAULT '',
				holder  TEXT NOT NULL DEFAULT '',
				active  INTEGER NOT NULL DEFAULT 1
			);
		`,
	},
}
