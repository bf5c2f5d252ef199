package db

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "create users table",
		sql: `
			CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				login TEXT UNIQUE NOT NULL,
				password_hash TEXT NOT NULL,
				balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
				role TEXT NOT NULL DEFAULT 'USER',
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)
		`,
	},
	{
		name: "create calc history table",
		sql: `
			CREATE TABLE IF NOT EXISTS calc_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				expression TEXT NOT NULL,
				result TEXT NOT NULL,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_calc_history_user ON calc_history(user_id, id);
		`,
	},
}
