package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		schema_name TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		success INTEGER NOT NULL DEFAULT 0,
		tokens_consumed INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS routing_decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		tier TEXT NOT NULL,
		reason TEXT NOT NULL,
		complexity REAL NOT NULL DEFAULT 0,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_routing_decisions_run ON routing_decisions(run_id);

	CREATE TABLE IF NOT EXISTS token_ledger (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		tier TEXT NOT NULL,
		tokens INTEGER NOT NULL,
		description TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_token_ledger_run ON token_ledger(run_id);

	CREATE TABLE IF NOT EXISTS feedback_iterations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		number INTEGER NOT NULL,
		error_class TEXT NOT NULL,
		fix_source TEXT,
		resolved INTEGER NOT NULL DEFAULT 0,
		tokens INTEGER NOT NULL DEFAULT 0,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_iterations_run ON feedback_iterations(run_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
