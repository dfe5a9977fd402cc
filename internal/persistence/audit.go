package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveRun inserts a run record. FinishedAt and Success are filled in
// later by FinishRun.
func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, schema_name, started_at, tokens_consumed) VALUES (?, ?, ?, ?)`,
		run.ID, run.Schema, run.StartedAt.UTC(), run.TokensConsumed,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// FinishRun stamps the run's completion state.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, success bool, tokensConsumed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, success = ?, tokens_consumed = ? WHERE id = ?`,
		time.Now().UTC(), success, tokensConsumed, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// GetRun fetches a single run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	var run RunRecord
	var finished sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, schema_name, started_at, finished_at, success, tokens_consumed FROM runs WHERE id = ?`,
		runID,
	).Scan(&run.ID, &run.Schema, &run.StartedAt, &finished, &run.Success, &run.TokensConsumed)
	if err == sql.ErrNoRows {
		return run, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return run, fmt.Errorf("failed to get run: %w", err)
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, schema_name, started_at, finished_at, success, tokens_consumed
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Schema, &run.StartedAt, &finished, &run.Success, &run.TokensConsumed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			run.FinishedAt = finished.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SaveDecision records one routing decision.
func (s *SQLiteStore) SaveDecision(ctx context.Context, d DecisionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO routing_decisions (run_id, stage, tier, reason, complexity) VALUES (?, ?, ?, ?, ?)`,
		d.RunID, d.Stage, d.Tier, d.Reason, d.Complexity,
	)
	if err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}
	return nil
}

// ListDecisions returns a run's routing decisions in insertion order.
func (s *SQLiteStore) ListDecisions(ctx context.Context, runID string) ([]DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stage, tier, reason, complexity, timestamp
		 FROM routing_decisions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []DecisionRecord
	for rows.Next() {
		var d DecisionRecord
		if err := rows.Scan(&d.RunID, &d.Stage, &d.Tier, &d.Reason, &d.Complexity, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// SaveLedgerEntry records one token ledger entry.
func (s *SQLiteStore) SaveLedgerEntry(ctx context.Context, e LedgerRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO token_ledger (run_id, stage, tier, tokens, description) VALUES (?, ?, ?, ?, ?)`,
		e.RunID, e.Stage, e.Tier, e.Tokens, e.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to save ledger entry: %w", err)
	}
	return nil
}

// ListLedger returns a run's token ledger in insertion order.
func (s *SQLiteStore) ListLedger(ctx context.Context, runID string) ([]LedgerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stage, tier, tokens, description, timestamp
		 FROM token_ledger WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	defer rows.Close()

	var entries []LedgerRecord
	for rows.Next() {
		var e LedgerRecord
		var desc sql.NullString
		if err := rows.Scan(&e.RunID, &e.Stage, &e.Tier, &e.Tokens, &desc, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Description = desc.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveIteration records one feedback loop iteration.
func (s *SQLiteStore) SaveIteration(ctx context.Context, it IterationRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback_iterations (run_id, stage, number, error_class, fix_source, resolved, tokens)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		it.RunID, it.Stage, it.Number, it.ErrorClass, it.FixSource, it.Resolved, it.Tokens,
	)
	if err != nil {
		return fmt.Errorf("failed to save iteration: %w", err)
	}
	return nil
}

// ListIterations returns a run's feedback iterations in order.
func (s *SQLiteStore) ListIterations(ctx context.Context, runID string) ([]IterationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stage, number, error_class, fix_source, resolved, tokens, timestamp
		 FROM feedback_iterations WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list iterations: %w", err)
	}
	defer rows.Close()

	var iterations []IterationRecord
	for rows.Next() {
		var it IterationRecord
		var source sql.NullString
		if err := rows.Scan(&it.RunID, &it.Stage, &it.Number, &it.ErrorClass, &source, &it.Resolved, &it.Tokens, &it.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}
		it.FixSource = source.String
		iterations = append(iterations, it)
	}
	return iterations, rows.Err()
}
