// Package persistence provides the SQLite-backed audit store. Every
// routing decision, token ledger entry, and feedback iteration of a
// pipeline run is recorded so runs can be compared and debugged after
// the fact.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// RunRecord summarizes one pipeline run.
type RunRecord struct {
	ID             string
	Schema         string
	StartedAt      time.Time
	FinishedAt     time.Time
	Success        bool
	TokensConsumed int
}

// DecisionRecord is one persisted routing decision.
type DecisionRecord struct {
	RunID      string
	Stage      string
	Tier       string
	Reason     string
	Complexity float64
	Timestamp  time.Time
}

// LedgerRecord is one persisted token ledger entry.
type LedgerRecord struct {
	RunID       string
	Stage       string
	Tier        string
	Tokens      int
	Description string
	Timestamp   time.Time
}

// IterationRecord is one persisted feedback loop iteration.
type IterationRecord struct {
	RunID      string
	Stage      string
	Number     int
	ErrorClass string
	FixSource  string
	Resolved   bool
	Tokens     int
	Timestamp  time.Time
}

// Store defines the audit persistence interface.
type Store interface {
	SaveRun(ctx context.Context, run RunRecord) error
	FinishRun(ctx context.Context, runID string, success bool, tokensConsumed int) error
	GetRun(ctx context.Context, runID string) (RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	SaveDecision(ctx context.Context, d DecisionRecord) error
	ListDecisions(ctx context.Context, runID string) ([]DecisionRecord, error)

	SaveLedgerEntry(ctx context.Context, e LedgerRecord) error
	ListLedger(ctx context.Context, runID string) ([]LedgerRecord, error)

	SaveIteration(ctx context.Context, it IterationRecord) error
	ListIterations(ctx context.Context, runID string) ([]IterationRecord, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed audit store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys,
// and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc.org/sqlite needs the PRAGMA, not a connection string flag
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Uses a shared cache so multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
