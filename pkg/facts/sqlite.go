package facts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteConfig contains configuration for the SQLite fact store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLiteStore is a durable fact store backed by SQLite. Batches commit in a
// single database transaction, giving the atomic multi-key commit the
// evaluation contract requires.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) a SQLite fact store at the
// configured path.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	busy := cfg.BusyTimeout
	if busy == 0 {
		busy = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		cfg.Path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &CommitError{Backend: "sqlite", Cause: fmt.Errorf("open %q: %w", cfg.Path, err)}
	}

	// Evaluation is single-writer; one connection avoids lock churn.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:     db,
		logger: slog.Default().With("component", "facts.sqlite"),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS facts (
		fact_key TEXT PRIMARY KEY,
		schema_name TEXT NOT NULL,
		value TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_facts_schema ON facts(schema_name);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return &CommitError{Backend: "sqlite", Cause: fmt.Errorf("init schema: %w", err)}
	}
	return nil
}

// Get returns the committed value for (schema, key).
func (s *SQLiteStore) Get(ctx context.Context, schema string, key Key) (Value, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM facts WHERE fact_key = ?`, encodeKey(schema, key)).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &CommitError{Backend: "sqlite", Cause: err}
	}

	var value Value
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false, &CommitError{Backend: "sqlite", Cause: fmt.Errorf("corrupt fact value: %w", err)}
	}
	return value, true, nil
}

// ApplyBatch atomically applies a transaction's mutations in one database
// transaction.
func (s *SQLiteStore) ApplyBatch(ctx context.Context, muts []Mutation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &CommitError{Backend: "sqlite", Cause: err}
	}
	defer tx.Rollback()

	for _, mut := range muts {
		enc := encodeKey(mut.Schema, mut.Key)
		switch mut.Op {
		case OpPut:
			raw, err := json.Marshal(mut.Value)
			if err != nil {
				return &CommitError{Backend: "sqlite", Cause: err}
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO facts (fact_key, schema_name, value) VALUES (?, ?, ?)
				 ON CONFLICT(fact_key) DO UPDATE SET value = excluded.value`,
				enc, mut.Schema, string(raw))
			if err != nil {
				return &CommitError{Backend: "sqlite", Cause: err}
			}
		case OpDelete:
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM facts WHERE fact_key = ?`, enc); err != nil {
				return &CommitError{Backend: "sqlite", Cause: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &CommitError{Backend: "sqlite", Cause: err}
	}
	return nil
}

// Clear removes all committed facts.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM facts`); err != nil {
		return &CommitError{Backend: "sqlite", Cause: err}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
