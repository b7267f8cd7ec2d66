package graph

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"weftlabs/weft/pkg/command"
	"weftlabs/weft/pkg/identity"
)

// SQLiteConfig contains configuration for the SQLite graph store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLiteStore is a durable graph store backed by SQLite. Commands append
// with WAL mode enabled; the head set moves in the same transaction as the
// append, mirroring the single-writer commit discipline of the evaluation
// loop.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) a SQLite graph store at the
// configured path.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	busy := cfg.BusyTimeout
	if busy == 0 {
		busy = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d", cfg.Path, busy.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &StoreError{Backend: "sqlite", Op: "open", Cause: err}
	}

	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:     db,
		logger: slog.Default().With("component", "graph.sqlite"),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS commands (
		id TEXT PRIMARY KEY,
		parent TEXT NOT NULL,
		author TEXT NOT NULL,
		state INTEGER NOT NULL,
		envelope BLOB NOT NULL,
		seq INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_commands_parent ON commands(parent);
	CREATE TABLE IF NOT EXISTS heads (
		id TEXT PRIMARY KEY
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return &StoreError{Backend: "sqlite", Op: "init", Cause: err}
	}
	return nil
}

// Append stores a record and replaces the head set in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, rec *Record, heads []command.ID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Backend: "sqlite", Op: "append", Cause: err}
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM commands`).Scan(&seq); err != nil {
		return &StoreError{Backend: "sqlite", Op: "append", Cause: err}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO commands (id, parent, author, state, envelope, seq) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Parent.String(), string(rec.Author), int(rec.State), rec.Envelope, seq)
	if err != nil {
		return &StoreError{Backend: "sqlite", Op: "append", Cause: err}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM heads`); err != nil {
		return &StoreError{Backend: "sqlite", Op: "append", Cause: err}
	}
	for _, head := range heads {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO heads (id) VALUES (?)`, head.String()); err != nil {
			return &StoreError{Backend: "sqlite", Op: "append", Cause: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Backend: "sqlite", Op: "append", Cause: err}
	}
	return nil
}

// Get returns the record for id.
func (s *SQLiteStore) Get(ctx context.Context, id command.ID) (*Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, parent, author, state, envelope FROM commands WHERE id = ?`, id.String())

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &StoreError{Backend: "sqlite", Op: "get", Cause: err}
	}
	return rec, true, nil
}

// ChildrenOf returns the identifiers of commands whose parent is id.
func (s *SQLiteStore) ChildrenOf(ctx context.Context, id command.ID) ([]command.ID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM commands WHERE parent = ? ORDER BY id`, id.String())
	if err != nil {
		return nil, &StoreError{Backend: "sqlite", Op: "children", Cause: err}
	}
	defer rows.Close()

	var out []command.ID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, &StoreError{Backend: "sqlite", Op: "children", Cause: err}
		}
		child, err := command.ParseID(raw)
		if err != nil {
			return nil, &StoreError{Backend: "sqlite", Op: "children", Cause: err}
		}
		out = append(out, child)
	}
	return out, rows.Err()
}

// Heads returns the current frontier identifiers.
func (s *SQLiteStore) Heads(ctx context.Context) ([]command.ID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM heads ORDER BY id`)
	if err != nil {
		return nil, &StoreError{Backend: "sqlite", Op: "heads", Cause: err}
	}
	defer rows.Close()

	var out []command.ID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, &StoreError{Backend: "sqlite", Op: "heads", Cause: err}
		}
		head, err := command.ParseID(raw)
		if err != nil {
			return nil, &StoreError{Backend: "sqlite", Op: "heads", Cause: err}
		}
		out = append(out, head)
	}
	return out, rows.Err()
}

// All returns every stored record in append order.
func (s *SQLiteStore) All(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent, author, state, envelope FROM commands ORDER BY seq`)
	if err != nil {
		return nil, &StoreError{Backend: "sqlite", Op: "all", Cause: err}
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &StoreError{Backend: "sqlite", Op: "all", Cause: err}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rawID, rawParent, rawAuthor string
		state                       int
		env                         []byte
	)
	if err := row.Scan(&rawID, &rawParent, &rawAuthor, &state, &env); err != nil {
		return nil, err
	}

	id, err := command.ParseID(rawID)
	if err != nil {
		return nil, err
	}
	parent, err := command.ParseID(rawParent)
	if err != nil {
		return nil, err
	}

	return &Record{
		ID:       id,
		Parent:   parent,
		Author:   identity.AuthorID(rawAuthor),
		State:    State(state),
		Envelope: env,
	}, nil
}
