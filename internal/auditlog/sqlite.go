package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite. Suitable for
// single-node deployments; the journal is advisory and lives outside
// the registration transaction on purpose.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite journal store, creating the
// database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode keeps readers from blocking the registration path.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS registration_attempts (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		kind TEXT NOT NULL,
		labware_count INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		problems TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_created_at
		ON registration_attempts(created_at DESC);`
	_, err := db.Exec(schema)
	return err
}

// Record appends one attempt to the journal.
func (s *SQLiteStore) Record(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	problems, err := json.Marshal(entry.Problems)
	if err != nil {
		return fmt.Errorf("failed to marshal problems: %w", err)
	}

	query := `
	INSERT INTO registration_attempts (id, username, kind, labware_count, outcome, problems, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Username,
		entry.Kind,
		entry.LabwareCount,
		string(entry.Outcome),
		string(problems),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

// Recent returns the most recent attempts, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
	SELECT id, username, kind, labware_count, outcome, problems, created_at
	FROM registration_attempts
	ORDER BY created_at DESC
	LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attempts: %w", err)
	}
	return entries, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*Entry, error) {
	var entry Entry
	var outcome string
	var problems string
	if err := row.Scan(
		&entry.ID,
		&entry.Username,
		&entry.Kind,
		&entry.LabwareCount,
		&outcome,
		&problems,
		&entry.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan attempt: %w", err)
	}
	entry.Outcome = Outcome(outcome)
	if problems != "" && problems != "null" {
		if err := json.Unmarshal([]byte(problems), &entry.Problems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal problems: %w", err)
		}
	}
	return &entry, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
