package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const SchemaVersion = 1

// Record is the stored outcome of one per-CV conversion attempt.
type Record struct {
	ID         int64
	InputFile  string
	CV         float64
	OutputFile string
	Success    bool
	Duration   time.Duration
	CreatedAt  time.Time
}

// Store keeps conversion outcomes in a SQLite database so earlier runs can
// be inspected after the console output is gone.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the history database and applies migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=10000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	store := &Store{conn: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// migrate applies database migrations.
func (s *Store) migrate() error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}

	for version < SchemaVersion {
		version++
		switch version {
		case 1:
			if err := applySchemaV1(tx); err != nil {
				return fmt.Errorf("failed to apply schema v%d: %w", version, err)
			}
		default:
			return fmt.Errorf("unknown schema version: %d", version)
		}
	}

	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func applySchemaV1(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS conversions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			input_file TEXT NOT NULL,
			cv REAL NOT NULL,
			output_file TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_conversions_input
		ON conversions(input_file, created_at)
	`)
	return err
}

// RecordOutcome stores one per-CV conversion outcome.
func (s *Store) RecordOutcome(rec *Record) error {
	result, err := s.conn.Exec(`
		INSERT INTO conversions (input_file, cv, output_file, success, duration_ms)
		VALUES (?, ?, ?, ?, ?)
	`, rec.InputFile, rec.CV, rec.OutputFile, rec.Success, rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record conversion outcome: %w", err)
	}

	rec.ID, _ = result.LastInsertId()
	return nil
}

// Recent returns the most recent conversion outcomes, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	rows, err := s.conn.Query(`
		SELECT id, input_file, cv, output_file, success, duration_ms, created_at
		FROM conversions
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var durationMS int64
		if err := rows.Scan(&rec.ID, &rec.InputFile, &rec.CV, &rec.OutputFile,
			&rec.Success, &durationMS, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
