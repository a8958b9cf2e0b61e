// Package history records the verdict of every check cycle in a SQLite
// database so that past decisions can be audited per package.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// FileName is the database file created under the autoupdate directory
const FileName = "history.db"

// ErrClosed is returned when the store is used after Close
var ErrClosed = errors.New("history store is closed")

// Entry is one recorded verdict.
type Entry struct {
	ID         int64
	Package    string
	Current    string
	Candidate  string
	Decision   string
	Reason     string
	Confidence float64
	Agree      bool
	Notes      []string
	Sources    []string
	CheckedAt  time.Time
}

// Store is a SQLite-backed decision log.
type Store struct {
	db *sql.DB
}

// Path returns dir/history.db
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Open opens or creates the database at dbPath. ":memory:" is accepted.
func Open(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
		dsn = "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; also keeps an in-memory database alive across calls
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		package TEXT NOT NULL,
		current_version TEXT NOT NULL,
		candidate TEXT NOT NULL DEFAULT '',
		decision TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 0,
		agree INTEGER NOT NULL DEFAULT 0,
		notes JSON NOT NULL DEFAULT '[]',
		sources JSON NOT NULL DEFAULT '[]',
		checked_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_package ON decisions(package, checked_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record appends e and returns its id. A zero CheckedAt is set to now.
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	if e.CheckedAt.IsZero() {
		e.CheckedAt = time.Now()
	}

	notes, err := marshalList(e.Notes)
	if err != nil {
		return 0, err
	}
	sources, err := marshalList(e.Sources)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions
			(package, current_version, candidate, decision, reason, confidence, agree, notes, sources, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Package, e.Current, e.Candidate, e.Decision, e.Reason, e.Confidence, e.Agree,
		notes, sources, e.CheckedAt.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to insert decision: %w", err)
	}
	return res.LastInsertId()
}

// List returns the newest entries first. An empty pkg lists every package;
// limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, pkg string, limit int) ([]Entry, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, package, current_version, candidate, decision, reason, confidence, agree, notes, sources, checked_at
		FROM decisions
		WHERE ? = '' OR package = ?
		ORDER BY checked_at DESC, id DESC
		LIMIT ?
	`, pkg, pkg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e              Entry
			notes, sources []byte
			checkedAt      int64
		)
		if err := rows.Scan(&e.ID, &e.Package, &e.Current, &e.Candidate, &e.Decision, &e.Reason,
			&e.Confidence, &e.Agree, &notes, &sources, &checkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		if err := json.Unmarshal(notes, &e.Notes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notes: %w", err)
		}
		if err := json.Unmarshal(sources, &e.Sources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
		}
		e.CheckedAt = time.Unix(0, checkedAt)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decisions: %w", err)
	}
	return entries, nil
}

// Close closes the database. Further calls return ErrClosed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func marshalList(list []string) ([]byte, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal list: %w", err)
	}
	return data, nil
}
