package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLite keeps each collection as one JSON document row.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the store at path. ":memory:" is accepted.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite_path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, collection string) ([]Record, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM collections WHERE name = ?`, collection).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read collection %s: %w", collection, err)
	}
	var value any
	if err := json.Unmarshal([]byte(body), &value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSequence, err)
	}
	return toRecords(value)
}

func (s *SQLite) ReplaceAll(ctx context.Context, collection string, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", collection, err)
	}
	return s.put(ctx, collection, string(body))
}

// PutRaw stores an arbitrary JSON document. Used to seed stores and in tests.
func (s *SQLite) PutRaw(ctx context.Context, collection string, body []byte) error {
	if !json.Valid(body) {
		return fmt.Errorf("collection %s: body is not valid JSON", collection)
	}
	return s.put(ctx, collection, string(body))
}

func (s *SQLite) put(ctx context.Context, collection, body string) error {
	query := `
		INSERT INTO collections (name, body, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			body = excluded.body,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, collection, body); err != nil {
		return fmt.Errorf("write collection %s: %w", collection, err)
	}
	return nil
}

func (s *SQLite) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
