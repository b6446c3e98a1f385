package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/basket/internal/apperr"
)

const draftsSchemaSQL = `
CREATE TABLE IF NOT EXISTS drafts (
	id         TEXT PRIMARY KEY,
	body       BLOB NOT NULL,
	checksum   TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_drafts_updated_at ON drafts(updated_at);
`

// SQLite implements Store on a single SQLite table.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the database at dsn and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if _, err := conn.Exec(draftsSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Get returns the stored body for id.
func (s *SQLite) Get(ctx context.Context, id string) ([]byte, error) {
	var body []byte
	err := s.conn.QueryRowContext(ctx, `SELECT body FROM drafts WHERE id = ?`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("storage: get %s: %w", id, err)
	}
	return body, nil
}

// Put inserts or replaces the draft within a transaction.
func (s *SQLite) Put(ctx context.Context, id string, data []byte) error {
	if err := validID(id); err != nil {
		return err
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.ExecContext(ctx, `
		INSERT INTO drafts (id, body, checksum, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			body       = excluded.body,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, id, data, Checksum(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage: upsert draft: %w", err)
	}
	return tx.Commit()
}

// Delete removes the draft for id.
func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// List returns all stored records, most recently updated first.
func (s *SQLite) List(ctx context.Context) ([]Record, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, checksum, updated_at FROM drafts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Checksum, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}
