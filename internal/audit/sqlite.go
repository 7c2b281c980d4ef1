package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS audit_operations (
	id            TEXT PRIMARY KEY,
	sequence      INTEGER NOT NULL UNIQUE,
	session_id    TEXT,
	operation     TEXT NOT NULL,
	previous_hash TEXT NOT NULL,
	hash          TEXT NOT NULL,
	body          TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_operations(session_id);
`

// #endregion schema

// SQLiteStore is a Sink that writes every operation to SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens path and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreWithDB wraps an open database. Call Migrate before use.
func NewSQLiteStoreWithDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Migrate creates the schema if missing.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append implements Sink.
func (s *SQLiteStore) Append(ctx context.Context, op Operation) error {
	body, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal operation: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_operations (id, sequence, session_id, operation, previous_hash, hash, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, int64(op.Sequence), nullIfEmpty(op.Metadata.SessionID), op.Operation,
		op.PreviousHash, op.Hash, string(body), op.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

// Load returns every stored operation in sequence order.
func (s *SQLiteStore) Load(ctx context.Context) ([]Operation, error) {
	return s.query(ctx, `SELECT body FROM audit_operations ORDER BY sequence`)
}

// LoadSession returns the stored operations of one session in sequence order.
func (s *SQLiteStore) LoadSession(ctx context.Context, sessionID string) ([]Operation, error) {
	return s.query(ctx, `SELECT body FROM audit_operations WHERE session_id = ? ORDER BY sequence`, sessionID)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Operation, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		var op Operation
		if err := json.Unmarshal([]byte(body), &op); err != nil {
			return nil, fmt.Errorf("decode operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return ops, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
