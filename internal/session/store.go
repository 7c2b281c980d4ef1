// Package session persists per-session stickiness state and score history.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/s8ken/yseeku-platform-sub012/internal/resonance"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS session_state (
	session_id         TEXT PRIMARY KEY,
	last_rm            REAL NOT NULL,
	last_scaffold_hash TEXT,
	decay_turns        INTEGER NOT NULL DEFAULT 0,
	dynamic_scaffold   TEXT,
	turns              INTEGER NOT NULL DEFAULT 0,
	updated_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS score_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	turn        INTEGER NOT NULL,
	r_m         REAL NOT NULL,
	status      TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_score_history_session ON score_history(session_id, id);
`
// #endregion schema

// #region store-struct
// SQLiteStore is a Store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewSQLiteStore opens a SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := addScaffoldColumn(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// addScaffoldColumn upgrades databases created before session keywords were
// persisted.
func addScaffoldColumn(db *sql.DB) error {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('session_state') WHERE name = 'dynamic_scaffold'`).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	_, err = db.Exec(`ALTER TABLE session_state ADD COLUMN dynamic_scaffold TEXT`)
	return err
}

// NewSQLiteStoreWithDB wraps an already migrated database.
func NewSQLiteStoreWithDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}
// #endregion constructor

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// #region get
// Get returns the stored record, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (Record, error) {
	rec := Record{SessionID: sessionID}
	var hash, scaffold sql.NullString
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_rm, last_scaffold_hash, decay_turns, dynamic_scaffold, turns, updated_at
		 FROM session_state WHERE session_id = ?`, sessionID,
	).Scan(&rec.State.LastRM, &hash, &rec.State.DecayTurns, &scaffold, &rec.Turns, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("get session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	if hash.Valid {
		rec.State.LastScaffoldHash = hash.String
	}
	if scaffold.Valid {
		if err := json.Unmarshal([]byte(scaffold.String), &rec.State.DynamicScaffold); err != nil {
			return Record{}, fmt.Errorf("get session %s: decode scaffold: %w", sessionID, err)
		}
	}
	rec.State.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return rec, nil
}
// #endregion get

// #region put
// Put upserts a session record.
func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	var hash any
	if rec.State.LastScaffoldHash != "" {
		hash = rec.State.LastScaffoldHash
	}
	var scaffold any
	if len(rec.State.DynamicScaffold) > 0 {
		b, err := json.Marshal(rec.State.DynamicScaffold)
		if err != nil {
			return fmt.Errorf("put session %s: encode scaffold: %w", rec.SessionID, err)
		}
		scaffold = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_state (session_id, last_rm, last_scaffold_hash, decay_turns, dynamic_scaffold, turns, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			last_rm = excluded.last_rm,
			last_scaffold_hash = excluded.last_scaffold_hash,
			decay_turns = excluded.decay_turns,
			dynamic_scaffold = excluded.dynamic_scaffold,
			turns = excluded.turns,
			updated_at = excluded.updated_at`,
		rec.SessionID, rec.State.LastRM, hash, rec.State.DecayTurns, scaffold, rec.Turns,
		rec.State.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put session %s: %w", rec.SessionID, err)
	}
	return nil
}
// #endregion put

// #region history
// AppendScore records one scored turn.
func (s *SQLiteStore) AppendScore(ctx context.Context, sessionID string, sc Score) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO score_history (session_id, turn, r_m, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, sc.Turn, sc.RM, string(sc.Status), sc.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append score: %w", err)
	}
	return nil
}

// History returns up to limit most recent scores, oldest first. limit <= 0
// returns all of them.
func (s *SQLiteStore) History(ctx context.Context, sessionID string, limit int) ([]Score, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn, r_m, status, created_at FROM (
			SELECT id, turn, r_m, status, created_at FROM score_history
			WHERE session_id = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var out []Score
	for rows.Next() {
		var sc Score
		var status, created string
		if err := rows.Scan(&sc.Turn, &sc.RM, &status, &created); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sc.Status = resonance.Status(status)
		sc.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, sc)
	}
	return out, rows.Err()
}
// #endregion history

// #region delete
// Delete removes a session's state and history.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_state WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM score_history WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return tx.Commit()
}
// #endregion delete
