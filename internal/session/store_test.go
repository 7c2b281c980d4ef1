package session

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/s8ken/yseeku-platform-sub012/internal/resonance"
)

func tempDB(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"sqlite": tempDB(t),
		"memory": NewMemoryStore(),
	}
}

func TestGetMissing(t *testing.T) {
	for name, s := range stores(t) {
		_, err := s.Get(context.Background(), "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	updated := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	for name, s := range stores(t) {
		rec := Record{
			SessionID: "s1",
			State: resonance.SessionState{
				LastRM:           0.72,
				LastScaffoldHash: "abc",
				DecayTurns:       2,
				UpdatedAt:        updated,
			},
			Turns: 3,
		}
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("%s: Put: %v", name, err)
		}
		rec.State.LastRM = 0.5
		rec.Turns = 4
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("%s: Put update: %v", name, err)
		}

		got, err := s.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("%s: Get: %v", name, err)
		}
		if got.State.LastRM != 0.5 || got.Turns != 4 || got.State.DecayTurns != 2 {
			t.Errorf("%s: unexpected record %+v", name, got)
		}
		if got.State.LastScaffoldHash != "abc" || !got.State.UpdatedAt.Equal(updated) {
			t.Errorf("%s: unexpected state %+v", name, got.State)
		}
	}
}

func TestPutAndGet_DynamicScaffold(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		kw := resonance.DynamicScaffold{"gardening": 1, "compost": 0.75}
		rec := Record{SessionID: "s1", State: resonance.SessionState{LastRM: 0.6, DynamicScaffold: kw}}
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("%s: Put: %v", name, err)
		}
		kw["gardening"] = 0

		got, err := s.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("%s: Get: %v", name, err)
		}
		if len(got.State.DynamicScaffold) != 2 || got.State.DynamicScaffold["gardening"] != 1 || got.State.DynamicScaffold["compost"] != 0.75 {
			t.Errorf("%s: unexpected scaffold %v", name, got.State.DynamicScaffold)
		}

		rec.State.DynamicScaffold = nil
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("%s: Put cleared: %v", name, err)
		}
		got, err = s.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("%s: Get cleared: %v", name, err)
		}
		if got.State.DynamicScaffold != nil {
			t.Errorf("%s: expected no scaffold, got %v", name, got.State.DynamicScaffold)
		}
	}
}

func TestNewSQLiteStore_UpgradesOldSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE session_state (
		session_id TEXT PRIMARY KEY, last_rm REAL NOT NULL, last_scaffold_hash TEXT,
		decay_turns INTEGER NOT NULL DEFAULT 0, turns INTEGER NOT NULL DEFAULT 0, updated_at TEXT NOT NULL)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	db.Close()

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	rec := Record{SessionID: "s1", State: resonance.SessionState{DynamicScaffold: resonance.DynamicScaffold{"compost": 1}}}
	if err := s.Put(context.Background(), rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got, err := s.Get(context.Background(), "s1"); err != nil || got.State.DynamicScaffold["compost"] != 1 {
		t.Errorf("unexpected record %+v, err %v", got, err)
	}
}

func TestHistoryLimitAndOrder(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		for i := 1; i <= 5; i++ {
			sc := Score{Turn: i, RM: float64(i) / 10, Status: resonance.StatusLow, CreatedAt: time.Now()}
			if err := s.AppendScore(ctx, "s1", sc); err != nil {
				t.Fatalf("%s: AppendScore: %v", name, err)
			}
		}
		if err := s.AppendScore(ctx, "other", Score{Turn: 1, RM: 0.9, Status: resonance.StatusExceptional}); err != nil {
			t.Fatalf("%s: AppendScore: %v", name, err)
		}

		h, err := s.History(ctx, "s1", 3)
		if err != nil {
			t.Fatalf("%s: History: %v", name, err)
		}
		if len(h) != 3 || h[0].Turn != 3 || h[2].Turn != 5 {
			t.Fatalf("%s: expected turns 3..5 oldest first, got %+v", name, h)
		}

		all, _ := s.History(ctx, "s1", 0)
		if len(all) != 5 {
			t.Errorf("%s: expected all 5 scores, got %d", name, len(all))
		}
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		_ = s.Put(ctx, Record{SessionID: "s1", State: resonance.SessionState{LastRM: 0.4}})
		_ = s.AppendScore(ctx, "s1", Score{Turn: 1, RM: 0.4, Status: resonance.StatusLow})
		if err := s.Delete(ctx, "s1"); err != nil {
			t.Fatalf("%s: Delete: %v", name, err)
		}
		if _, err := s.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound after delete, got %v", name, err)
		}
		if h, _ := s.History(ctx, "s1", 0); len(h) != 0 {
			t.Errorf("%s: expected empty history, got %d", name, len(h))
		}
	}
}

func TestNewSQLiteStore_BadPath(t *testing.T) {
	_, err := NewSQLiteStore(filepath.Join(t.TempDir(), "no", "such", "dir", "s.db"))
	if err == nil {
		t.Fatal("expected error for unwritable path")
	}
}
