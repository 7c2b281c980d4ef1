package session

import (
	"context"
	"errors"
	"time"

	"github.com/s8ken/yseeku-platform-sub012/internal/resonance"
)

// ErrNotFound is returned when a session has no stored state.
var ErrNotFound = errors.New("session: not found")

// #region record
// Record is the stored state of one session.
type Record struct {
	SessionID string
	State     resonance.SessionState
	Turns     int
}
// #endregion record

// #region score
// Score is one historical r_m value.
type Score struct {
	Turn      int
	RM        float64
	Status    resonance.Status
	CreatedAt time.Time
}
// #endregion score

// #region store
// Store persists session stickiness state and score history.
type Store interface {
	Get(ctx context.Context, sessionID string) (Record, error)
	Put(ctx context.Context, rec Record) error
	AppendScore(ctx context.Context, sessionID string, s Score) error
	History(ctx context.Context, sessionID string, limit int) ([]Score, error)
	Delete(ctx context.Context, sessionID string) error
	Close() error
}
// #endregion store
