package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var (
	ErrChainBroken     = errors.New("audit: hash chain is broken")
	ErrUnknownFormat   = errors.New("audit: unknown export format")
	ErrEmptyOperation  = errors.New("audit: operation name is required")
	ErrOperationExists = errors.New("audit: operation already recorded")
)

// Genesis is the previous hash of the first operation ever logged.
const Genesis = "genesis"

// #region operation

// Metadata identifies who and what produced an operation.
type Metadata struct {
	SessionID       string         `json:"session_id"`
	UserID          string         `json:"user_id,omitempty"`
	TenantID        string         `json:"tenant_id,omitempty"`
	ModelVersion    string         `json:"model_version,omitempty"`
	ConfidenceScore float64        `json:"confidence_score"`
	ExecutionTimeMs float64        `json:"execution_time_ms"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Validation flags computed at log time.
type Validation struct {
	InputValidation   bool `json:"input_validation"`
	OutputValidation  bool `json:"output_validation"`
	ConsistencyChecks bool `json:"consistency_checks"`
}

// Provenance records what an operation was derived from.
type Provenance struct {
	Dependencies     []string `json:"dependencies,omitempty"`
	AlgorithmVersion string   `json:"algorithm_version"`
}

// Operation is one append-only entry of the log.
type Operation struct {
	ID           string         `json:"id"`
	Sequence     uint64         `json:"sequence"`
	Timestamp    time.Time      `json:"timestamp"`
	Operation    string         `json:"operation"`
	Inputs       map[string]any `json:"inputs"`
	Outputs      map[string]any `json:"outputs"`
	Metadata     Metadata       `json:"metadata"`
	Validation   Validation     `json:"validation"`
	Provenance   Provenance     `json:"provenance"`
	PreviousHash string         `json:"previous_hash"`
	Hash         string         `json:"hash"`
}

// OperationInput is what callers hand to Logger.Log.
type OperationInput struct {
	Operation    string
	Inputs       map[string]any
	Outputs      map[string]any
	Metadata     Metadata
	Dependencies []string
	// Inconsistent marks a failed caller-side consistency check.
	Inconsistent bool
}

// #endregion operation

// #region trail

// Trail is the per-session view of the log.
type Trail struct {
	SessionID         string      `json:"session_id"`
	Operations        []Operation `json:"operations"`
	ChainHead         string      `json:"chain_head"`
	Digest            string      `json:"digest"`
	Anchor            string      `json:"anchor"`
	IntegrityVerified bool        `json:"integrity_verified"`
	GeneratedAt       time.Time   `json:"generated_at"`
}

// #endregion trail

// #region sink

// Sink persists operations as they are appended. A sink error aborts the
// append and leaves the chain unchanged.
type Sink interface {
	Append(ctx context.Context, op Operation) error
}

// #endregion sink

// #region config

// Config tunes a Logger.
type Config struct {
	Capacity         int // 0 keeps every operation
	AlgorithmVersion string
	Sink             Sink
	Clock            func() time.Time
	Logger           *slog.Logger
}

// DefaultConfig keeps the most recent 10000 operations in memory.
func DefaultConfig() Config {
	return Config{
		Capacity:         10000,
		AlgorithmVersion: "resonance-1.0.0",
	}
}

// #endregion config
