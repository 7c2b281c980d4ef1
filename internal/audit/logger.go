// Package audit is an append-only, hash-chained log of every mathematical
// operation performed while scoring.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// #region logger

// Logger holds the in-memory chain. Chain updates are serialized; reads may
// run concurrently.
type Logger struct {
	mu     sync.RWMutex
	ops    []*Operation
	byID   map[string]*Operation
	seq    uint64
	head   string
	anchor string

	config Config
	logger *slog.Logger
}

// NewLogger creates an empty Logger anchored at Genesis.
func NewLogger(config Config) *Logger {
	if config.Clock == nil {
		config.Clock = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		byID:   make(map[string]*Operation),
		head:   Genesis,
		anchor: Genesis,
		config: config,
		logger: logger.With("component", "audit"),
	}
}

// Restore rebuilds a Logger from persisted operations, oldest first, and
// verifies the chain. The first operation's previous hash becomes the anchor.
func Restore(ops []Operation, config Config) (*Logger, error) {
	l := NewLogger(config)
	if len(ops) == 0 {
		return l, nil
	}
	l.anchor = ops[0].PreviousHash
	for i := range ops {
		op := clone(&ops[i])
		l.ops = append(l.ops, &op)
		l.byID[op.ID] = &op
	}
	last := ops[len(ops)-1]
	l.head, l.seq = last.Hash, last.Sequence
	if err := l.Verify(); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	return l, nil
}

// #endregion logger

// #region log

// Log appends an operation and returns its id.
func (l *Logger) Log(in OperationInput) (string, error) {
	return l.LogContext(context.Background(), in)
}

// LogContext is Log with a context passed to the sink.
func (l *Logger) LogContext(ctx context.Context, in OperationInput) (string, error) {
	if strings.TrimSpace(in.Operation) == "" {
		return "", ErrEmptyOperation
	}
	inputs, inputsFinite := sanitizeMap(in.Inputs)
	outputs, outputsFinite := sanitizeMap(in.Outputs)
	meta, confidenceOK, timingOK := sanitizeMetadata(in.Metadata)

	l.mu.Lock()
	defer l.mu.Unlock()

	op := &Operation{
		ID:        uuid.New().String(),
		Sequence:  l.seq + 1,
		Timestamp: l.config.Clock().UTC(),
		Operation: in.Operation,
		Inputs:    inputs,
		Outputs:   outputs,
		Metadata:  meta,
		Validation: Validation{
			InputValidation:   inputsFinite,
			OutputValidation:  outputsFinite && confidenceOK,
			ConsistencyChecks: !in.Inconsistent && timingOK,
		},
		Provenance: Provenance{
			Dependencies:     cloneStrings(in.Dependencies),
			AlgorithmVersion: l.config.AlgorithmVersion,
		},
		PreviousHash: l.head,
	}
	if _, dup := l.byID[op.ID]; dup {
		return "", ErrOperationExists
	}
	hash, err := computeHash(op)
	if err != nil {
		return "", fmt.Errorf("hash operation: %w", err)
	}
	op.Hash = hash

	if l.config.Sink != nil {
		if err := l.config.Sink.Append(ctx, clone(op)); err != nil {
			return "", fmt.Errorf("persist operation: %w", err)
		}
	}

	l.ops = append(l.ops, op)
	l.byID[op.ID] = op
	l.seq = op.Sequence
	l.head = op.Hash
	l.evictLocked()
	return op.ID, nil
}

// evictLocked drops the oldest operations beyond Capacity. The last evicted
// hash becomes the anchor so the retained suffix still verifies.
func (l *Logger) evictLocked() {
	if l.config.Capacity <= 0 || len(l.ops) <= l.config.Capacity {
		return
	}
	drop := len(l.ops) - l.config.Capacity
	l.dropLocked(drop)
}

func (l *Logger) dropLocked(n int) {
	for _, op := range l.ops[:n] {
		delete(l.byID, op.ID)
	}
	l.anchor = l.ops[n-1].Hash
	l.ops = append([]*Operation(nil), l.ops[n:]...)
}

// Prune removes operations older than before and returns how many were
// removed. Only a prefix of the chain is ever removed.
func (l *Logger) Prune(before time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for n < len(l.ops) && l.ops[n].Timestamp.Before(before) {
		n++
	}
	if n > 0 {
		l.dropLocked(n)
	}
	return n
}

// #endregion log

// #region verify

// Verify walks the chain from the anchor and recomputes every hash.
func (l *Logger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verifyLocked()
}

func (l *Logger) verifyLocked() error {
	expected := l.anchor
	for i, op := range l.ops {
		if op.PreviousHash != expected {
			return fmt.Errorf("%w: operation %d has previous_hash %s, expected %s",
				ErrChainBroken, i, op.PreviousHash, expected)
		}
		computed, err := computeHash(op)
		if err != nil {
			return fmt.Errorf("%w: operation %d hash computation failed: %w", ErrChainBroken, i, err)
		}
		if computed != op.Hash {
			return fmt.Errorf("%w: operation %d hash mismatch (computed %s, stored %s)",
				ErrChainBroken, i, computed, op.Hash)
		}
		expected = op.Hash
	}
	if expected != l.head {
		return fmt.Errorf("%w: chain ends at %s, head is %s", ErrChainBroken, expected, l.head)
	}
	return nil
}

// VerifyIntegrity reports whether the chain verifies. Failures are logged
// and never repaired.
func (l *Logger) VerifyIntegrity() bool {
	if err := l.Verify(); err != nil {
		l.logger.Error("audit chain integrity check failed", "error", err)
		return false
	}
	return true
}

// #endregion verify

// #region queries

// Trail returns the operations recorded for sessionID with chain context.
func (l *Logger) Trail(sessionID string) Trail {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t := Trail{
		SessionID:   sessionID,
		Operations:  []Operation{},
		ChainHead:   l.head,
		Anchor:      l.anchor,
		GeneratedAt: l.config.Clock().UTC(),
	}
	d := sha256.New()
	for _, op := range l.ops {
		if op.Metadata.SessionID != sessionID {
			continue
		}
		t.Operations = append(t.Operations, clone(op))
		d.Write([]byte(op.Hash))
		d.Write([]byte{'\n'})
	}
	t.Digest = "sha256:" + hex.EncodeToString(d.Sum(nil))
	t.IntegrityVerified = l.verifyLocked() == nil
	return t
}

// Operations returns a copy of every retained operation, oldest first.
func (l *Logger) Operations() []Operation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Operation, len(l.ops))
	for i, op := range l.ops {
		out[i] = clone(op)
	}
	return out
}

// Get returns the operation with id.
func (l *Logger) Get(id string) (Operation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	op, ok := l.byID[id]
	if !ok {
		return Operation{}, false
	}
	return clone(op), true
}

// Head returns the current chain head hash.
func (l *Logger) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.head
}

// Anchor returns the hash the retained chain starts from.
func (l *Logger) Anchor() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.anchor
}

// Len returns the number of retained operations.
func (l *Logger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ops)
}

// #endregion queries

// #region hashing

// computeHash is sha256(previous_hash || JCS(operation without hash)).
func computeHash(op *Operation) (string, error) {
	hashable := *op
	hashable.Hash = ""
	raw, err := json.Marshal(hashable)
	if err != nil {
		return "", fmt.Errorf("marshal operation: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize operation: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(op.PreviousHash))
	h.Write(canonical)
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// #endregion hashing

// #region sanitize

// sanitizeMap normalizes values to JSON-native types and replaces
// non-finite numbers with string markers. ok is false if any were found.
func sanitizeMap(m map[string]any) (map[string]any, bool) {
	out := make(map[string]any, len(m))
	ok := true
	for k, v := range m {
		sv, vok := sanitizeValue(v)
		out[k] = sv
		ok = ok && vok
	}
	return out, ok
}

func sanitizeValue(v any) (any, bool) {
	switch x := v.(type) {
	case nil, bool, string:
		return x, true
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case map[string]any:
		return sanitizeMap(x)
	case []any:
		out := make([]any, len(x))
		ok := true
		for i, e := range x {
			var eok bool
			out[i], eok = sanitizeValue(e)
			ok = ok && eok
		}
		return out, ok
	case []float64:
		out := make([]any, len(x))
		ok := true
		for i, f := range x {
			var fok bool
			out[i], fok = finite(f)
			ok = ok && fok
		}
		return out, ok
	}
	// everything else goes through JSON so persisted and in-memory forms match
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("unserializable: %T", v), false
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Sprintf("unserializable: %T", v), false
	}
	return sanitizeValue(generic)
}

func finite(f float64) (any, bool) {
	switch {
	case math.IsNaN(f):
		return "NaN", false
	case math.IsInf(f, 1):
		return "+Inf", false
	case math.IsInf(f, -1):
		return "-Inf", false
	}
	return f, true
}

func sanitizeMetadata(m Metadata) (Metadata, bool, bool) {
	confidenceOK := !math.IsNaN(m.ConfidenceScore) && !math.IsInf(m.ConfidenceScore, 0) &&
		m.ConfidenceScore >= 0 && m.ConfidenceScore <= 1
	if math.IsNaN(m.ConfidenceScore) || math.IsInf(m.ConfidenceScore, 0) {
		m.ConfidenceScore = 0
	}
	timingOK := !math.IsNaN(m.ExecutionTimeMs) && !math.IsInf(m.ExecutionTimeMs, 0) && m.ExecutionTimeMs >= 0
	if math.IsNaN(m.ExecutionTimeMs) || math.IsInf(m.ExecutionTimeMs, 0) {
		m.ExecutionTimeMs = -1
	}
	if m.Extra != nil {
		m.Extra, _ = sanitizeMap(m.Extra)
	}
	return m, confidenceOK, timingOK
}

// clone deep-copies op so callers never share maps or slices with the log.
func clone(op *Operation) Operation {
	out := *op
	out.Inputs = cloneMap(op.Inputs)
	out.Outputs = cloneMap(op.Outputs)
	out.Metadata.Extra = cloneMap(op.Metadata.Extra)
	out.Provenance.Dependencies = cloneStrings(op.Provenance.Dependencies)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// #endregion sanitize
