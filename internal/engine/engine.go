// Package engine is the scoring facade: it serializes turns per session,
// owns each session's threshold manager, applies stickiness and records
// every step in the audit log.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/s8ken/yseeku-platform-sub012/internal/audit"
	"github.com/s8ken/yseeku-platform-sub012/internal/dimensions"
	"github.com/s8ken/yseeku-platform-sub012/internal/embedding"
	"github.com/s8ken/yseeku-platform-sub012/internal/lexicon"
	"github.com/s8ken/yseeku-platform-sub012/internal/resonance"
	"github.com/s8ken/yseeku-platform-sub012/internal/session"
	"github.com/s8ken/yseeku-platform-sub012/internal/telemetry"
	"github.com/s8ken/yseeku-platform-sub012/internal/threshold"
)

// #region engine

type sessionState struct {
	mu         sync.Mutex
	thresholds *threshold.Manager
	history    []float64 // used when no store is configured
	responses  []string  // recent response texts for identity coherence
	ended      bool
}

// Engine is safe for concurrent use. Turns of one session run in order;
// different sessions run in parallel.
type Engine struct {
	composer *resonance.Composer
	audit    *audit.Logger
	store    session.Store
	embedder embedding.Embedder
	metrics  *telemetry.Instruments
	config   Config
	logger   *slog.Logger
	clock    func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// Option customizes an Engine.
type Option func(*Engine)

// WithStore persists session state and score history.
func WithStore(s session.Store) Option { return func(e *Engine) { e.store = s } }

// WithEmbedder sets the embedder used for identity coherence.
func WithEmbedder(em embedding.Embedder) Option { return func(e *Engine) { e.embedder = em } }

// WithInstruments records metrics on in.
func WithInstruments(in *telemetry.Instruments) Option { return func(e *Engine) { e.metrics = in } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l.With("component", "engine") }
}

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option { return func(e *Engine) { e.clock = clock } }

// New creates an Engine. The threshold configuration is validated here so
// per-session managers cannot fail later.
func New(composer *resonance.Composer, log *audit.Logger, config Config, opts ...Option) (*Engine, error) {
	if composer == nil || log == nil {
		return nil, errors.New("engine: composer and audit logger are required")
	}
	if _, err := threshold.NewManager(config.Thresholds); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e := &Engine{
		composer: composer,
		audit:    log,
		config:   config,
		logger:   slog.Default().With("component", "engine"),
		clock:    time.Now,
		sessions: make(map[string]*sessionState),
	}
	for _, o := range opts {
		o(e)
	}
	if e.embedder == nil {
		e.embedder = embedding.NewHashEmbedder(embedding.DefaultHashConfig())
	}
	if e.metrics == nil {
		in, err := telemetry.NewInstruments(nil)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		e.metrics = in
	}
	return e, nil
}

func (e *Engine) session(id string) *sessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		m, _ := threshold.NewManager(e.config.Thresholds)
		s = &sessionState{thresholds: m}
		e.sessions[id] = s
	}
	return s
}

// lock returns the live session locked. A session ended while the caller
// waited is replaced by a fresh one.
func (e *Engine) lock(id string) *sessionState {
	for {
		s := e.session(id)
		s.mu.Lock()
		if !s.ended {
			return s
		}
		s.mu.Unlock()
	}
}

// EndSession destroys the session's detector state once any in-flight turn
// has finished. Persisted state and history are kept.
func (e *Engine) EndSession(sessionID string) {
	e.mu.Lock()
	s, ok := e.sessions[sessionID]
	e.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	e.mu.Lock()
	if e.sessions[sessionID] == s {
		delete(e.sessions, sessionID)
	}
	e.mu.Unlock()
}

// Sessions returns the number of live sessions.
func (e *Engine) Sessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// #endregion engine

// #region score

// Score runs one turn.
func (e *Engine) Score(ctx context.Context, req ScoreRequest) (ScoreResult, error) {
	if req.SessionID == "" {
		return ScoreResult{}, ErrSessionRequired
	}
	s := e.lock(req.SessionID)
	defer s.mu.Unlock()

	meta := audit.Metadata{
		SessionID:    req.SessionID,
		UserID:       req.UserID,
		TenantID:     req.TenantID,
		ModelVersion: e.config.ModelVersion,
	}
	rec := &recorder{ctx: ctx, log: e.audit, meta: meta}

	prior := req.Prior
	if prior == nil && e.store != nil {
		stored, err := e.store.Get(ctx, req.SessionID)
		switch {
		case err == nil:
			prior = &stored.State
		case !errors.Is(err, session.ErrNotFound):
			e.logger.WarnContext(ctx, "session state unavailable", "session", req.SessionID, "error", err)
		}
	}
	tr := req.Transcript
	var carried resonance.DynamicScaffold
	if prior != nil {
		carried = prior.DynamicScaffold
	}
	tr.Scaffold = e.composer.AdvanceScaffold(carried, tr.UserInput)

	start := e.clock()
	er, err := e.composer.Compose(ctx, tr, s.thresholds)
	elapsed := ms(e.clock().Sub(start))
	if err != nil {
		rec.add("resonance_composition", map[string]any{"text_length": len(req.Transcript.Text)},
			map[string]any{"error": err.Error()}, 0, elapsed, true)
		e.logger.ErrorContext(ctx, "composition failed", "session", req.SessionID, "error", err)
		return ScoreResult{}, fmt.Errorf("score session %s: %w", req.SessionID, err)
	}
	fresh := er.RM
	empty := len(lexicon.Tokenize(lexicon.Normalize(req.Transcript.Text))) == 0

	e.recordComposition(rec, req, er, empty, elapsed)

	// adaptive thresholds see this turn only after it was scored against them
	obs := map[string]float64{}
	if !empty {
		obs[threshold.MetricAdversarial] = er.Adversarial.Composite
	}
	if !empty && !er.Adversarial.IsAdversarial {
		obs[threshold.MetricResonance] = fresh
		failed := make(map[string]bool, len(er.Uncertainty.FailedDimensions))
		for _, f := range er.Uncertainty.FailedDimensions {
			failed[f] = true
		}
		for _, name := range dimensions.Order {
			if !failed[name] {
				obs[name] = dimensionOf(er.Breakdown, name).Score
			}
		}
	}
	states := s.thresholds.Update(obs)
	if len(obs) > 0 {
		rec.add("threshold_update", toAny(obs), thresholdOutputs(states), 1, 0, false)
	}
	for metricName, st := range states {
		if st.IsChangePoint {
			e.metrics.ChangePoints.Add(ctx, 1, metric.WithAttributes(attribute.String("metric", metricName)))
		}
	}

	// stickiness
	now := e.clock().UTC()
	var next resonance.SessionState
	if empty || er.Adversarial.IsAdversarial {
		next = resonance.SessionState{LastRM: fresh, LastScaffoldHash: resonance.ScaffoldHash(er.ScaffoldTerms), UpdatedAt: now}
		er.AuditTrail = append(er.AuditTrail, "Stickiness: skipped")
	} else {
		var note string
		er.RM, note, next = e.config.Stickiness.Blend(prior, fresh, er.ScaffoldTerms, req.TurnsElapsed, now)
		er.Status = resonance.StatusFor(er.RM)
		er.AuditTrail = append(er.AuditTrail, note)
		var priorRM any
		if prior != nil {
			priorRM = prior.LastRM
		}
		rec.add("stickiness_blend",
			map[string]any{"fresh_r_m": fresh, "prior_r_m": priorRM, "turns_elapsed": req.TurnsElapsed},
			map[string]any{"r_m": er.RM, "decay_turns": next.DecayTurns, "note": note},
			1, 0, er.RM < 0 || er.RM > 1)
	}
	next.DynamicScaffold = tr.Scaffold

	coherence := e.identityCoherence(ctx, s, req.Transcript.Text, empty)

	history := e.appendHistory(ctx, s, req.SessionID, next, er)
	res := ScoreResult{
		SessionID:    req.SessionID,
		Resonance:    er,
		FreshRM:      fresh,
		Session:      next,
		Thresholds:   states,
		Identity:     coherence,
		Drift:        resonance.DetectDrift(history, e.config.DriftThreshold),
		Trend:        resonance.DetectTrend(history, e.config.TrendWindow, e.config.TrendSlope),
		OperationIDs: rec.ids,
	}
	if res.Drift {
		e.logger.InfoContext(ctx, "score drift detected", "session", req.SessionID, "r_m", er.RM)
	}

	e.metrics.Scores.Record(ctx, er.RM)
	if er.Adversarial.IsAdversarial {
		e.metrics.Adversarial.Add(ctx, 1)
	}
	if er.Uncertainty.FallbackMode {
		e.metrics.Fallbacks.Add(ctx, 1)
	}
	if rec.err != nil {
		e.logger.ErrorContext(ctx, "audit append failed", "session", req.SessionID, "error", rec.err)
	}
	return res, nil
}

// identityCoherence adds text to the session's recent responses and scores
// their consistency. Embedding failures are logged and count as coherent.
func (e *Engine) identityCoherence(ctx context.Context, s *sessionState, text string, empty bool) float64 {
	if !empty {
		s.responses = append(s.responses, text)
		if n := e.config.IdentityWindow; n > 0 && len(s.responses) > n {
			s.responses = s.responses[len(s.responses)-n:]
		}
	}
	c, err := resonance.IdentityCoherence(ctx, e.embedder, s.responses)
	if err != nil {
		e.logger.WarnContext(ctx, "identity coherence unavailable", "error", err)
		return 1
	}
	return c
}

// UpdateThresholds feeds observations to the session's threshold manager.
func (e *Engine) UpdateThresholds(sessionID string, observations map[string]float64) map[string]threshold.State {
	s := e.lock(sessionID)
	defer s.mu.Unlock()
	return s.thresholds.Update(observations)
}

// Thresholds returns the session's current threshold states.
func (e *Engine) Thresholds(sessionID string) map[string]threshold.State {
	s := e.lock(sessionID)
	defer s.mu.Unlock()
	return s.thresholds.Snapshot()
}

func (e *Engine) appendHistory(ctx context.Context, s *sessionState, id string, next resonance.SessionState, er resonance.ExplainedResonance) []float64 {
	limit := e.config.HistoryLimit
	if e.store == nil {
		s.history = append(s.history, er.RM)
		if limit > 0 && len(s.history) > limit {
			s.history = s.history[len(s.history)-limit:]
		}
		return s.history
	}

	rec, err := e.store.Get(ctx, id)
	turns := 0
	if err == nil {
		turns = rec.Turns
	}
	turns++
	if err := e.store.Put(ctx, session.Record{SessionID: id, State: next, Turns: turns}); err != nil {
		e.logger.WarnContext(ctx, "persist session state", "session", id, "error", err)
	}
	if err := e.store.AppendScore(ctx, id, session.Score{Turn: turns, RM: er.RM, Status: er.Status, CreatedAt: next.UpdatedAt}); err != nil {
		e.logger.WarnContext(ctx, "persist score", "session", id, "error", err)
	}
	scores, err := e.store.History(ctx, id, limit)
	if err != nil {
		e.logger.WarnContext(ctx, "load score history", "session", id, "error", err)
		return []float64{er.RM}
	}
	out := make([]float64, len(scores))
	for i, sc := range scores {
		out[i] = sc.RM
	}
	return out
}

// #endregion score

// #region audit

// LogOperation appends a caller-supplied operation.
func (e *Engine) LogOperation(ctx context.Context, in audit.OperationInput) (string, error) {
	if in.Metadata.ModelVersion == "" {
		in.Metadata.ModelVersion = e.config.ModelVersion
	}
	return e.audit.LogContext(ctx, in)
}

// GenerateAuditTrail returns the session's operations with chain context.
func (e *Engine) GenerateAuditTrail(sessionID string) audit.Trail {
	t := e.audit.Trail(sessionID)
	if !t.IntegrityVerified {
		e.metrics.IntegrityFailures.Add(context.Background(), 1)
	}
	return t
}

// ExportAuditTrail renders the whole log as json or csv.
func (e *Engine) ExportAuditTrail(format string) (string, error) {
	b, err := e.audit.Export(format)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyIntegrity checks the audit chain.
func (e *Engine) VerifyIntegrity() bool {
	if e.audit.VerifyIntegrity() {
		return true
	}
	e.metrics.IntegrityFailures.Add(context.Background(), 1)
	return false
}

// Audit exposes the underlying log.
func (e *Engine) Audit() *audit.Logger { return e.audit }

// #endregion audit
