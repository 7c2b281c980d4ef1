package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/s8ken/yseeku-platform-sub012/internal/adversarial"
	"github.com/s8ken/yseeku-platform-sub012/internal/audit"
	"github.com/s8ken/yseeku-platform-sub012/internal/config"
	"github.com/s8ken/yseeku-platform-sub012/internal/dimensions"
	"github.com/s8ken/yseeku-platform-sub012/internal/embedding"
	"github.com/s8ken/yseeku-platform-sub012/internal/judge"
	"github.com/s8ken/yseeku-platform-sub012/internal/resonance"
	"github.com/s8ken/yseeku-platform-sub012/internal/session"
	"github.com/s8ken/yseeku-platform-sub012/internal/telemetry"
)

// Build wires an Engine from cfg: hash embedder, optional judge-backed deep
// check, default extractors, audit log (restored from SQLite when a path is
// set) and session store. The returned func releases everything Build opened.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Engine, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*Engine, func() error, error) {
		_ = closeAll()
		return nil, nil, err
	}

	embedder := embedding.NewHashEmbedder(embedding.DefaultHashConfig())

	var deep adversarial.DeepChecker
	if cfg.Adversarial.DeepCheck {
		client, err := judge.NewClient(cfg.JudgeConfig())
		if err != nil {
			return fail(fmt.Errorf("judge client: %w", err))
		}
		closers = append(closers, client.Close)
		deep = client
	}
	detector := adversarial.NewDetector(embedder, deep, cfg.AdversarialConfig(), logger)

	composer, err := resonance.NewComposer(detector,
		dimensions.Defaults(embedder, dimensions.DefaultConfig()),
		cfg.ResonanceConfig(),
		resonance.WithLogger(logger),
	)
	if err != nil {
		return fail(err)
	}

	log, err := openAudit(ctx, cfg, logger, &closers)
	if err != nil {
		return fail(err)
	}

	var store session.Store = session.NewMemoryStore()
	if cfg.Session.DBPath != "" {
		sqlStore, err := session.NewSQLiteStore(cfg.Session.DBPath)
		if err != nil {
			return fail(fmt.Errorf("session store: %w", err))
		}
		store = sqlStore
	}
	closers = append(closers, store.Close)

	instruments, err := telemetry.NewInstruments(nil)
	if err != nil {
		return fail(err)
	}

	ec := DefaultConfig()
	ec.Thresholds = cfg.Thresholds
	ec.Stickiness = cfg.Stickiness
	ec.ModelVersion = cfg.Audit.ModelVersion
	ec.HistoryLimit = cfg.Session.HistoryLimit

	eng, err := New(composer, log, ec,
		WithStore(store),
		WithEmbedder(embedder),
		WithInstruments(instruments),
		WithLogger(logger),
	)
	if err != nil {
		return fail(err)
	}
	return eng, closeAll, nil
}

func openAudit(ctx context.Context, cfg config.Config, logger *slog.Logger, closers *[]func() error) (*audit.Logger, error) {
	ac := cfg.AuditConfig(logger)
	if cfg.Audit.DBPath == "" {
		return audit.NewLogger(ac), nil
	}
	store, err := audit.NewSQLiteStore(cfg.Audit.DBPath)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	*closers = append(*closers, store.Close)
	ops, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	if ac.Capacity > 0 && len(ops) > ac.Capacity {
		ops = ops[len(ops)-ac.Capacity:]
	}
	ac.Sink = store
	log, err := audit.Restore(ops, ac)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "audit log restored", "operations", len(ops), "head", log.Head())
	return log, nil
}
