package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/athena/internal/company"
	"github.com/sells-group/athena/internal/match"
	"github.com/sells-group/athena/internal/reconcile"
	"github.com/sells-group/athena/internal/resilience"
	"github.com/sells-group/athena/internal/scorer"
	"github.com/sells-group/athena/internal/store"
)

// engine bundles the store with the stages built on it.
type engine struct {
	Store        store.Store
	Consolidator *company.Consolidator
	Scorer       *scorer.Scorer
	Runner       *reconcile.Runner
}

// Close releases the store.
func (e *engine) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

// openStore validates the config, opens the store and ensures its schema.
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	retry := resilience.FromRetryConfig(cfg.Retry)
	st, err := store.Open(ctx, cfg.Store, retry)
	if err != nil {
		return nil, err
	}
	// The schema statements are idempotent, so a migration cut short by a
	// dropped connection is safe to run again.
	retry.OnRetry = resilience.RetryLogger("store.migrate")
	if err := resilience.Do(ctx, retry, st.Migrate); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEngine opens the store and wires the engine stages from cfg.
func initEngine(ctx context.Context, mode string) (*engine, error) {
	heat := scorer.Resolve(cfg.Heat)
	if err := scorer.ValidateConfig(heat); err != nil {
		return nil, err
	}

	st, err := openStore(ctx, mode)
	if err != nil {
		return nil, err
	}

	sc := scorer.New(st, heat, nil)
	cons := company.NewConsolidator(st, match.NewMatcher(match.OptionsFromConfig(cfg.Match)))
	return &engine{
		Store:        st,
		Consolidator: cons,
		Scorer:       sc,
		Runner:       reconcile.NewRunner(st, cons, sc, nil),
	}, nil
}
