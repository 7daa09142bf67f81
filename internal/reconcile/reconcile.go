// Package reconcile runs the ordered reconciliation pass: duplicate
// consolidation, then cross-layer detection, then rescoring.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/athena/internal/company"
	"github.com/sells-group/athena/internal/scorer"
	"github.com/sells-group/athena/internal/store"
)

// ErrPassInProgress is returned when another pass holds the store.
var ErrPassInProgress = errors.New("reconcile: pass already in progress")

// Phase names, in execution order.
const (
	PhaseConsolidate = "consolidate"
	PhaseCrossLayer  = "cross_layer"
	PhaseRescore     = "rescore"
)

// Locker is implemented by stores that can exclude passes running in other
// processes.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

// Stats is implemented by stores that can summarize scores after a pass.
type Stats interface {
	ScoreDistribution(ctx context.Context) (map[int]int, error)
	RisingCompanies(ctx context.Context, minDelta, limit int) ([]store.Rising, error)
}

// PhaseResult records the outcome of one phase.
type PhaseResult struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Report summarizes a pass.
type Report struct {
	RunID        string                    `json:"run_id"`
	StartedAt    time.Time                 `json:"started_at"`
	FinishedAt   time.Time                 `json:"finished_at"`
	Phases       []PhaseResult             `json:"phases"`
	Merge        *company.MergeReport      `json:"merge"`
	CrossLayer   []company.CrossLayerMatch `json:"cross_layer"`
	Scored       int                       `json:"scored"`
	ConfigHash   string                    `json:"config_hash"`
	Distribution map[int]int               `json:"distribution,omitempty"`
	Rising       []store.Rising            `json:"rising,omitempty"`
}

// Runner executes reconciliation passes. At most one pass runs at a time
// per Runner, and per database when the store implements Locker.
type Runner struct {
	store        company.Store
	consolidator *company.Consolidator
	scorer       *scorer.Scorer
	clk          clock.Clock

	// RisingLimit caps Report.Rising. Zero means 20.
	RisingLimit int

	mu sync.Mutex
}

// NewRunner creates a Runner. A nil clk uses the wall clock.
func NewRunner(st company.Store, c *company.Consolidator, s *scorer.Scorer, clk clock.Clock) *Runner {
	if clk == nil {
		clk = clock.New()
	}
	return &Runner{store: st, consolidator: c, scorer: s, clk: clk}
}

// Exclusive runs fn under the same locks as a full pass, so that partial
// passes (consolidate only, rescore only) cannot interleave with one. It
// returns ErrPassInProgress when either lock is already held.
func (r *Runner) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if !r.mu.TryLock() {
		return ErrPassInProgress
	}
	defer r.mu.Unlock()

	if l, ok := r.store.(Locker); ok {
		unlock, held, err := l.TryLock(ctx)
		if err != nil {
			return eris.Wrap(err, "reconcile: acquire lock")
		}
		if !held {
			return eris.Wrap(ErrPassInProgress, "reconcile: lock held by another process")
		}
		defer unlock()
	}
	return fn(ctx)
}

// Run executes one full pass. A phase failure stops the pass; the report
// returned alongside the error covers the phases that ran.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	var rep *Report
	err := r.Exclusive(ctx, func(ctx context.Context) error {
		var err error
		rep, err = r.run(ctx)
		return err
	})
	return rep, err
}

func (r *Runner) run(ctx context.Context) (*Report, error) {
	rep := &Report{
		RunID:      uuid.NewString(),
		StartedAt:  r.clk.Now().UTC(),
		ConfigHash: r.scorer.Hash(),
	}
	log := zap.L().With(zap.String("run_id", rep.RunID))
	log.Info("reconcile: pass starting")

	phase := func(name string, fn func() error) error {
		start := r.clk.Now()
		err := fn()
		res := PhaseResult{Name: name, DurationMs: r.clk.Now().Sub(start).Milliseconds()}
		if err != nil {
			res.Error = err.Error()
			log.Error("reconcile: phase failed", zap.String("phase", name), zap.Error(err))
		} else {
			log.Info("reconcile: phase complete", zap.String("phase", name), zap.Int64("duration_ms", res.DurationMs))
		}
		rep.Phases = append(rep.Phases, res)
		return err
	}

	err := phase(PhaseConsolidate, func() error {
		var err error
		rep.Merge, err = r.consolidator.Consolidate(ctx)
		return err
	})
	if err == nil {
		err = phase(PhaseCrossLayer, func() error {
			var err error
			rep.CrossLayer, err = company.FindCrossLayer(ctx, r.store)
			return err
		})
	}
	if err == nil {
		err = phase(PhaseRescore, func() error {
			var err error
			rep.Scored, err = r.scorer.RescoreAll(ctx)
			return err
		})
	}
	rep.FinishedAt = r.clk.Now().UTC()
	if err != nil {
		return rep, eris.Wrapf(err, "reconcile: %s", rep.Phases[len(rep.Phases)-1].Name)
	}

	if st, ok := r.store.(Stats); ok {
		if rep.Distribution, err = st.ScoreDistribution(ctx); err != nil {
			return rep, eris.Wrap(err, "reconcile: score distribution")
		}
		limit := r.RisingLimit
		if limit <= 0 {
			limit = 20
		}
		if rep.Rising, err = st.RisingCompanies(ctx, scorer.RisingThreshold, limit); err != nil {
			return rep, eris.Wrap(err, "reconcile: rising companies")
		}
	}

	log.Info("reconcile: pass complete",
		zap.Int("merges", len(rep.Merge.Merges)),
		zap.Int("failed_merges", len(rep.Merge.Failed)),
		zap.Int("cross_layer", len(rep.CrossLayer)),
		zap.Int("scored", rep.Scored),
		zap.Int("rising", len(rep.Rising)),
	)
	return rep, nil
}
