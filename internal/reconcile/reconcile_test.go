package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/athena/internal/company"
	"github.com/sells-group/athena/internal/company/companytest"
	"github.com/sells-group/athena/internal/scorer"
	"github.com/sells-group/athena/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// seed inserts two duplicate records and one unrelated company into ing.
// After consolidation the survivor has a curated and a realtime signal.
func seed(t *testing.T, ing company.Ingester) {
	t.Helper()
	ctx := context.Background()

	dup := company.Company{Name: "NovaMind"}
	require.NoError(t, ing.InsertCompany(ctx, &dup))
	survivor := company.Company{Name: "NovaMind AI", Description: "LLM tooling", Website: "https://novamind.ai"}
	require.NoError(t, ing.InsertCompany(ctx, &survivor))
	other := company.Company{Name: "Teleport"}
	require.NoError(t, ing.InsertCompany(ctx, &other))

	require.NoError(t, ing.InsertSignal(ctx, &company.Signal{
		CompanyID:  dup.ID,
		SourceName: "HackerNews",
		Layer:      company.LayerRealtime,
		Metadata:   `{"points":350,"num_comments":20}`,
		DetectedAt: "1960-01-01",
	}))
	require.NoError(t, ing.InsertSignal(ctx, &company.Signal{
		CompanyID:  survivor.ID,
		SourceName: "Seedcamp",
		Layer:      company.LayerCurated,
		DetectedAt: "1960-01-01",
	}))
	require.NoError(t, ing.InsertProgram(ctx, &company.Program{
		CompanyID:   survivor.ID,
		ProgramName: "Y Combinator",
		DetectedAt:  "1960-01-01",
	}))
}

func newRunner(st company.Store) *Runner {
	clk := clock.NewMock()
	return NewRunner(st, company.NewConsolidator(st, nil), scorer.New(st, scorer.DefaultHeatConfig(), clk), clk)
}

func TestRun_FullPass(t *testing.T) {
	ctx := context.Background()
	st := companytest.New()
	seed(t, st)

	rep, err := newRunner(st).Run(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, rep.RunID)
	require.Len(t, rep.Phases, 3)
	assert.Equal(t, PhaseConsolidate, rep.Phases[0].Name)
	assert.Equal(t, PhaseCrossLayer, rep.Phases[1].Name)
	assert.Equal(t, PhaseRescore, rep.Phases[2].Name)
	for _, p := range rep.Phases {
		assert.Empty(t, p.Error)
	}

	require.Len(t, rep.Merge.Merges, 1)
	assert.Equal(t, "NovaMind AI", rep.Merge.Merges[0].KeptName)

	require.Len(t, rep.CrossLayer, 1, "cross-layer sees the merged company")
	assert.Equal(t, "NovaMind AI", rep.CrossLayer[0].Name)
	assert.Equal(t, 2, rep.CrossLayer[0].SourceCount)

	assert.Equal(t, 2, rep.Scored)
	assert.Equal(t, scorer.ConfigHash(scorer.DefaultHeatConfig()), rep.ConfigHash)
	assert.Nil(t, rep.Distribution, "memory store reports no stats")

	kept := rep.Merge.Merges[0].KeptID
	c, err := st.GetCompany(ctx, kept)
	require.NoError(t, err)
	// Tier A (4) + HN viral (3) + two sources (1); the 1960 signals are stale.
	assert.Equal(t, 8, c.HeatScore)
	assert.Zero(t, st.Orphans())
}

func TestRun_SecondPassIsStable(t *testing.T) {
	ctx := context.Background()
	st := companytest.New()
	seed(t, st)
	r := newRunner(st)

	_, err := r.Run(ctx)
	require.NoError(t, err)
	rep, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Merge.Merges)
	assert.Equal(t, 2, rep.Scored)
}

func TestRun_RejectsConcurrentPass(t *testing.T) {
	r := newRunner(companytest.New())
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrPassInProgress)
}

type lockingStore struct {
	*companytest.MemStore
	held     bool
	lockErr  error
	unlocked int
}

func (s *lockingStore) TryLock(context.Context) (func(), bool, error) {
	if s.lockErr != nil {
		return nil, false, s.lockErr
	}
	if s.held {
		return nil, false, nil
	}
	return func() { s.unlocked++ }, true, nil
}

func TestRun_StoreLock(t *testing.T) {
	st := &lockingStore{MemStore: companytest.New()}
	seed(t, st)

	_, err := newRunner(st).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.unlocked)

	st.held = true
	_, err = newRunner(st).Run(context.Background())
	assert.ErrorIs(t, err, ErrPassInProgress)

	st.held = false
	st.lockErr = errors.New("conn closed")
	_, err = newRunner(st).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire lock")
}

func TestExclusive(t *testing.T) {
	ctx := context.Background()
	st := &lockingStore{MemStore: companytest.New()}
	r := newRunner(st)

	calls := 0
	err := r.Exclusive(ctx, func(context.Context) error {
		calls++
		_, err := r.Run(ctx)
		assert.ErrorIs(t, err, ErrPassInProgress, "a full pass waits for the partial one")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, st.unlocked)

	err = r.Exclusive(ctx, func(context.Context) error { return errors.New("rescore failed") })
	assert.EqualError(t, err, "rescore failed")
	assert.Equal(t, 2, st.unlocked)

	st.held = true
	err = r.Exclusive(ctx, func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrPassInProgress)
	assert.Equal(t, 1, calls, "fn does not run without the lock")
}

func TestRun_PhaseFailureStopsPass(t *testing.T) {
	st := companytest.New()
	seed(t, st)
	st.Fail = func(op string, _ int64) error {
		if op == "snapshot" {
			return errors.New("disk full")
		}
		return nil
	}

	rep, err := newRunner(st).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile: rescore")
	require.NotNil(t, rep)
	require.Len(t, rep.Phases, 3)
	assert.Contains(t, rep.Phases[2].Error, "disk full")
	require.Len(t, rep.Merge.Merges, 1, "earlier phases are reported")
}

func TestRun_ConsolidateFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := companytest.New()
	seed(t, st)
	rep, err := newRunner(st).Run(ctx)
	require.Error(t, err)
	require.Len(t, rep.Phases, 1)
	assert.Equal(t, PhaseConsolidate, rep.Phases[0].Name)
}

func TestRun_SQLiteStats(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(ctx, filepath.Join(t.TempDir(), "athena.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))
	seed(t, st)

	rep, err := newRunner(st).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 1, 8: 1}, rep.Distribution)
	require.Len(t, rep.Rising, 1)
	assert.Equal(t, "NovaMind AI", rep.Rising[0].Name)
	assert.Equal(t, 7, rep.Rising[0].Delta)
}
