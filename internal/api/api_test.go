package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/facebookgo/clock"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/athena/internal/company"
	"github.com/sells-group/athena/internal/company/companytest"
	"github.com/sells-group/athena/internal/match"
	"github.com/sells-group/athena/internal/reconcile"
	"github.com/sells-group/athena/internal/scorer"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	store  *companytest.MemStore
	scorer *scorer.Scorer
	runner *reconcile.Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := companytest.New()

	c := &company.Company{Name: "Heliox", Website: "https://heliox.ai"}
	require.NoError(t, st.InsertCompany(ctx, c))
	require.NoError(t, st.InsertSignal(ctx, &company.Signal{
		CompanyID: c.ID, SourceName: "Seedcamp", Layer: company.LayerCurated, Title: "Seedcamp portfolio",
	}))
	require.NoError(t, st.InsertSignal(ctx, &company.Signal{
		CompanyID: c.ID, SourceName: "HackerNews", Layer: company.LayerRealtime,
		Title: "Show HN: Heliox", Metadata: `{"points":120,"num_comments":10}`,
	}))
	require.NoError(t, st.InsertProgram(ctx, &company.Program{CompanyID: c.ID, ProgramName: "Seedcamp"}))

	clk := clock.NewMock()
	sc := scorer.New(st, scorer.DefaultHeatConfig(), clk)
	cons := company.NewConsolidator(st, match.NewMatcher(match.DefaultOptions()))
	return &fixture{store: st, scorer: sc, runner: reconcile.NewRunner(st, cons, sc, clk)}
}

func (f *fixture) handler(opts ...Option) http.Handler {
	return NewServer(f.store, f.scorer, f.runner, opts...).Handler()
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := do(t, f.handler(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	down := f.handler(WithPing(func(context.Context) error { return eris.New("db down") }))
	rec = do(t, down, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCompanyScore(t *testing.T) {
	f := newFixture(t)
	rec := do(t, f.handler(), http.MethodGet, "/api/company/1/score")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var b scorer.Breakdown
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	// Seedcamp tier A (4) + HN traction (2) + two sources (1).
	assert.Equal(t, 7, b.Total)
	assert.Equal(t, 4, b.Components[scorer.ComponentProgram].Score)
	assert.Equal(t, 2, b.Components[scorer.ComponentBuzz].Score)
	assert.Equal(t, 1, b.Components[scorer.ComponentSources].Score)
	assert.False(t, b.Rising)
}

func TestCompanyScore_Errors(t *testing.T) {
	f := newFixture(t)
	h := f.handler()

	rec := do(t, h, http.MethodGet, "/api/company/999/score")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"company not found"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/company/abc/score")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/company/0/score")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type failingScorer struct{}

func (failingScorer) Breakdown(context.Context, int64) (*scorer.Breakdown, error) {
	return nil, eris.New("boom")
}

func TestCompanyScore_InternalError(t *testing.T) {
	f := newFixture(t)
	h := NewServer(f.store, failingScorer{}, f.runner).Handler()
	rec := do(t, h, http.MethodGet, "/api/company/1/score")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestCrossLayer(t *testing.T) {
	f := newFixture(t)
	rec := do(t, f.handler(), http.MethodGet, "/api/cross-layer")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count   int                       `json:"count"`
		Matches []company.CrossLayerMatch `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Matches, 1)
	assert.Equal(t, "Heliox", body.Matches[0].Name)
	assert.Equal(t, 2, body.Matches[0].SourceCount)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	rec := do(t, f.handler(), http.MethodPost, "/api/reconcile")
	require.Equal(t, http.StatusOK, rec.Code)

	var rep reconcile.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, 1, rep.Scored)
	assert.Len(t, rep.Phases, 3)

	c, err := f.store.GetCompany(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 7, c.HeatScore)
}

func TestReconcile_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rec := do(t, f.handler(), http.MethodGet, "/api/reconcile")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type stubRunner struct{ err error }

func (s stubRunner) Run(context.Context) (*reconcile.Report, error) {
	rep := &reconcile.Report{RunID: "r1"}
	if s.err != nil {
		rep.Phases = []reconcile.PhaseResult{
			{Name: reconcile.PhaseConsolidate},
			{Name: reconcile.PhaseRescore, Error: s.err.Error()},
		}
	}
	return rep, s.err
}

func TestReconcile_Conflict(t *testing.T) {
	f := newFixture(t)
	err := eris.Wrap(reconcile.ErrPassInProgress, "reconcile: lock held by another process")
	h := NewServer(f.store, f.scorer, stubRunner{err: err}).Handler()

	rec := do(t, h, http.MethodPost, "/api/reconcile")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReconcile_Failure(t *testing.T) {
	f := newFixture(t)
	h := NewServer(f.store, f.scorer, stubRunner{err: eris.New("reconcile: rescore: disk full")}).Handler()

	rec := do(t, h, http.MethodPost, "/api/reconcile")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `"run_id":"r1"`))
	assert.Contains(t, body, `"error":"internal error"`)
	assert.Contains(t, body, `"error":"failed"`)
	assert.NotContains(t, body, "disk full")
}

func TestCORS(t *testing.T) {
	f := newFixture(t)
	h := f.handler(WithAllowedOrigins([]string{"https://app.example.com"}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
