package company_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/athena/internal/company"
	"github.com/sells-group/athena/internal/company/companytest"
)

func seedCompany(t *testing.T, s *companytest.MemStore, c company.Company) int64 {
	t.Helper()
	require.NoError(t, s.InsertCompany(context.Background(), &c))
	return c.ID
}

func seedSignal(t *testing.T, s *companytest.MemStore, companyID int64, source string, layer company.Layer) {
	t.Helper()
	require.NoError(t, s.InsertSignal(context.Background(), &company.Signal{
		CompanyID:  companyID,
		SourceName: source,
		Layer:      layer,
	}))
}

func TestConsolidate_MergesContainment(t *testing.T) {
	ctx := context.Background()
	s := companytest.New()

	poor := seedCompany(t, s, company.Company{Name: "NovaMind", Sector: "Other"})
	rich := seedCompany(t, s, company.Company{
		Name:        "NovaMind AI",
		Description: "LLM tooling",
		Website:     "https://novamind.ai",
	})
	other := seedCompany(t, s, company.Company{Name: "Teleport"})
	seedSignal(t, s, poor, "HackerNews", company.LayerRealtime)
	seedSignal(t, s, rich, "Venture Kick", company.LayerCurated)
	require.NoError(t, s.InsertProgram(ctx, &company.Program{CompanyID: poor, ProgramName: "Seedcamp"}))

	report, err := company.NewConsolidator(s, nil).Consolidate(ctx)
	require.NoError(t, err)
	require.Len(t, report.Merges, 1)
	assert.Equal(t, rich, report.Merges[0].KeptID)
	assert.Equal(t, poor, report.Merges[0].RemovedID)
	assert.Equal(t, "NovaMind AI", report.Merges[0].KeptName)
	assert.Equal(t, "NovaMind", report.Merges[0].RemovedName)
	assert.Equal(t, "name containment match", report.Merges[0].Reason)
	assert.Empty(t, report.Failed)

	gone, err := s.GetCompany(ctx, poor)
	require.NoError(t, err)
	assert.Nil(t, gone)

	sigs, err := s.GetSignals(ctx, rich)
	require.NoError(t, err)
	assert.Len(t, sigs, 2)
	progs, err := s.GetPrograms(ctx, rich)
	require.NoError(t, err)
	assert.Len(t, progs, 1)

	untouched, err := s.GetCompany(ctx, other)
	require.NoError(t, err)
	require.NotNil(t, untouched)
	assert.Equal(t, 0, s.Orphans())
}

func TestConsolidate_FillsGaps(t *testing.T) {
	ctx := context.Background()
	s := companytest.New()

	keep := seedCompany(t, s, company.Company{
		Name:        "Resmonics",
		Description: "Respiratory monitoring",
		Website:     "https://resmonics.ch",
		Sector:      "Other",
	})
	seedCompany(t, s, company.Company{
		Name:      "Resmonics AG",
		City:      "Zurich",
		Sector:    "Health / Bio",
		Geography: "Switzerland",
	})

	report, err := company.NewConsolidator(s, nil).Consolidate(ctx)
	require.NoError(t, err)
	require.Len(t, report.Merges, 1)
	assert.Equal(t, "exact name match", report.Merges[0].Reason)

	got, err := s.GetCompany(ctx, keep)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Respiratory monitoring", got.Description)
	assert.Equal(t, "Zurich", got.City)
	assert.Equal(t, "Health / Bio", got.Sector)
	assert.Equal(t, "Switzerland", got.Geography)
}

func TestConsolidate_TieKeepsFirst(t *testing.T) {
	ctx := context.Background()
	s := companytest.New()

	first := seedCompany(t, s, company.Company{Name: "Climatix", City: "Oslo"})
	second := seedCompany(t, s, company.Company{Name: "Climatix GmbH", City: "Berlin"})

	report, err := company.NewConsolidator(s, nil).Consolidate(ctx)
	require.NoError(t, err)
	require.Len(t, report.Merges, 1)
	assert.Equal(t, first, report.Merges[0].KeptID)
	assert.Equal(t, second, report.Merges[0].RemovedID)
}

func TestConsolidate_DomainBucket(t *testing.T) {
	ctx := context.Background()
	s := companytest.New()

	// Different name prefixes, so only the domain bucket pairs them.
	seedCompany(t, s, company.Company{Name: "Heliox Energy", Website: "https://heliox.eu"})
	seedCompany(t, s, company.Company{Name: "The Heliox Team", Website: "https://www.heliox.eu"})
	seedCompany(t, s, company.Company{Name: "Project Heliox", Website: "https://heliox.eu/about"})

	report, err := company.NewConsolidator(s, nil).Consolidate(ctx)
	require.NoError(t, err)
	require.Len(t, report.Merges, 1)
	assert.Equal(t, "same domain (heliox.eu)", report.Merges[0].Reason)
}

func TestConsolidate_GenericDomainNotBucketed(t *testing.T) {
	ctx := context.Background()
	s := companytest.New()

	seedCompany(t, s, company.Company{Name: "Alpha Tools", Website: "https://github.com/alpha"})
	seedCompany(t, s, company.Company{Name: "Beta Tools", Website: "https://github.com/beta"})

	report, err := company.NewConsolidator(s, nil).Consolidate(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Merges)
	assert.Equal(t, 0, report.Compared)
}

func TestConsolidate_SkipsConsumedIDs(t *testing.T) {
	ctx := context.Background()
	s := companytest.New()

	a := seedCompany(t, s, company.Company{Name: "Quantix", Description: "d"})
	b := seedCompany(t, s, company.Company{Name: "Quantix AG", Website: "https://quantix.io"})
	c := seedCompany(t, s, company.Company{Name: "Quantix Ltd", Website: "https://quantix.io"})

	report, err := company.NewConsolidator(s, nil).Consolidate(ctx)
	require.NoError(t, err)

	// Equal richness keeps a, which picks up b's website; (a,c) then
	// merges and (b,c) is skipped because b is gone.
	require.Len(t, report.Merges, 2)
	assert.Equal(t, a, report.Merges[0].KeptID)
	assert.Equal(t, b, report.Merges[0].RemovedID)
	assert.Equal(t, a, report.Merges[1].KeptID)
	assert.Equal(t, c, report.Merges[1].RemovedID)
	assert.Equal(t, 1, report.Skipped)

	all, err := s.ListCompanies(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "https://quantix.io", all[0].Website)
}

func TestConsolidate_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := companytest.New()

	seedCompany(t, s, company.Company{Name: "NovaMind"})
	seedCompany(t, s, company.Company{Name: "NovaMind AI"})
	seedCompany(t, s, company.Company{Name: "NovaMind Labs"})
	seedCompany(t, s, company.Company{Name: "Resmonics"})
	seedCompany(t, s, company.Company{Name: "Resmonics AG"})
	seedCompany(t, s, company.Company{Name: "Teleport"})
	seedCompany(t, s, company.Company{Name: "Telleroo"})

	c := company.NewConsolidator(s, nil)
	first, err := c.Consolidate(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, first.Merges)

	second, err := c.Consolidate(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.Merges)
}

func TestConsolidate_IdempotentAfterGapFill(t *testing.T) {
	ctx := context.Background()
	s := companytest.New()

	rich := seedCompany(t, s, company.Company{
		Name: "Zeta Labs", Description: "d", City: "Oslo", Sector: "SaaS", Geography: "Norway",
	})
	seedCompany(t, s, company.Company{Name: "Zeta Labs", Website: "https://zeta.io"})
	other := seedCompany(t, s, company.Company{Name: "Labs Zeta", Website: "https://zeta.io"})

	c := company.NewConsolidator(s, nil)
	first, err := c.Consolidate(ctx)
	require.NoError(t, err)

	// The survivor inherits zeta.io in the first merge and is then paired
	// with the other zeta.io record in a later round.
	require.Len(t, first.Merges, 2)
	assert.Equal(t, rich, first.Merges[1].KeptID)
	assert.Equal(t, other, first.Merges[1].RemovedID)
	assert.Equal(t, "same domain (zeta.io)", first.Merges[1].Reason)

	second, err := c.Consolidate(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.Merges)

	all, err := s.ListCompanies(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "https://zeta.io", all[0].Website)
}

func TestConsolidate_FailedPairNotRetried(t *testing.T) {
	ctx := context.Background()
	s := companytest.New()

	seedCompany(t, s, company.Company{Name: "Resmonics", Description: "d"})
	seedCompany(t, s, company.Company{Name: "Resmonics AG"})
	seedCompany(t, s, company.Company{Name: "NovaMind"})
	seedCompany(t, s, company.Company{Name: "NovaMind AI"})

	s.Fail = func(op string, id int64) error {
		if op == "delete" && id == 2 {
			return errors.New("disk full")
		}
		return nil
	}

	report, err := company.NewConsolidator(s, nil).Consolidate(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Merges, 1)
	assert.Len(t, report.Failed, 1)
}

func TestConsolidate_TitlesNeverMerge(t *testing.T) {
	ctx := context.Background()
	s := companytest.New()

	seedCompany(t, s, company.Company{Name: "Show HN: NovaMind"})
	seedCompany(t, s, company.Company{Name: "Show HN: NovaMind 2"})

	report, err := company.NewConsolidator(s, nil).Consolidate(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Merges)
}

func TestConsolidate_FailedMergeRollsBack(t *testing.T) {
	ctx := context.Background()
	s := companytest.New()

	keep := seedCompany(t, s, company.Company{Name: "Resmonics", Description: "d", Sector: "Other"})
	remove := seedCompany(t, s, company.Company{Name: "Resmonics AG", Sector: "Health / Bio"})
	seedSignal(t, s, remove, "Venture Kick", company.LayerCurated)

	boom := errors.New("disk full")
	s.Fail = func(op string, _ int64) error {
		if op == "delete" {
			return boom
		}
		return nil
	}

	report, err := company.NewConsolidator(s, nil).Consolidate(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Merges)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, keep, report.Failed[0].KeptID)
	assert.Equal(t, remove, report.Failed[0].RemovedID)
	assert.Contains(t, report.Failed[0].Error, "disk full")

	// Nothing from the transaction is visible.
	k, err := s.GetCompany(ctx, keep)
	require.NoError(t, err)
	require.NotNil(t, k)
	assert.Equal(t, "Other", k.Sector)

	r, err := s.GetCompany(ctx, remove)
	require.NoError(t, err)
	require.NotNil(t, r)

	sigs, err := s.GetSignals(ctx, remove)
	require.NoError(t, err)
	assert.Len(t, sigs, 1)
}

func TestConsolidate_CanceledContext(t *testing.T) {
	s := companytest.New()
	seedCompany(t, s, company.Company{Name: "NovaMind"})
	seedCompany(t, s, company.Company{Name: "NovaMind AI"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := company.NewConsolidator(s, nil).Consolidate(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConsolidate_Empty(t *testing.T) {
	report, err := company.NewConsolidator(companytest.New(), nil).Consolidate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Merges)
	assert.Zero(t, report.Compared)
}
