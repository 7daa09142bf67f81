package scorer

import (
	"context"
	"errors"

	"github.com/facebookgo/clock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/athena/internal/company"
	"github.com/sells-group/athena/internal/config"
)

// ErrCompanyNotFound is returned by Breakdown for an unknown company id.
var ErrCompanyNotFound = errors.New("scorer: company not found")

// Component is one scored dimension of a Breakdown.
type Component struct {
	Score int    `json:"score"`
	Max   int    `json:"max"`
	Label string `json:"label"`
}

// Breakdown is the heat score of one company with its explanation. Its JSON
// shape is consumed by presentation layers.
type Breakdown struct {
	Total      int                  `json:"total"`
	Components map[string]Component `json:"components"`
	Reasons    []string             `json:"reasons"`
	Rising     bool                 `json:"rising"`
}

// RisingThreshold is the score increase over the previous snapshot that
// marks a company as rising.
const RisingThreshold = 2

// Scorer computes heat scores against a company store.
type Scorer struct {
	store company.Store
	cfg   *compiled
	clk   clock.Clock
	hash  string
}

// New creates a Scorer. cfg is copied; later changes to it have no effect.
// A nil clk uses the wall clock.
func New(store company.Store, cfg config.HeatConfig, clk clock.Clock) *Scorer {
	if clk == nil {
		clk = clock.New()
	}
	c := compile(cfg)
	return &Scorer{store: store, cfg: c, clk: clk, hash: ConfigHash(c.raw)}
}

// Config returns a copy of the scoring configuration in use.
func (s *Scorer) Config() config.HeatConfig {
	return cloneConfig(s.cfg.raw)
}

// Hash returns the ConfigHash of the scoring configuration in use.
func (s *Scorer) Hash() string {
	return s.hash
}

// Compute scores c from its signals and programs. It does not touch the
// store.
func (s *Scorer) Compute(c company.Company, signals []company.Signal, programs []company.Program) Breakdown {
	now := s.clk.Now().UTC()

	ped := s.cfg.pedigree(programs)
	buzz := s.cfg.buzz(signals)
	src := s.cfg.sources(signals)
	rec := s.cfg.recency(now, signals, programs)

	reasons := make([]string, 0, len(ped.reasons)+len(buzz.reasons)+len(src.reasons)+len(rec.reasons))
	reasons = append(reasons, ped.reasons...)
	reasons = append(reasons, buzz.reasons...)
	reasons = append(reasons, src.reasons...)
	reasons = append(reasons, rec.reasons...)

	total := ped.score + buzz.score + src.score + rec.score
	total = max(company.MinHeatScore, min(total, company.MaxHeatScore))

	return Breakdown{
		Total: total,
		Components: map[string]Component{
			ComponentProgram: {Score: ped.score, Max: s.cfg.max[ComponentProgram], Label: ped.label},
			ComponentBuzz:    {Score: buzz.score, Max: s.cfg.max[ComponentBuzz], Label: buzz.label},
			ComponentSources: {Score: src.score, Max: s.cfg.max[ComponentSources], Label: src.label},
			ComponentRecency: {Score: rec.score, Max: s.cfg.max[ComponentRecency], Label: rec.label},
		},
		Reasons: reasons,
		Rising:  IsRising(total, c.PreviousHeatScore),
	}
}

// IsRising reports whether total rose by at least RisingThreshold over a
// known previous score.
func IsRising(total int, previous *int) bool {
	return previous != nil && total-*previous >= RisingThreshold
}

// Breakdown loads a company with its evidence and scores it.
func (s *Scorer) Breakdown(ctx context.Context, companyID int64) (*Breakdown, error) {
	c, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "scorer: load company %d", companyID)
	}
	if c == nil {
		return nil, eris.Wrapf(ErrCompanyNotFound, "scorer: company %d", companyID)
	}
	b, err := s.breakdown(ctx, s.store, *c)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Scorer) breakdown(ctx context.Context, r company.Reader, c company.Company) (Breakdown, error) {
	signals, err := r.GetSignals(ctx, c.ID)
	if err != nil {
		return Breakdown{}, eris.Wrapf(err, "scorer: load signals for %d", c.ID)
	}
	programs, err := r.GetPrograms(ctx, c.ID)
	if err != nil {
		return Breakdown{}, eris.Wrapf(err, "scorer: load programs for %d", c.ID)
	}
	return s.Compute(c, signals, programs), nil
}

// RescoreAll snapshots every company's heat score into its previous score,
// then recomputes and stores every heat score. The snapshot commits before
// any score is computed, and the new scores are written in one transaction.
// It returns the number of companies scored.
func (s *Scorer) RescoreAll(ctx context.Context) (int, error) {
	start := s.clk.Now()

	if err := s.store.InTx(ctx, func(tx company.Tx) error {
		return tx.SnapshotHeatScores(ctx)
	}); err != nil {
		return 0, eris.Wrap(err, "scorer: snapshot heat scores")
	}

	companies, err := s.store.ListCompanies(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "scorer: list companies")
	}

	scores := make(map[int64]int, len(companies))
	rising := 0
	for _, c := range companies {
		b, err := s.breakdown(ctx, s.store, c)
		if err != nil {
			return 0, err
		}
		scores[c.ID] = b.Total
		if b.Rising {
			rising++
		}
	}

	if err := s.store.InTx(ctx, func(tx company.Tx) error {
		for _, c := range companies {
			if err := tx.SetHeatScore(ctx, c.ID, scores[c.ID]); err != nil {
				return eris.Wrapf(err, "scorer: set heat score for %d", c.ID)
			}
		}
		return nil
	}); err != nil {
		return 0, err
	}

	zap.L().Info("scorer: rescore complete",
		zap.Int("companies", len(companies)),
		zap.Int("rising", rising),
		zap.String("config_hash", s.hash),
		zap.Duration("elapsed", s.clk.Now().Sub(start)),
	)
	return len(companies), nil
}
