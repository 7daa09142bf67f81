package company

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/athena/internal/match"
)

// nameBucketLen is the number of leading runes of a normalized name used as
// its bucket key. Shorter names are not bucketed by name.
const nameBucketLen = 4

// Merge records one absorbed duplicate.
type Merge struct {
	KeptID      int64  `json:"kept_id"`
	RemovedID   int64  `json:"removed_id"`
	KeptName    string `json:"kept_name"`
	RemovedName string `json:"removed_name"`
	Reason      string `json:"reason"`
}

// MergeFailure records a matched pair whose merge transaction rolled back.
type MergeFailure struct {
	KeptID    int64  `json:"kept_id"`
	RemovedID int64  `json:"removed_id"`
	Reason    string `json:"reason"`
	Error     string `json:"error"`
}

// MergeReport summarizes one consolidation pass.
type MergeReport struct {
	Merges []Merge        `json:"merges"`
	Failed []MergeFailure `json:"failed,omitempty"`
	// Skipped counts candidate pairs dropped because one side had already
	// been absorbed earlier in the pass.
	Skipped int `json:"skipped"`
	// Compared counts pairs handed to the matcher, summed over rounds.
	Compared int `json:"compared"`
}

// Consolidator collapses duplicate company records.
//
// Candidates are generated from two bucket indexes: the first four runes of
// the normalized name, and the non-generic website domain. Only pairs that
// share a bucket are compared, so a pass is not O(n²) overall, but a bucket
// holding k companies still costs O(k²) comparisons. Many companies sharing
// a name prefix or one domain degrade the pass accordingly.
type Consolidator struct {
	store   Store
	matcher *match.Matcher
}

// NewConsolidator creates a Consolidator. A nil matcher uses the defaults.
func NewConsolidator(store Store, matcher *match.Matcher) *Consolidator {
	if matcher == nil {
		matcher = match.NewMatcher(match.DefaultOptions())
	}
	return &Consolidator{store: store, matcher: matcher}
}

// pass holds the per-run state of one Consolidate call.
type pass struct {
	c       *Consolidator
	report  *MergeReport
	seen    map[[2]int64]struct{}
	failed  map[[2]int64]struct{}
	deleted map[int64]struct{}
}

// Consolidate finds and merges duplicate companies. Store errors outside a
// merge transaction abort the pass; a failed merge is recorded in the report
// and the pass continues.
//
// The buckets are rebuilt from the surviving records and scanned again until
// a round merges nothing, so a survivor that gained a website in one round
// is compared against that domain's records in the next. A second call on
// an unchanged store therefore merges nothing. Pairs whose merge failed are
// not retried within a call.
func (c *Consolidator) Consolidate(ctx context.Context) (*MergeReport, error) {
	companies, err := c.store.ListCompanies(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "company: consolidate list")
	}

	records := make([]*Company, len(companies))
	for i := range companies {
		records[i] = &companies[i]
	}

	p := &pass{
		c:       c,
		report:  &MergeReport{Merges: []Merge{}},
		failed:  make(map[[2]int64]struct{}),
		deleted: make(map[int64]struct{}),
	}

	rounds := 0
	for {
		rounds++
		merged, err := p.round(ctx, records)
		if err != nil {
			return p.report, err
		}
		if merged == 0 {
			break
		}
	}

	zap.L().Info("consolidate: pass complete",
		zap.Int("companies", len(records)),
		zap.Int("rounds", rounds),
		zap.Int("compared", p.report.Compared),
		zap.Int("merged", len(p.report.Merges)),
		zap.Int("failed", len(p.report.Failed)),
		zap.Int("skipped", p.report.Skipped),
	)
	return p.report, nil
}

// round buckets the records that are still alive and tries every
// co-bucketed pair once. It returns the number of merges made.
func (p *pass) round(ctx context.Context, records []*Company) (int, error) {
	p.seen = make(map[[2]int64]struct{})
	before := len(p.report.Merges)

	nameBuckets := newBuckets()
	domainBuckets := newBuckets()
	for _, rec := range records {
		if _, gone := p.deleted[rec.ID]; gone {
			continue
		}
		norm := []rune(match.NormalizeName(rec.Name))
		if len(norm) >= nameBucketLen {
			nameBuckets.add(string(norm[:nameBucketLen]), rec)
		}
		if dom := match.ExtractDomain(rec.Website); dom != "" && !p.c.matcher.IsGenericDomain(dom) {
			domainBuckets.add(dom, rec)
		}
	}

	for _, idx := range []*buckets{nameBuckets, domainBuckets} {
		for _, key := range idx.order {
			group := idx.groups[key]
			for i := 0; i < len(group); i++ {
				for j := i + 1; j < len(group); j++ {
					if err := p.tryMerge(ctx, group[i], group[j]); err != nil {
						return len(p.report.Merges) - before, err
					}
				}
			}
		}
	}
	return len(p.report.Merges) - before, nil
}

// tryMerge tests one candidate pair and merges it on a match. The deleted
// guard is consulted here, at merge time, so pairs generated before an
// earlier merge in the same pass never touch an absorbed record.
func (p *pass) tryMerge(ctx context.Context, a, b *Company) error {
	if a.ID == b.ID {
		return nil
	}
	key := pairKey(a.ID, b.ID)
	if _, ok := p.seen[key]; ok {
		return nil
	}
	p.seen[key] = struct{}{}
	if _, ok := p.failed[key]; ok {
		return nil
	}

	_, aGone := p.deleted[a.ID]
	_, bGone := p.deleted[b.ID]
	if aGone || bGone {
		p.report.Skipped++
		return nil
	}

	p.report.Compared++
	ok, reason := p.c.matcher.IsMatch(a.Name, b.Name, a.Website, b.Website)
	if !ok {
		return nil
	}

	keep, remove := PickSurvivor(a, b)
	patch := MergeFields(keep, remove)

	err := p.c.store.InTx(ctx, func(tx Tx) error {
		return absorb(ctx, tx, keep.ID, remove.ID, patch)
	})
	if err != nil {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "company: consolidate")
		}
		zap.L().Warn("consolidate: merge rolled back",
			zap.Int64("keep_id", keep.ID),
			zap.Int64("remove_id", remove.ID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		p.failed[key] = struct{}{}
		p.report.Failed = append(p.report.Failed, MergeFailure{
			KeptID:    keep.ID,
			RemovedID: remove.ID,
			Reason:    reason,
			Error:     err.Error(),
		})
		return nil
	}

	patch.Apply(keep)
	p.deleted[remove.ID] = struct{}{}
	p.report.Merges = append(p.report.Merges, Merge{
		KeptID:      keep.ID,
		RemovedID:   remove.ID,
		KeptName:    keep.Name,
		RemovedName: remove.Name,
		Reason:      reason,
	})

	zap.L().Debug("consolidate: merged",
		zap.String("kept", keep.Name),
		zap.String("removed", remove.Name),
		zap.String("reason", reason),
	)
	return nil
}

// absorb folds remove into keep inside tx. Both rows must still exist.
func absorb(ctx context.Context, tx Tx, keepID, removeID int64, patch Patch) error {
	for _, id := range []int64{keepID, removeID} {
		c, err := tx.GetCompany(ctx, id)
		if err != nil {
			return eris.Wrapf(err, "company: merge load %d", id)
		}
		if c == nil {
			return eris.Wrapf(ErrIntegrity, "company: merge: company %d not found", id)
		}
	}

	if !patch.IsEmpty() {
		if err := tx.UpdateCompany(ctx, keepID, patch); err != nil {
			return eris.Wrap(err, "company: merge update survivor")
		}
	}
	if _, err := tx.ReassignSignals(ctx, removeID, keepID); err != nil {
		return eris.Wrap(err, "company: merge reassign signals")
	}
	if _, err := tx.ReassignPrograms(ctx, removeID, keepID); err != nil {
		return eris.Wrap(err, "company: merge reassign programs")
	}
	if err := tx.DeleteCompany(ctx, removeID); err != nil {
		return eris.Wrap(err, "company: merge delete")
	}
	return nil
}

func pairKey(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

// buckets is an insertion-ordered multimap.
type buckets struct {
	order  []string
	groups map[string][]*Company
}

func newBuckets() *buckets {
	return &buckets{groups: make(map[string][]*Company)}
}

func (b *buckets) add(key string, c *Company) {
	if _, ok := b.groups[key]; !ok {
		b.order = append(b.order, key)
	}
	b.groups[key] = append(b.groups[key], c)
}
