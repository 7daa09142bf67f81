// Package companytest provides an in-memory company.Store for tests.
package companytest

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/athena/internal/company"
)

// MemStore is a transactional in-memory company.Store and company.Ingester.
// InTx works on a copy of the data and swaps it in on success.
type MemStore struct {
	mu   sync.Mutex
	data *state

	// Fail, when set, is consulted before every write. A non-nil return
	// aborts the write with that error.
	Fail func(op string, id int64) error
}

type state struct {
	nextID    int64
	companies map[int64]company.Company
	signals   []company.Signal
	programs  []company.Program
}

// New returns an empty MemStore.
func New() *MemStore {
	return &MemStore{data: &state{companies: make(map[int64]company.Company)}}
}

func (s *state) clone() *state {
	out := &state{
		nextID:    s.nextID,
		companies: make(map[int64]company.Company, len(s.companies)),
		signals:   append([]company.Signal(nil), s.signals...),
		programs:  append([]company.Program(nil), s.programs...),
	}
	for id, c := range s.companies {
		if c.PreviousHeatScore != nil {
			v := *c.PreviousHeatScore
			c.PreviousHeatScore = &v
		}
		out.companies[id] = c
	}
	return out
}

// view binds the store operations to one state.
type view struct {
	st   *state
	fail func(op string, id int64) error
}

func (v *view) check(op string, id int64) error {
	if v.fail == nil {
		return nil
	}
	return v.fail(op, id)
}

func (v *view) ListCompanies(_ context.Context) ([]company.Company, error) {
	out := make([]company.Company, 0, len(v.st.companies))
	for _, c := range v.st.companies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) GetCompany(_ context.Context, id int64) (*company.Company, error) {
	c, ok := v.st.companies[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (v *view) GetSignals(_ context.Context, companyID int64) ([]company.Signal, error) {
	var out []company.Signal
	for _, s := range v.st.signals {
		if s.CompanyID == companyID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (v *view) GetPrograms(_ context.Context, companyID int64) ([]company.Program, error) {
	var out []company.Program
	for _, p := range v.st.programs {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (v *view) UpdateCompany(_ context.Context, id int64, p company.Patch) error {
	if err := v.check("update", id); err != nil {
		return err
	}
	c, ok := v.st.companies[id]
	if !ok {
		return eris.Wrapf(company.ErrIntegrity, "memstore: update missing company %d", id)
	}
	p.Apply(&c)
	v.st.companies[id] = c
	return nil
}

func (v *view) ReassignSignals(_ context.Context, fromID, toID int64) (int64, error) {
	if err := v.check("reassign_signals", fromID); err != nil {
		return 0, err
	}
	if _, ok := v.st.companies[toID]; !ok {
		return 0, eris.Wrapf(company.ErrIntegrity, "memstore: reassign to missing company %d", toID)
	}
	var n int64
	for i := range v.st.signals {
		if v.st.signals[i].CompanyID == fromID {
			v.st.signals[i].CompanyID = toID
			n++
		}
	}
	return n, nil
}

func (v *view) ReassignPrograms(_ context.Context, fromID, toID int64) (int64, error) {
	if err := v.check("reassign_programs", fromID); err != nil {
		return 0, err
	}
	if _, ok := v.st.companies[toID]; !ok {
		return 0, eris.Wrapf(company.ErrIntegrity, "memstore: reassign to missing company %d", toID)
	}
	var n int64
	for i := range v.st.programs {
		if v.st.programs[i].CompanyID == fromID {
			v.st.programs[i].CompanyID = toID
			n++
		}
	}
	return n, nil
}

func (v *view) DeleteCompany(_ context.Context, id int64) error {
	if err := v.check("delete", id); err != nil {
		return err
	}
	if _, ok := v.st.companies[id]; !ok {
		return eris.Wrapf(company.ErrIntegrity, "memstore: delete missing company %d", id)
	}
	for _, s := range v.st.signals {
		if s.CompanyID == id {
			return eris.Wrapf(company.ErrIntegrity, "memstore: company %d still has signals", id)
		}
	}
	for _, p := range v.st.programs {
		if p.CompanyID == id {
			return eris.Wrapf(company.ErrIntegrity, "memstore: company %d still has programs", id)
		}
	}
	delete(v.st.companies, id)
	return nil
}

func (v *view) SnapshotHeatScores(_ context.Context) error {
	if err := v.check("snapshot", 0); err != nil {
		return err
	}
	for id, c := range v.st.companies {
		prev := c.HeatScore
		c.PreviousHeatScore = &prev
		v.st.companies[id] = c
	}
	return nil
}

func (v *view) SetHeatScore(_ context.Context, id int64, score int) error {
	if err := v.check("set_heat", id); err != nil {
		return err
	}
	c, ok := v.st.companies[id]
	if !ok {
		return eris.Wrapf(company.ErrIntegrity, "memstore: score missing company %d", id)
	}
	if score < company.MinHeatScore || score > company.MaxHeatScore {
		return eris.Errorf("memstore: heat score %d out of range", score)
	}
	c.HeatScore = score
	v.st.companies[id] = c
	return nil
}

func (s *MemStore) current() *view {
	return &view{st: s.data, fail: s.Fail}
}

// ListCompanies implements company.Reader.
func (s *MemStore) ListCompanies(ctx context.Context) ([]company.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current().ListCompanies(ctx)
}

// GetCompany implements company.Reader.
func (s *MemStore) GetCompany(ctx context.Context, id int64) (*company.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current().GetCompany(ctx, id)
}

// GetSignals implements company.Reader.
func (s *MemStore) GetSignals(ctx context.Context, companyID int64) ([]company.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current().GetSignals(ctx, companyID)
}

// GetPrograms implements company.Reader.
func (s *MemStore) GetPrograms(ctx context.Context, companyID int64) ([]company.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current().GetPrograms(ctx, companyID)
}

// UpdateCompany implements company.Writer.
func (s *MemStore) UpdateCompany(ctx context.Context, id int64, p company.Patch) error {
	return s.InTx(ctx, func(tx company.Tx) error { return tx.UpdateCompany(ctx, id, p) })
}

// ReassignSignals implements company.Writer.
func (s *MemStore) ReassignSignals(ctx context.Context, fromID, toID int64) (int64, error) {
	var n int64
	err := s.InTx(ctx, func(tx company.Tx) error {
		var err error
		n, err = tx.ReassignSignals(ctx, fromID, toID)
		return err
	})
	return n, err
}

// ReassignPrograms implements company.Writer.
func (s *MemStore) ReassignPrograms(ctx context.Context, fromID, toID int64) (int64, error) {
	var n int64
	err := s.InTx(ctx, func(tx company.Tx) error {
		var err error
		n, err = tx.ReassignPrograms(ctx, fromID, toID)
		return err
	})
	return n, err
}

// DeleteCompany implements company.Writer.
func (s *MemStore) DeleteCompany(ctx context.Context, id int64) error {
	return s.InTx(ctx, func(tx company.Tx) error { return tx.DeleteCompany(ctx, id) })
}

// SnapshotHeatScores implements company.Writer.
func (s *MemStore) SnapshotHeatScores(ctx context.Context) error {
	return s.InTx(ctx, func(tx company.Tx) error { return tx.SnapshotHeatScores(ctx) })
}

// SetHeatScore implements company.Writer.
func (s *MemStore) SetHeatScore(ctx context.Context, id int64, score int) error {
	return s.InTx(ctx, func(tx company.Tx) error { return tx.SetHeatScore(ctx, id, score) })
}

// InTx implements company.Store.
func (s *MemStore) InTx(ctx context.Context, fn func(tx company.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&view{st: work, fail: s.Fail}); err != nil {
		return err
	}
	s.data = work
	return nil
}

// InsertCompany implements company.Ingester. Zero heat scores become 1.
func (s *MemStore) InsertCompany(_ context.Context, c *company.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.nextID++
	c.ID = s.data.nextID
	if c.HeatScore == 0 {
		c.HeatScore = company.MinHeatScore
	}
	s.data.companies[c.ID] = *c
	return nil
}

// InsertSignal implements company.Ingester.
func (s *MemStore) InsertSignal(_ context.Context, sig *company.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.companies[sig.CompanyID]; !ok {
		return eris.Wrapf(company.ErrIntegrity, "memstore: signal for missing company %d", sig.CompanyID)
	}
	s.data.nextID++
	sig.ID = s.data.nextID
	s.data.signals = append(s.data.signals, *sig)
	return nil
}

// InsertProgram implements company.Ingester.
func (s *MemStore) InsertProgram(_ context.Context, p *company.Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.companies[p.CompanyID]; !ok {
		return eris.Wrapf(company.ErrIntegrity, "memstore: program for missing company %d", p.CompanyID)
	}
	s.data.nextID++
	p.ID = s.data.nextID
	s.data.programs = append(s.data.programs, *p)
	return nil
}

// SignalCount returns the number of stored signals.
func (s *MemStore) SignalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.signals)
}

// ProgramCount returns the number of stored programs.
func (s *MemStore) ProgramCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.programs)
}

// Orphans returns the number of signals and programs that reference a
// missing company.
func (s *MemStore) Orphans() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sig := range s.data.signals {
		if _, ok := s.data.companies[sig.CompanyID]; !ok {
			n++
		}
	}
	for _, p := range s.data.programs {
		if _, ok := s.data.companies[p.CompanyID]; !ok {
			n++
		}
	}
	return n
}

var (
	_ company.Store    = (*MemStore)(nil)
	_ company.Ingester = (*MemStore)(nil)
)
